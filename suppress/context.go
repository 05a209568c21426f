package suppress

import (
	"context"
	"strings"
)

// All applies a suppression value to every record type.
const All = "*"

type scopeKey struct {
	recordType string
}

type scopedValue struct {
	value   bool
	defined bool
}

// With returns a context in which remote synchronization of recordType is
// suppressed (value true) or explicitly enabled (value false).
func With(ctx context.Context, recordType string, value bool) context.Context {
	return context.WithValue(ctx, scopeKey{recordType: normalizeType(recordType)}, scopedValue{value: value, defined: true})
}

// Unset returns a context in which recordType has no scoped value, so lookups
// fall through to persistent settings.
func Unset(ctx context.Context, recordType string) context.Context {
	return context.WithValue(ctx, scopeKey{recordType: normalizeType(recordType)}, scopedValue{})
}

// Lookup reports the scoped value for recordType and whether one is defined.
// An undefined value is distinct from an explicit false.
func Lookup(ctx context.Context, recordType string) (bool, bool) {
	if ctx == nil {
		return false, false
	}
	scoped, _ := ctx.Value(scopeKey{recordType: normalizeType(recordType)}).(scopedValue)
	return scoped.value, scoped.defined
}

// Do runs fn with recordType's suppression set to value. The caller's context
// is never modified, so the previous state, including "undefined", is back in
// effect once fn returns, fails or panics.
func Do(ctx context.Context, recordType string, value bool, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(With(ctx, recordType, value))
}

func normalizeType(recordType string) string {
	trimmed := strings.TrimSpace(recordType)
	if trimmed == "" {
		return All
	}
	return trimmed
}
