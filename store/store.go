package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/record"
)

// CreateOutcome reports whether Create inserted a row or lost a race against
// a concurrent insert of the same unique key.
type CreateOutcome int

const (
	Created CreateOutcome = iota
	AlreadyExists
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TableSpec describes the local table backing one record type.
type TableSpec struct {
	Name       string
	RecordType string
	Columns    []string
	UniqueKeys [][]string
}

// Store persists local records. Implementations must be safe for concurrent
// use and enforce TableSpec.UniqueKeys so that racing creates of the same key
// resolve to a single row.
type Store interface {
	EnsureTable(ctx context.Context, spec TableSpec) error
	// FindBy returns the first row matching every attribute in where, or nil
	// when none matches. A nil value matches NULL.
	FindBy(ctx context.Context, table string, where map[string]any) (*record.Record, error)
	All(ctx context.Context, table string) ([]*record.Record, error)
	// Create inserts rec and marks it persisted. A unique key collision yields
	// AlreadyExists and leaves rec untouched.
	Create(ctx context.Context, table string, rec *record.Record) (CreateOutcome, error)
	Update(ctx context.Context, table string, rec *record.Record) error
	Destroy(ctx context.Context, table string, rec *record.Record) error
	// WithinTransaction runs fn with a transaction carried in its context.
	// Nested calls join the outer transaction.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}

// Reserved column names managed by the store itself.
const (
	ColumnID              = "id"
	ColumnExpiresAt       = "expires_at"
	ColumnRemoteUpdatedAt = "remote_updated_at"
	ColumnRemoteETag      = "remote_etag"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects table and column names that cannot be used as
// plain SQL identifiers.
func ValidateIdentifier(kind string, name string) error {
	if !identifierPattern.MatchString(name) {
		return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("invalid %s name %q", kind, name), nil)
	}
	return nil
}

// Validate checks names, duplicates, reserved columns and that every unique
// key references a declared column.
func (s TableSpec) Validate() error {
	if err := ValidateIdentifier("table", s.Name); err != nil {
		return err
	}
	if len(s.Columns) == 0 {
		return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("table %q declares no columns", s.Name), nil)
	}

	declared := make(map[string]struct{}, len(s.Columns))
	for _, column := range s.Columns {
		if err := ValidateIdentifier("column", column); err != nil {
			return err
		}
		switch column {
		case ColumnID, ColumnExpiresAt, ColumnRemoteUpdatedAt, ColumnRemoteETag:
			return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("column %q is reserved", column), nil)
		}
		if _, exists := declared[column]; exists {
			return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("column %q declared twice", column), nil)
		}
		declared[column] = struct{}{}
	}

	for _, key := range s.UniqueKeys {
		if len(key) == 0 {
			return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("table %q declares an empty unique key", s.Name), nil)
		}
		for _, column := range key {
			if _, exists := declared[column]; !exists {
				return faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("unique key column %q is not declared on table %q", column, s.Name), nil)
			}
		}
	}
	return nil
}
