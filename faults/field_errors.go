package faults

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BaseField collects errors that do not belong to a single attribute.
const BaseField = "base"

// FieldErrors maps an attribute name to its error messages.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field string, messages ...string) {
	if f == nil {
		return
	}
	field = strings.TrimSpace(field)
	if field == "" {
		field = BaseField
	}
	for _, message := range messages {
		if strings.TrimSpace(message) == "" {
			continue
		}
		f[field] = append(f[field], message)
	}
}

func (f FieldErrors) Get(field string) []string {
	if f == nil {
		return nil
	}
	return f[field]
}

func (f FieldErrors) Empty() bool {
	for _, messages := range f {
		if len(messages) > 0 {
			return false
		}
	}
	return true
}

func (f FieldErrors) Clone() FieldErrors {
	if f == nil {
		return nil
	}
	cloned := make(FieldErrors, len(f))
	for field, messages := range f {
		cloned[field] = append([]string(nil), messages...)
	}
	return cloned
}

// FullMessages renders errors as "field message", base errors unprefixed,
// ordered by field name.
func (f FieldErrors) FullMessages() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, message := range f[field] {
			if field == BaseField {
				messages = append(messages, message)
				continue
			}
			messages = append(messages, field+" "+message)
		}
	}
	return messages
}

// RecordInvalidError reports a local save or destroy rejected because the
// remote resource refused it.
type RecordInvalidError struct {
	RecordType string
	Operation  string
	Fields     FieldErrors
}

func (e *RecordInvalidError) Error() string {
	if e == nil {
		return "<nil>"
	}
	summary := strings.Join(e.Fields.FullMessages(), ", ")
	if summary == "" {
		summary = "remote validation failed"
	}
	return fmt.Sprintf("%s %s invalid: %s", e.RecordType, e.Operation, summary)
}

func (e *RecordInvalidError) Unwrap() error {
	if e == nil {
		return nil
	}
	return NewTypedError(ValidationError, "remote validation failed", nil)
}

func NewRecordInvalidError(recordType string, operation string, fields FieldErrors) error {
	return &RecordInvalidError{
		RecordType: recordType,
		Operation:  operation,
		Fields:     fields.Clone(),
	}
}

func AsRecordInvalid(err error) (*RecordInvalidError, bool) {
	var target *RecordInvalidError
	if !errors.As(err, &target) {
		return nil, false
	}
	return target, true
}
