package remote

import (
	"fmt"
	"time"

	"github.com/crmarques/remotable/faults"
)

// Result is the outcome of one remote request. The set of implementations is
// closed: Found, NotModified, NotFound, ValidationFailed and Unavailable.
type Result interface {
	resultKind() string
}

type Found struct {
	Payload      Payload
	ETag         string
	LastModified time.Time
}

type NotModified struct{}

type NotFound struct{}

type ValidationFailed struct {
	Errors faults.FieldErrors
}

type Unavailable struct {
	StatusCode int
}

func (Found) resultKind() string            { return "found" }
func (NotModified) resultKind() string      { return "not_modified" }
func (NotFound) resultKind() string         { return "not_found" }
func (ValidationFailed) resultKind() string { return "validation_failed" }
func (Unavailable) resultKind() string      { return "unavailable" }

// Kind names a result for logs and metric labels.
func Kind(result Result) string {
	if result == nil {
		return "none"
	}
	return result.resultKind()
}

func (u Unavailable) Error() string {
	if u.StatusCode == 0 {
		return "remote resource is unavailable"
	}
	return fmt.Sprintf("remote resource is unavailable (status %d)", u.StatusCode)
}
