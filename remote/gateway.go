package remote

import (
	"context"
	"time"
)

// Payload is a decoded remote document keyed by remote field name.
type Payload = map[string]any

// Conditional carries the validators of the last fetched representation.
type Conditional struct {
	IfModifiedSince time.Time
	IfNoneMatch     string
}

func (c Conditional) IsZero() bool {
	return c.IfModifiedSince.IsZero() && c.IfNoneMatch == ""
}

// Gateway performs requests against paths relative to the remote base URL.
// A transport timeout is reported as an error of category
// faults.TimeoutError; every other outcome is a Result.
type Gateway interface {
	Fetch(ctx context.Context, path string, cond Conditional) (Result, error)
	List(ctx context.Context, path string, listJQ string) ([]Payload, Result, error)
	Create(ctx context.Context, path string, payload Payload) (Result, error)
	Update(ctx context.Context, path string, payload Payload) (Result, error)
	Destroy(ctx context.Context, path string) (Result, error)
}
