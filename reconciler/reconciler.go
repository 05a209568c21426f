package reconciler

import (
	"context"

	"github.com/crmarques/remotable/record"
)

// Reconciler keeps the local rows of one record type consistent with the
// remote resource they mirror.
type Reconciler interface {
	FindBy(ctx context.Context, attribute string, value any, opts ...FindOption) (*record.Record, error)
	FindByKey(ctx context.Context, values []any, opts ...FindOption) (*record.Record, error)
	FindByRemoteID(ctx context.Context, remoteID any, opts ...FindOption) (*record.Record, error)
	MustFindBy(ctx context.Context, attribute string, value any, opts ...FindOption) (*record.Record, error)
	Refresh(ctx context.Context, rec *record.Record) (*record.Record, error)
	AllByRemote(ctx context.Context) ([]*record.Record, error)
	Save(ctx context.Context, rec *record.Record) error
	Destroy(ctx context.Context, rec *record.Record) error
	New() *record.Record
}

type findOptions struct {
	force bool
}

type FindOption func(*findOptions)

// Force bypasses the freshness check and always asks the remote resource.
func Force() FindOption {
	return func(o *findOptions) {
		o.force = true
	}
}

func collectFindOptions(opts []FindOption) findOptions {
	var options findOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
