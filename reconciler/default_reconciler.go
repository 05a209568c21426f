package reconciler

import (
	"context"
	"time"

	"github.com/crmarques/remotable/debugctx"
	"github.com/crmarques/remotable/descriptor"
	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/freshness"
	"github.com/crmarques/remotable/metrics"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/remote"
	"github.com/crmarques/remotable/store"
	"github.com/crmarques/remotable/suppress"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/crmarques/remotable/reconciler"

var _ Reconciler = (*DefaultReconciler)(nil)

// DefaultReconciler is safe for concurrent use. Every operation works on
// records it loads itself or on the record handed to it by the caller.
type DefaultReconciler struct {
	descriptor  *descriptor.Descriptor
	store       store.Store
	gateway     remote.Gateway
	suppression *suppress.Registry
	policy      freshness.Policy
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	fetches     singleflight.Group
}

type Option func(*DefaultReconciler)

func WithSuppressionRegistry(registry *suppress.Registry) Option {
	return func(r *DefaultReconciler) {
		if registry != nil {
			r.suppression = registry
		}
	}
}

// WithClock replaces the time source used for expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(r *DefaultReconciler) {
		if now != nil {
			r.policy.Now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *DefaultReconciler) {
		r.metrics = m
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(r *DefaultReconciler) {
		if provider != nil {
			r.tracer = provider.Tracer(tracerName)
		}
	}
}

func New(desc *descriptor.Descriptor, st store.Store, gateway remote.Gateway, opts ...Option) (*DefaultReconciler, error) {
	if desc == nil {
		return nil, configurationError("reconciler requires a record descriptor")
	}
	if st == nil {
		return nil, configurationError("reconciler requires a local store")
	}
	if gateway == nil {
		return nil, configurationError("reconciler requires a remote gateway")
	}

	r := &DefaultReconciler{
		descriptor:  desc,
		store:       st,
		gateway:     gateway,
		suppression: suppress.Default,
		policy:      freshness.NewPolicy(desc.TTL()),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *DefaultReconciler) Descriptor() *descriptor.Descriptor {
	return r.descriptor
}

// New returns an unsaved record of this reconciler's type.
func (r *DefaultReconciler) New() *record.Record {
	return record.New(r.descriptor.Name())
}

func (r *DefaultReconciler) suppressed(ctx context.Context, rec *record.Record) bool {
	var (
		value   bool
		defined bool
	)
	if rec != nil {
		value, defined = rec.NoSync()
	}
	return r.suppression.Suppressed(ctx, r.descriptor.Name(), value, defined)
}

func (r *DefaultReconciler) logger(ctx context.Context) logr.Logger {
	return debugctx.Logger(ctx).WithName("reconciler").WithValues("record_type", r.descriptor.Name())
}

func (r *DefaultReconciler) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String("remotable.record_type", r.descriptor.Name())}, attrs...)
	return r.tracer.Start(ctx, "reconciler."+operation, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// stampFetched records the validators of a successful remote read on rec.
func (r *DefaultReconciler) stampFetched(rec *record.Record, found remote.Found) {
	expiresAt := r.policy.NextExpiry()
	rec.ExpiresAt = &expiresAt
	if !found.LastModified.IsZero() {
		updatedAt := found.LastModified.UTC()
		rec.RemoteUpdatedAt = &updatedAt
	}
	if found.ETag != "" {
		rec.RemoteETag = found.ETag
	}
}

func conditionalFor(rec *record.Record) remote.Conditional {
	if rec == nil {
		return remote.Conditional{}
	}
	var cond remote.Conditional
	if rec.RemoteUpdatedAt != nil {
		cond.IfModifiedSince = rec.RemoteUpdatedAt.UTC()
	}
	cond.IfNoneMatch = rec.RemoteETag
	return cond
}

func configurationError(message string) error {
	return faults.NewTypedError(faults.ConfigurationError, message, nil)
}

func validationError(message string) error {
	return faults.NewTypedError(faults.ValidationError, message, nil)
}

func notFoundError(message string) error {
	return faults.NewTypedError(faults.NotFoundError, message, nil)
}

func conflictError(message string, cause error) error {
	return faults.NewTypedError(faults.ConflictError, message, cause)
}

func unavailableError(message string, cause error) error {
	return faults.NewTypedError(faults.UnavailableError, message, cause)
}

func internalError(message string, cause error) error {
	return faults.NewTypedError(faults.InternalError, message, cause)
}
