package reconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/remote"
	"github.com/crmarques/remotable/store"
	"go.opentelemetry.io/otel/attribute"
)

const (
	fetchOutcomeSkippedFresh = "skipped_fresh"
	fetchOutcomeSuppressed   = "suppressed"
	fetchOutcomeTimeout      = "timeout"
	fetchOutcomeError        = "error"
)

// lookup addresses one remote resource and the local row caching it.
type lookup struct {
	where map[string]any
	path  string
}

// FindBy returns the record whose attribute equals value, fetching it from
// the remote resource when the local copy is missing or expired. A nil record
// with a nil error means neither side knows the value.
func (r *DefaultReconciler) FindBy(ctx context.Context, attribute string, value any, opts ...FindOption) (*record.Record, error) {
	if attribute == r.descriptor.IdentityAttribute() && attribute != "" {
		return r.FindByRemoteID(ctx, value, opts...)
	}
	if !slices.Contains(r.descriptor.Mapper().LocalAttributes(), attribute) {
		return nil, validationError(fmt.Sprintf("%s has no mapped attribute %q", r.descriptor.Name(), attribute))
	}
	if value == nil {
		return nil, validationError(fmt.Sprintf("%s lookup by %q requires a value", r.descriptor.Name(), attribute))
	}

	path, err := r.descriptor.FetchPath(attribute, value)
	if err != nil {
		return nil, err
	}
	return r.findOrFetch(ctx, lookup{where: map[string]any{attribute: value}, path: path}, collectFindOptions(opts))
}

// FindByKey looks a record up by the values of its declared remote key, in
// key order.
func (r *DefaultReconciler) FindByKey(ctx context.Context, values []any, opts ...FindOption) (*record.Record, error) {
	key, ok := r.descriptor.RemoteKey()
	if !ok {
		return nil, configurationError(fmt.Sprintf("%s has no remote key", r.descriptor.Name()))
	}
	if len(values) != len(key.Attributes) {
		return nil, validationError(fmt.Sprintf(
			"%s remote key needs %d values, got %d", r.descriptor.Name(), len(key.Attributes), len(values),
		))
	}

	where := make(map[string]any, len(values))
	for idx, attribute := range key.Attributes {
		if values[idx] == nil {
			return nil, validationError(fmt.Sprintf("%s remote key attribute %q requires a value", r.descriptor.Name(), attribute))
		}
		where[attribute] = values[idx]
	}
	path, err := r.descriptor.KeyPath(values)
	if err != nil {
		return nil, err
	}
	return r.findOrFetch(ctx, lookup{where: where, path: path}, collectFindOptions(opts))
}

func (r *DefaultReconciler) FindByRemoteID(ctx context.Context, remoteID any, opts ...FindOption) (*record.Record, error) {
	identity := r.descriptor.IdentityAttribute()
	if identity == "" {
		return nil, configurationError(fmt.Sprintf("%s has no remote identifier", r.descriptor.Name()))
	}
	if remoteID == nil {
		return nil, validationError(fmt.Sprintf("%s lookup by remote identifier requires a value", r.descriptor.Name()))
	}

	path, err := r.descriptor.MemberPath(remoteID)
	if err != nil {
		return nil, err
	}
	return r.findOrFetch(ctx, lookup{where: map[string]any{identity: remoteID}, path: path}, collectFindOptions(opts))
}

// MustFindBy is FindBy reporting a missing record as a NotFoundError.
func (r *DefaultReconciler) MustFindBy(ctx context.Context, attribute string, value any, opts ...FindOption) (*record.Record, error) {
	rec, err := r.FindBy(ctx, attribute, value, opts...)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFoundError(fmt.Sprintf("%s with %s %s not found", r.descriptor.Name(), attribute, formatValue(value)))
	}
	return rec, nil
}

// Refresh forces a fetch of rec's remote resource and returns the updated
// row. When the remote resource is gone rec is marked destroyed and nil is
// returned.
func (r *DefaultReconciler) Refresh(ctx context.Context, rec *record.Record) (*record.Record, error) {
	if rec == nil || !rec.Persisted() {
		return nil, validationError(fmt.Sprintf("%s refresh requires a persisted record", r.descriptor.Name()))
	}
	where := r.descriptor.LookupAttributes(rec)
	if where == nil {
		return nil, validationError(fmt.Sprintf("%s record %d has neither a remote identifier nor a remote key", r.descriptor.Name(), rec.ID))
	}
	path, err := r.descriptor.IdentityPath(rec)
	if err != nil {
		return nil, err
	}

	refreshed, err := r.findOrFetch(ctx, lookup{where: where, path: path}, findOptions{force: true})
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		rec.MarkDestroyed()
	}
	return refreshed, nil
}

func (r *DefaultReconciler) findOrFetch(ctx context.Context, target lookup, options findOptions) (result *record.Record, err error) {
	ctx, span := r.startSpan(ctx, "find",
		attribute.String("remotable.remote_path", target.path),
		attribute.Bool("remotable.force", options.force),
	)
	defer func() { endSpan(span, err) }()

	logger := r.logger(ctx).WithValues("path", target.path)
	table := r.descriptor.Table()
	recordType := r.descriptor.Name()

	local, err := r.store.FindBy(ctx, table, target.where)
	if err != nil {
		return nil, err
	}

	if local != nil && !r.policy.NeedsFetch(local.ExpiresAt, options.force) {
		logger.V(1).Info("fetch skipped, local copy is fresh", "id", local.ID)
		r.metrics.ObserveFetch(recordType, fetchOutcomeSkippedFresh)
		return local, nil
	}
	if r.suppressed(ctx, local) {
		logger.V(1).Info("fetch suppressed")
		r.metrics.ObserveFetch(recordType, fetchOutcomeSuppressed)
		return local, nil
	}

	fetched, err := r.fetch(ctx, target.path, conditionalFor(local))
	if err != nil {
		outcome := fetchOutcomeError
		if faults.IsCategory(err, faults.TimeoutError) {
			outcome = fetchOutcomeTimeout
		}
		r.metrics.ObserveFetch(recordType, outcome)
		if local != nil && softFetchFailure(err) {
			logger.Info("remote fetch failed, serving local copy", "id", local.ID, "error", err.Error())
			return local, nil
		}
		return nil, err
	}

	r.metrics.ObserveFetch(recordType, remote.Kind(fetched))
	span.SetAttributes(attribute.String("remotable.result", remote.Kind(fetched)))
	logger.V(1).Info("remote fetch completed", "result", remote.Kind(fetched))

	switch typed := fetched.(type) {
	case remote.Found:
		return r.persistFetched(ctx, local, target.where, typed)
	case remote.NotModified:
		if local == nil {
			return nil, nil
		}
		expiresAt := r.policy.NextExpiry()
		local.ExpiresAt = &expiresAt
		if err := r.store.Update(ctx, table, local); err != nil {
			return nil, err
		}
		return local, nil
	case remote.NotFound:
		if local == nil {
			return nil, nil
		}
		logger.Info("remote resource is gone, destroying local copy", "id", local.ID)
		if err := r.store.Destroy(ctx, table, local); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		// Unavailable and a rejected read both leave the cache untouched.
		return local, nil
	}
}

// fetch coalesces concurrent requests for the same path and validators. The
// shared payload is only read by callers.
func (r *DefaultReconciler) fetch(ctx context.Context, path string, cond remote.Conditional) (remote.Result, error) {
	key := fmt.Sprintf("%s|%s|%s", path, cond.IfNoneMatch, cond.IfModifiedSince.UTC().Format("20060102T150405Z"))
	value, err, shared := r.fetches.Do(key, func() (any, error) {
		return r.gateway.Fetch(ctx, path, cond)
	})
	if shared {
		r.metrics.ObserveCoalescedFetch(r.descriptor.Name())
		// The leader's cancellation is not ours; fetch again on our own context.
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			value, err = r.gateway.Fetch(ctx, path, cond)
		}
	}
	if err != nil {
		return nil, err
	}
	result, _ := value.(remote.Result)
	if result == nil {
		return nil, internalError("remote gateway returned no result", nil)
	}
	return result, nil
}

// persistFetched merges a fetched payload into local, or into a new record
// seeded with the lookup attributes, and writes it.
func (r *DefaultReconciler) persistFetched(ctx context.Context, local *record.Record, where map[string]any, found remote.Found) (*record.Record, error) {
	rec := local
	if rec == nil {
		rec = r.New()
		rec.Assign(where)
	}
	r.descriptor.Mapper().MergeFromRemote(rec, found.Payload)
	r.stampFetched(rec, found)
	return r.upsert(ctx, rec, where)
}

// upsert writes rec. A create that loses a unique-key race discards rec and
// returns the row that won; the collision itself is never surfaced.
func (r *DefaultReconciler) upsert(ctx context.Context, rec *record.Record, where map[string]any) (*record.Record, error) {
	table := r.descriptor.Table()
	if rec.Persisted() {
		if err := r.store.Update(ctx, table, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		outcome, err := r.store.Create(ctx, table, rec)
		if err != nil {
			return nil, err
		}
		if outcome == store.Created {
			return rec, nil
		}

		r.metrics.ObserveDuplicateRecovery(r.descriptor.Name())
		winner, err := r.findWinner(ctx, rec, where)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			r.logger(ctx).V(1).Info("duplicate key on create, using existing row", "id", winner.ID)
			return winner, nil
		}
	}

	return nil, conflictError(fmt.Sprintf("%s create kept colliding with a row that could not be found", r.descriptor.Name()), nil)
}

// softFetchFailure reports gateway errors after which a cached copy is still
// the best answer.
func softFetchFailure(err error) bool {
	return faults.IsCategory(err, faults.TimeoutError) ||
		faults.IsCategory(err, faults.TransportError) ||
		faults.IsCategory(err, faults.UnavailableError)
}

func (r *DefaultReconciler) findWinner(ctx context.Context, rec *record.Record, where map[string]any) (*record.Record, error) {
	candidates := []map[string]any{r.descriptor.LookupAttributes(rec), where}
	if key, ok := r.descriptor.RemoteKey(); ok && r.descriptor.HasRemoteKey(rec) {
		byKey := make(map[string]any, len(key.Attributes))
		for _, attribute := range key.Attributes {
			byKey[attribute] = rec.Get(attribute)
		}
		candidates = append(candidates, byKey)
	}

	for _, candidate := range candidates {
		if len(candidate) == 0 {
			continue
		}
		winner, err := r.store.FindBy(ctx, r.descriptor.Table(), candidate)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return winner, nil
		}
	}
	return nil, nil
}

func formatValue(value any) string {
	if text, ok := value.(string); ok {
		return fmt.Sprintf("%q", text)
	}
	return fmt.Sprint(value)
}
