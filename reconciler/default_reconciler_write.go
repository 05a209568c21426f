package reconciler

import (
	"context"
	"fmt"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/remote"
	"github.com/crmarques/remotable/store"
	"go.opentelemetry.io/otel/attribute"
)

const (
	operationCreate  = "create"
	operationUpdate  = "update"
	operationDestroy = "destroy"

	writeOutcomeSuppressed = "suppressed"
	writeOutcomeUnchanged  = "unchanged"
	writeOutcomeTimeout    = "timeout"
	writeOutcomeError      = "error"

	unavailableMessage       = "remote resource is unavailable"
	remoteNotFoundMessage    = "remote resource was not found"
	nonAtomicFailureMessage  = "remote write succeeded but local persistence failed"
	destroyRejectedMessage   = "remote resource rejected the destroy"
	destroyedRecordSaveError = "destroyed record cannot be saved"
)

// Save writes rec to the remote resource and then to local storage. A record
// without a remote identifier that is new, or that has no remote key, is
// created remotely; anything else is updated with its changed attributes.
// Remote rejection leaves local storage untouched and fills rec.Errors.
func (r *DefaultReconciler) Save(ctx context.Context, rec *record.Record) (err error) {
	if err := r.checkRecord(rec); err != nil {
		return err
	}
	if rec.Destroyed() {
		return validationError(destroyedRecordSaveError)
	}
	rec.ClearErrors()

	operation := operationUpdate
	if !r.descriptor.HasRemoteIdentity(rec) && (rec.NewRecord() || !r.descriptor.HasRemoteKey(rec)) {
		operation = operationCreate
	}

	ctx, span := r.startSpan(ctx, "save", attribute.String("remotable.operation", operation))
	defer func() { endSpan(span, err) }()
	logger := r.logger(ctx).WithValues("operation", operation, "id", rec.ID)
	recordType := r.descriptor.Name()

	if r.suppressed(ctx, rec) {
		logger.V(1).Info("remote write suppressed, saving locally")
		r.metrics.ObserveWrite(recordType, operation, writeOutcomeSuppressed)
		return r.persistWritten(ctx, rec)
	}

	var (
		result remote.Result
		path   string
	)
	switch operation {
	case operationCreate:
		path = r.descriptor.CollectionPath()
		result, err = r.gateway.Create(ctx, path, r.descriptor.Mapper().ToRemotePayload(rec))
	default:
		if rec.Persisted() && !r.descriptor.Mapper().AnyRemoteChanges(rec) {
			logger.V(1).Info("no remote attribute changed, saving locally")
			r.metrics.ObserveWrite(recordType, operation, writeOutcomeUnchanged)
			return r.persistWritten(ctx, rec)
		}
		path, err = r.descriptor.IdentityPath(rec)
		if err != nil {
			return err
		}
		result, err = r.gateway.Update(ctx, path, r.descriptor.Mapper().ChangedPayload(rec))
	}
	span.SetAttributes(attribute.String("remotable.remote_path", path))
	if err != nil {
		r.observeWriteError(recordType, operation, err)
		return err
	}
	r.metrics.ObserveWrite(recordType, operation, remote.Kind(result))
	logger.V(1).Info("remote write completed", "path", path, "result", remote.Kind(result))

	switch typed := result.(type) {
	case remote.Found:
		r.descriptor.Mapper().MergeFromRemote(rec, typed.Payload)
		r.stampFetched(rec, typed)
		if err := r.persistWritten(ctx, rec); err != nil {
			logger.Error(err, nonAtomicFailureMessage, "path", path)
			return internalError(nonAtomicFailureMessage, err)
		}
		return nil
	case remote.NotModified:
		if err := r.persistWritten(ctx, rec); err != nil {
			logger.Error(err, nonAtomicFailureMessage, "path", path)
			return internalError(nonAtomicFailureMessage, err)
		}
		return nil
	case remote.ValidationFailed:
		rec.AddErrors(r.descriptor.Mapper().MapErrors(typed.Errors))
		return faults.NewRecordInvalidError(recordType, operation, rec.Errors)
	case remote.NotFound:
		rec.AddErrors(faults.FieldErrors{faults.BaseField: {remoteNotFoundMessage}})
		return notFoundError(fmt.Sprintf("%s %s: %s", recordType, operation, remoteNotFoundMessage))
	case remote.Unavailable:
		rec.AddErrors(faults.FieldErrors{faults.BaseField: {unavailableMessage}})
		return unavailableError(fmt.Sprintf("%s %s failed", recordType, operation), typed)
	default:
		return internalError(fmt.Sprintf("unexpected remote result %T", result), nil)
	}
}

// Destroy removes rec remotely and then locally. A remote resource that is
// already gone counts as destroyed.
func (r *DefaultReconciler) Destroy(ctx context.Context, rec *record.Record) (err error) {
	if err := r.checkRecord(rec); err != nil {
		return err
	}
	rec.ClearErrors()

	ctx, span := r.startSpan(ctx, "destroy")
	defer func() { endSpan(span, err) }()
	logger := r.logger(ctx).WithValues("id", rec.ID)
	recordType := r.descriptor.Name()
	table := r.descriptor.Table()

	if r.suppressed(ctx, rec) {
		logger.V(1).Info("remote destroy suppressed, destroying locally")
		r.metrics.ObserveWrite(recordType, operationDestroy, writeOutcomeSuppressed)
		return r.store.Destroy(ctx, table, rec)
	}
	if !r.descriptor.HasRemoteIdentity(rec) && !r.descriptor.HasRemoteKey(rec) {
		logger.V(1).Info("record was never synchronized, destroying locally")
		return r.store.Destroy(ctx, table, rec)
	}

	path, err := r.descriptor.IdentityPath(rec)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("remotable.remote_path", path))

	result, err := r.gateway.Destroy(ctx, path)
	if err != nil {
		r.observeWriteError(recordType, operationDestroy, err)
		return err
	}
	r.metrics.ObserveWrite(recordType, operationDestroy, remote.Kind(result))
	logger.V(1).Info("remote destroy completed", "path", path, "result", remote.Kind(result))

	switch typed := result.(type) {
	case remote.Found, remote.NotFound, remote.NotModified:
		if err := r.store.Destroy(ctx, table, rec); err != nil {
			logger.Error(err, nonAtomicFailureMessage, "path", path)
			return internalError(nonAtomicFailureMessage, err)
		}
		return nil
	case remote.ValidationFailed:
		mapped := r.descriptor.Mapper().MapErrors(typed.Errors)
		if mapped.Empty() {
			mapped.Add(faults.BaseField, destroyRejectedMessage)
		}
		rec.AddErrors(mapped)
		return faults.NewRecordInvalidError(recordType, operationDestroy, rec.Errors)
	case remote.Unavailable:
		rec.AddErrors(faults.FieldErrors{faults.BaseField: {unavailableMessage}})
		return unavailableError(fmt.Sprintf("%s destroy failed", recordType), typed)
	default:
		return internalError(fmt.Sprintf("unexpected remote result %T", result), nil)
	}
}

// AllByRemote fetches the remote collection and creates or merges a local row
// for every item. Local rows absent from the collection are kept.
func (r *DefaultReconciler) AllByRemote(ctx context.Context) (records []*record.Record, err error) {
	path := r.descriptor.CollectionPath()
	ctx, span := r.startSpan(ctx, "list", attribute.String("remotable.remote_path", path))
	defer func() { endSpan(span, err) }()
	logger := r.logger(ctx).WithValues("path", path)
	table := r.descriptor.Table()

	if r.suppressed(ctx, nil) {
		logger.V(1).Info("remote list suppressed, reading locally")
		return r.store.All(ctx, table)
	}

	items, result, err := r.gateway.List(ctx, path, r.descriptor.ListJQ())
	if err != nil {
		if faults.IsCategory(err, faults.TimeoutError) {
			logger.Info("remote list timed out, reading locally")
			return r.store.All(ctx, table)
		}
		return nil, err
	}
	if _, ok := result.(remote.Found); !ok {
		logger.Info("remote list not available, reading locally", "result", remote.Kind(result))
		return r.store.All(ctx, table)
	}

	records = make([]*record.Record, 0, len(items))
	err = r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		for idx, item := range items {
			where, err := r.itemLookup(item)
			if err != nil {
				return fmt.Errorf("list item %d: %w", idx, err)
			}
			local, err := r.store.FindBy(ctx, table, where)
			if err != nil {
				return err
			}
			rec, err := r.persistFetched(ctx, local, where, remote.Found{Payload: item})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.V(1).Info("remote list merged", "count", len(records))
	return records, nil
}

// itemLookup locates the local row of one list item: by remote identifier
// when the item carries it, else by the remote key attributes.
func (r *DefaultReconciler) itemLookup(item remote.Payload) (map[string]any, error) {
	mapper := r.descriptor.Mapper()
	if identity, ok := mapper.Identity(); ok {
		if value, exists := item[identity.Remote]; exists && value != nil {
			return map[string]any{identity.Local: value}, nil
		}
	}
	if key, ok := r.descriptor.RemoteKey(); ok {
		where := make(map[string]any, len(key.Attributes))
		for _, localName := range key.Attributes {
			remoteName, _ := mapper.RemoteName(localName)
			value, exists := item[remoteName]
			if !exists || value == nil {
				return nil, validationError(fmt.Sprintf("%s list item is missing remote key field %q", r.descriptor.Name(), remoteName))
			}
			where[localName] = value
		}
		return where, nil
	}
	return nil, validationError(fmt.Sprintf("%s list item carries no remote identifier", r.descriptor.Name()))
}

// persistWritten stores rec locally, after a successful remote write or in
// place of one. When a concurrent writer already stored a row with the same
// key, rec takes over that row.
func (r *DefaultReconciler) persistWritten(ctx context.Context, rec *record.Record) error {
	table := r.descriptor.Table()
	if rec.Persisted() {
		return r.store.Update(ctx, table, rec)
	}

	outcome, err := r.store.Create(ctx, table, rec)
	if err != nil || outcome == store.Created {
		return err
	}

	r.metrics.ObserveDuplicateRecovery(r.descriptor.Name())
	winner, err := r.findWinner(ctx, rec, nil)
	if err != nil {
		return err
	}
	if winner == nil {
		return conflictError(fmt.Sprintf("%s record with the same key already exists", r.descriptor.Name()), nil)
	}
	rec.ID = winner.ID
	return r.store.Update(ctx, table, rec)
}

func (r *DefaultReconciler) checkRecord(rec *record.Record) error {
	if rec == nil {
		return validationError("record must not be nil")
	}
	if rec.Type != "" && rec.Type != r.descriptor.Name() {
		return validationError(fmt.Sprintf("record of type %q handed to the %s reconciler", rec.Type, r.descriptor.Name()))
	}
	return nil
}

func (r *DefaultReconciler) observeWriteError(recordType string, operation string, err error) {
	if faults.IsCategory(err, faults.TimeoutError) {
		r.metrics.ObserveWrite(recordType, operation, writeOutcomeTimeout)
		return
	}
	r.metrics.ObserveWrite(recordType, operation, writeOutcomeError)
}
