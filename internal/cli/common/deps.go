package common

import (
	"context"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/reconciler"
)

// Session is the wired runtime a command works against: one reconciler per
// configured record type over a shared local store.
type Session interface {
	RecordTypes() []string
	Reconciler(recordType string) (reconciler.Reconciler, error)
	WriteMetrics(path string) error
	Close() error
}

type Opener func(ctx context.Context, configPath string) (Session, error)

type CommandDependencies struct {
	Open   Opener
	Loader config.Loader
}

func RequireLoader(deps CommandDependencies) (config.Loader, error) {
	if deps.Loader == nil {
		return nil, ValidationError("configuration loader is not configured", nil)
	}
	return deps.Loader, nil
}

// OpenSession opens a session for the configured path. The caller closes it.
func OpenSession(ctx context.Context, deps CommandDependencies, globalFlags *GlobalFlags) (Session, error) {
	if deps.Open == nil {
		return nil, ValidationError("remotable session is not configured", nil)
	}
	configPath := ""
	if globalFlags != nil {
		configPath = globalFlags.ConfigPath
	}
	return deps.Open(ctx, configPath)
}

// RequireReconciler opens a session and resolves the reconciler of
// recordType.
func RequireReconciler(ctx context.Context, deps CommandDependencies, globalFlags *GlobalFlags, recordType string) (Session, reconciler.Reconciler, error) {
	session, err := OpenSession(ctx, deps, globalFlags)
	if err != nil {
		return nil, nil, err
	}
	recordReconciler, err := session.Reconciler(recordType)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return session, recordReconciler, nil
}
