package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/debugctx"
	"github.com/crmarques/remotable/faults"
	configfile "github.com/crmarques/remotable/internal/providers/config/file"
	httpremote "github.com/crmarques/remotable/internal/providers/remote/http"
	"github.com/crmarques/remotable/internal/providers/store/sqlite"
	"github.com/crmarques/remotable/metrics"
	"github.com/crmarques/remotable/reconciler"
	"github.com/crmarques/remotable/suppress"
)

func NewConfigLoader() *configfile.FileLoader {
	return configfile.NewFileLoader()
}

// NewRemotable loads the configuration at opts.ConfigPath and wires it.
func NewRemotable(ctx context.Context, opts BootstrapConfig) (*Remotable, error) {
	cfg, err := NewConfigLoader().Load(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return NewRemotableFromConfig(ctx, cfg, opts)
}

// NewRemotableFromConfig opens the local store, ensures one table per record
// type and builds the reconcilers. The store is closed again when any step
// fails.
func NewRemotableFromConfig(ctx context.Context, cfg config.Config, opts BootstrapConfig) (*Remotable, error) {
	if err := NewConfigLoader().Validate(ctx, cfg); err != nil {
		return nil, err
	}

	descriptors, err := BuildDescriptors(cfg)
	if err != nil {
		return nil, err
	}

	sqliteStore, err := sqlite.Open(ctx, cfg.Store.SQLite.DSN)
	if err != nil {
		return nil, err
	}
	closeOnError := func(err error) (*Remotable, error) {
		_ = sqliteStore.Close()
		return nil, err
	}

	for _, desc := range descriptors {
		if err := sqliteStore.EnsureTable(ctx, TableSpecFor(desc)); err != nil {
			return closeOnError(err)
		}
	}

	m := metrics.New()
	gatewayOptions := []httpremote.GatewayOption{httpremote.WithMetrics(m)}
	if opts.TracerProvider != nil {
		gatewayOptions = append(gatewayOptions, httpremote.WithTracerProvider(opts.TracerProvider))
	}
	gateway, err := httpremote.NewHTTPRemoteGateway(cfg.Remote, gatewayOptions...)
	if err != nil {
		return closeOnError(err)
	}

	registry := opts.Suppression
	if registry == nil {
		registry = suppress.Default
	}

	remotable := &Remotable{
		Config:      cfg,
		Store:       sqliteStore,
		Gateway:     gateway,
		Metrics:     m,
		Suppression: registry,
		recordTypes: make([]string, 0, len(descriptors)),
		reconcilers: make(map[string]reconciler.Reconciler, len(descriptors)),
	}
	for _, desc := range descriptors {
		reconcilerOptions := []reconciler.Option{
			reconciler.WithMetrics(m),
			reconciler.WithSuppressionRegistry(registry),
		}
		if opts.TracerProvider != nil {
			reconcilerOptions = append(reconcilerOptions, reconciler.WithTracerProvider(opts.TracerProvider))
		}
		recordReconciler, err := reconciler.New(desc, sqliteStore, gateway, reconcilerOptions...)
		if err != nil {
			return closeOnError(err)
		}
		remotable.recordTypes = append(remotable.recordTypes, desc.Name())
		remotable.reconcilers[desc.Name()] = recordReconciler
	}

	debugctx.Printf(
		ctx,
		"remotable ready base_url=%q record_types=%q",
		gateway.BaseURL(),
		strings.Join(remotable.recordTypes, ","),
	)
	return remotable, nil
}

// Reconciler returns the reconciler of the named record type.
func (r *Remotable) Reconciler(recordType string) (reconciler.Reconciler, error) {
	recordType = strings.TrimSpace(recordType)
	found, ok := r.reconcilers[recordType]
	if !ok {
		return nil, faults.NewTypedError(
			faults.NotFoundError,
			fmt.Sprintf("record type %q is not configured (known: %s)", recordType, strings.Join(r.recordTypes, ", ")),
			nil,
		)
	}
	return found, nil
}

// RecordTypes lists the configured record types in declaration order.
func (r *Remotable) RecordTypes() []string {
	return append([]string(nil), r.recordTypes...)
}

func (r *Remotable) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// WriteMetrics dumps the collected metrics in the Prometheus text format.
func (r *Remotable) WriteMetrics(path string) error {
	return r.Metrics.WriteTextfile(path)
}
