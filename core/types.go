package core

import (
	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/metrics"
	"github.com/crmarques/remotable/reconciler"
	"github.com/crmarques/remotable/remote"
	"github.com/crmarques/remotable/store"
	"github.com/crmarques/remotable/suppress"
	"go.opentelemetry.io/otel/trace"
)

// Remotable wires one configuration into a local store, a remote gateway and
// one reconciler per declared record type.
type Remotable struct {
	Config      config.Config
	Store       store.Store
	Gateway     remote.Gateway
	Metrics     *metrics.Metrics
	Suppression *suppress.Registry

	recordTypes []string
	reconcilers map[string]reconciler.Reconciler
}

type BootstrapConfig struct {
	ConfigPath     string
	TracerProvider trace.TracerProvider
	Suppression    *suppress.Registry
}
