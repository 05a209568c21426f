package config

import "context"

// Loader reads and validates a configuration document. An empty path is
// resolved from ConfigFileEnvVar, then DefaultConfigPath.
type Loader interface {
	Load(ctx context.Context, path string) (Config, error)
	ResolvePath(path string) (string, error)
}

type Validator interface {
	Validate(ctx context.Context, cfg Config) error
}
