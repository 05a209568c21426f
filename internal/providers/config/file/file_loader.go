package file

import (
	"context"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/debugctx"
	"github.com/crmarques/remotable/faults"
)

var _ config.Loader = (*FileLoader)(nil)
var _ config.Validator = (*FileLoader)(nil)

type FileLoader struct{}

func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) ResolvePath(path string) (string, error) {
	return resolveConfigPath(path)
}

func (l *FileLoader) Load(ctx context.Context, path string) (config.Config, error) {
	resolvedPath, err := resolveConfigPath(path)
	if err != nil {
		return config.Config{}, err
	}
	debugctx.Printf(ctx, "loading config path=%q", resolvedPath)

	cfg, err := decodeConfigFile(resolvedPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg = applyConfigDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (l *FileLoader) Validate(_ context.Context, cfg config.Config) error {
	return validateConfig(applyConfigDefaults(cfg))
}

func validationError(message string, cause error) error {
	return faults.NewTypedError(faults.ValidationError, message, cause)
}

func notFoundError(message string, cause error) error {
	return faults.NewTypedError(faults.NotFoundError, message, cause)
}

func internalError(message string, cause error) error {
	return faults.NewTypedError(faults.InternalError, message, cause)
}
