package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crmarques/remotable/config"
	"go.yaml.in/yaml/v3"
)

func decodeConfigFile(path string) (config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Config{}, notFoundError(fmt.Sprintf("config file %q does not exist", path), err)
		}
		return config.Config{}, internalError(fmt.Sprintf("failed to read config file %q", path), err)
	}
	return decodeConfig(data)
}

// decodeConfig expands ${VAR} placeholders in string values and then decodes
// strictly, rejecting unknown keys.
func decodeConfig(data []byte) (config.Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return config.Config{}, validationError("invalid config yaml", err)
	}
	if err := walkPlaceholderNode(&root); err != nil {
		return config.Config{}, validationError("invalid config placeholder", err)
	}
	expanded, err := yaml.Marshal(&root)
	if err != nil {
		return config.Config{}, internalError("failed to re-encode config yaml", err)
	}

	var cfg config.Config
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return config.Config{}, validationError("invalid config yaml", err)
	}
	return cfg, nil
}

func resolveConfigPath(explicitPath string) (string, error) {
	path := strings.TrimSpace(explicitPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.ConfigFileEnvVar))
	}
	if path == "" {
		path = config.DefaultConfigPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", internalError("failed to resolve user home directory", err)
		}
		if path == "~" {
			path = homeDir
		} else {
			path = filepath.Join(homeDir, strings.TrimPrefix(path, "~/"))
		}
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == "." {
		return "", validationError("config path is invalid", errors.New("resolved to current directory"))
	}

	absolutePath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", internalError("failed to resolve config path", err)
	}
	return absolutePath, nil
}
