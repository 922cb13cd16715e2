package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agentgate/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	localConfigFile = "agentgate.yaml"
	userConfigDir   = ".config/agentgate"
	userConfigFile  = "config.yaml"
)

// Environment variables consulted when the config file leaves Region empty.
const (
	regionEnv         = "AGENTGATE_REGION"
	fallbackRegionEnv = "AWS_REGION"
)

// Load reads configuration for the current invocation. When explicitPath is
// non-empty that file must exist; otherwise the loader searches
// ./agentgate.yaml and ~/.config/agentgate/config.yaml in that order and
// falls back to the built-in defaults when neither exists.
//
// The resolved path is returned so callers (such as the serve command's file
// watcher) know which file to observe. It is empty when defaults were used.
func Load(explicitPath string) (Config, string, error) {
	cfg := Default()

	path, err := resolvePath(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	if path == "" {
		logging.Info("Config", "No configuration file found, using defaults")
		applyEnv(&cfg)
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, "", fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, "", fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)

	logging.Info("Config", "Loaded configuration from %s", path)
	return cfg, path, nil
}

func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}

	if _, err := os.Stat(localConfigFile); err == nil {
		return localConfigFile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config file %s: %w", localConfigFile, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	userPath := filepath.Join(home, userConfigDir, userConfigFile)
	if _, err := os.Stat(userPath); err == nil {
		return userPath, nil
	}
	return "", nil
}

func applyEnv(cfg *Config) {
	if cfg.Region != "" {
		return
	}
	if v := os.Getenv(regionEnv); v != "" {
		cfg.Region = v
		return
	}
	if v := os.Getenv(fallbackRegionEnv); v != "" {
		cfg.Region = v
	}
}
