package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
// Keys absent from the file keep their zero value; use Merge to layer the
// result over Defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Resolve returns Defaults, overlaid with the file at path (if any), then
// with FOUNDATIONSD_* environment variables.
func Resolve(path string, getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		fileCfg, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = Merge(cfg, fileCfg)
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}
