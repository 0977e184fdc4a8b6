// Package config loads the YAML file backing the composition root's
// static knobs (cascade timeouts, the bridge's listen port/secret,
// device routing overrides). Precedence, per spec, is defaults < YAML
// file < environment — this package only ever supplies the middle
// tier; main.go layers environment variables on top of what Load
// returns.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the static-knob subset exposed via YAML. Zero values mean
// "no override" — the caller's own default or env var applies.
type Config struct {
	FallbackTimeoutSeconds int    `yaml:"fallback_timeout_seconds"`
	ModelPath              string `yaml:"model_path"`
	DevicePreference       string `yaml:"device_preference"`
	BridgePort             int    `yaml:"bridge_port"`
	BridgeSecret           string `yaml:"bridge_secret"`
}

// Load reads path and parses it as YAML. A missing file is not an
// error — it returns a zero-value Config, same as store.Store's own
// "absent document means start fresh" convention.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
