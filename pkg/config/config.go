// Package config handles loading and saving bb configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/bb/config.yaml
//   - State:  ~/.local/state/bb/ (client state store)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendConfig locates the analysis backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// DefaultsConfig holds the defaults pre-filled into the submission form.
type DefaultsConfig struct {
	TimeRangeDays int  `yaml:"time_range_days,omitempty"`
	IncludeSlack  bool `yaml:"include_slack,omitempty"`
	EnableAI      bool `yaml:"enable_ai,omitempty"`
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	Theme    string `yaml:"theme,omitempty"` // dark, light, auto
	Headless bool   `yaml:"headless,omitempty"`
}

// Config is the top-level configuration for bb.
type Config struct {
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	UI       UIConfig       `yaml:"ui,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			TimeRangeDays: 30,
			EnableAI:      true,
		},
		UI: UIConfig{
			Theme: "auto",
		},
	}
}

// ConfigDir returns the XDG config directory for bb.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "bb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bb")
}

// StateDir returns the XDG state directory for bb.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "bb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "bb")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// StatePath returns the full path to the client state store.
func StatePath() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "state.db")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Defaults.TimeRangeDays <= 0 {
		cfg.Defaults.TimeRangeDays = 30
	}
	cfg.Backend.BaseURL = strings.TrimRight(expandHome(cfg.Backend.BaseURL), "/")

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
