// Package config holds Tally's runtime configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// TALLY_-prefixed environment variables (TALLY_AGENT_ID,
// TALLY_REMINDERS_COOLDOWN, ...). The resolved Config is passed explicitly
// to every component; there is no package-level instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "TALLY"

// Config is the full Tally configuration.
type Config struct {
	// Directory holding tally.db.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// Identity used when a request does not name one.
	AgentID string `yaml:"agent_id" mapstructure:"agent_id"`
	WorldID string `yaml:"world_id" mapstructure:"world_id"`

	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Reminders RemindersConfig `yaml:"reminders" mapstructure:"reminders"`
	Rollover  RolloverConfig  `yaml:"rollover" mapstructure:"rollover"`
}

// HTTPConfig configures the REST API listener. An empty Addr disables it
// under `tally serve`.
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// RemindersConfig configures the overdue reminder scan.
type RemindersConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	Cooldown      time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// RolloverConfig configures the daily task reset.
type RolloverConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		AgentID: "tally",
		WorldID: "default",
		HTTP:    HTTPConfig{Addr: "127.0.0.1:7420"},
		Reminders: RemindersConfig{
			Enabled:       true,
			CheckInterval: time.Hour,
			Cooldown:      24 * time.Hour,
		},
		Rollover: RolloverConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
	}
}

// DefaultDataDir returns ~/.tally, or .tally when the home directory is
// unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tally"
	}
	return filepath.Join(home, ".tally")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load resolves the configuration. A missing file at path is not an error:
// defaults and environment overrides still apply. An empty path means
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, def)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("agent_id", def.AgentID)
	v.SetDefault("world_id", def.WorldID)
	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("reminders.enabled", def.Reminders.Enabled)
	v.SetDefault("reminders.check_interval", def.Reminders.CheckInterval)
	v.SetDefault("reminders.cooldown", def.Reminders.Cooldown)
	v.SetDefault("rollover.enabled", def.Rollover.Enabled)
	v.SetDefault("rollover.interval", def.Rollover.Interval)
}

// Validate checks the fields components rely on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DataDir) == "":
		return errors.New("config: data_dir is required")
	case strings.TrimSpace(c.AgentID) == "":
		return errors.New("config: agent_id is required")
	case c.Reminders.CheckInterval <= 0:
		return fmt.Errorf("config: reminders.check_interval must be positive, got %s", c.Reminders.CheckInterval)
	case c.Reminders.Cooldown <= 0:
		return fmt.Errorf("config: reminders.cooldown must be positive, got %s", c.Reminders.Cooldown)
	case c.Rollover.Interval <= 0:
		return fmt.Errorf("config: rollover.interval must be positive, got %s", c.Rollover.Interval)
	}
	return nil
}

// WriteDefault writes the default configuration to path as YAML. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	header := "# Tally configuration. Environment variables prefixed TALLY_ override these values.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o600)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
