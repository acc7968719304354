// Package config loads the loop component definition and the runner settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tnez/RRF-Loop/pkg/loop"
	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/store"
)

// EnvPrefix prefixes environment overrides, e.g. RRFLOOP_TARGET_RUN_COUNT
const EnvPrefix = "RRFLOOP"

// MinTokenLength is the shortest accepted status.token
const MinTokenLength = 16

// Config is everything `rrfloop run` needs
type Config struct {
	// Definition keys
	TaskName       string `yaml:"task_name" mapstructure:"task_name"`
	DataDirectory  string `yaml:"data_directory" mapstructure:"data_directory"`
	TargetRunCount *int   `yaml:"target_run_count" mapstructure:"target_run_count"`

	// Component options
	MinTrialInterval time.Duration `yaml:"min_trial_interval" mapstructure:"min_trial_interval"`
	MinFreeBytes     uint64        `yaml:"min_free_bytes" mapstructure:"min_free_bytes"`
	SyncWrites       bool          `yaml:"sync_writes" mapstructure:"sync_writes"`

	// TrialCommand is run once per trial; empty completes each trial immediately
	TrialCommand []string `yaml:"trial_command,omitempty" mapstructure:"trial_command"`

	// Jumps lists the successor for each branch index
	Jumps []string `yaml:"jumps,omitempty" mapstructure:"jumps"`

	Store   store.Config  `yaml:"store" mapstructure:"store"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Status  StatusConfig  `yaml:"status,omitempty" mapstructure:"status"`
}

// LoggingConfig selects the operational log output
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
	File   bool   `yaml:"file" mapstructure:"file"`     // also write under the log directory
}

// TracingConfig enables OTLP span export
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// StatusConfig protects the status endpoint. An empty token leaves it open.
type StatusConfig struct {
	Token string `yaml:"token,omitempty" mapstructure:"token"`
}

// keys known to viper so AutomaticEnv can fill them in Unmarshal
var envKeys = []string{
	"task_name", "data_directory", "target_run_count",
	"min_trial_interval", "min_free_bytes", "sync_writes", "trial_command", "jumps",
	"store.type", "store.dsn", "store.max_open_conns", "store.max_idle_conns", "store.conn_max_lifetime",
	"logging.level", "logging.format", "logging.file",
	"tracing.enabled", "tracing.endpoint", "tracing.environment",
	"status.token",
}

// Defaults returns the optional settings. Definition keys have no defaults.
func Defaults() Config {
	return Config{
		Store:   store.Config{Type: "memory"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{Endpoint: "localhost:4318", Environment: "development"},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("min_trial_interval", d.MinTrialInterval)
	v.SetDefault("min_free_bytes", d.MinFreeBytes)
	v.SetDefault("sync_writes", d.SyncWrites)
	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.environment", d.Tracing.Environment)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at path, applies RRFLOOP_ environment overrides and
// validates the result. An empty path loads from the environment alone.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(v)
}

// LoadReader reads YAML from r, then applies environment overrides
func LoadReader(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

// Definition returns the component definition part of the config
func (c *Config) Definition() models.Definition {
	def := models.Definition{
		TaskName:      c.TaskName,
		DataDirectory: c.DataDirectory,
	}
	if c.TargetRunCount != nil {
		def.TargetRunCount = models.IntPtr(*c.TargetRunCount)
	}
	return def
}

// LoopOptions converts the component options
func (c *Config) LoopOptions() loop.Options {
	return loop.Options{
		MinTrialInterval: c.MinTrialInterval,
		MinFreeBytes:     c.MinFreeBytes,
		SyncWrites:       c.SyncWrites,
	}
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var errs []error
	if err := c.Definition().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MinTrialInterval < 0 {
		errs = append(errs, configError("min_trial_interval must be non-negative"))
	}
	if n := len(c.Jumps); n != 0 && n < 2 {
		errs = append(errs, configError(fmt.Sprintf("jumps needs an entry for branch 0 and 1, got %d", n)))
	}
	switch c.Store.Type {
	case "", "memory", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		errs = append(errs, configError(fmt.Sprintf("unsupported store type %q", c.Store.Type)))
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, configError(fmt.Sprintf("logging.format must be text or json, got %q", c.Logging.Format)))
	}
	if t := c.Status.Token; t != "" && len(t) < MinTokenLength {
		errs = append(errs, configError(fmt.Sprintf("status.token must be at least %d characters", MinTokenLength)))
	}
	return errors.Join(errs...)
}

func configError(message string) error {
	return models.NewComponentError(models.ErrorKindConfiguration, "load_config", message, nil)
}

// Marshal renders the effective config as YAML with the status token masked
func Marshal(c *Config) ([]byte, error) {
	out := *c
	if out.Status.Token != "" {
		out.Status.Token = "********"
	}
	return yaml.Marshal(&out)
}
