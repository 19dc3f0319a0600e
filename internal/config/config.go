package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

// DefaultConfigFile is the agent configuration file looked up when no path is given.
const DefaultConfigFile = "cicdsim.yaml"

// Config represents the agent configuration.
type Config struct {
	Watch     WatchConfig     `yaml:"watch"`
	Project   ProjectSettings `yaml:"project"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Image     ImageConfig     `yaml:"image"`
	HTTP      HTTPConfig      `yaml:"http"`
	Retention RetentionConfig `yaml:"retention"`
	Notify    NotifyConfig    `yaml:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WatchConfig configures the debounced filesystem watchers.
type WatchConfig struct {
	Roots       []string `yaml:"roots"`
	QuietWindow string   `yaml:"quiet_window"` // duration string, e.g. "60s"
	Ignore      []string `yaml:"ignore,omitempty"`
}

// ProjectSettings controls how the per-project file is located inside a root.
type ProjectSettings struct {
	ConfigFile string `yaml:"config_file"`
}

// PipelineConfig configures pipeline execution.
type PipelineConfig struct {
	TestTimeout string `yaml:"test_timeout"`
}

// ImageConfig configures the container engine used to build and push images.
type ImageConfig struct {
	Engine    string          `yaml:"engine"`
	DryRun    bool            `yaml:"dry_run"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	PushRetry PushRetryConfig `yaml:"push_retry"`
}

// BreakerConfig configures the circuit breaker guarding registry pushes.
type BreakerConfig struct {
	Failures int    `yaml:"failures"`
	Cooldown string `yaml:"cooldown"`
}

// PushRetryConfig configures retries of failed registry pushes.
type PushRetryConfig struct {
	Backoff      string `yaml:"backoff"` // fixed|linear|exponential
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
	MaxRetries   *int   `yaml:"max_retries,omitempty"`
}

// HTTPConfig configures the reporting surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RetentionConfig bounds the number and age of finished build records.
type RetentionConfig struct {
	// MaxRecords of 0 disables the count cap.
	MaxRecords    *int   `yaml:"max_records,omitempty"`
	// MaxAge empty or "0s" disables the age sweep.
	MaxAge        string `yaml:"max_age,omitempty"`
	SweepInterval string `yaml:"sweep_interval"`
}

// NotifyConfig configures optional NATS notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Load reads the agent configuration from path. A missing file is not an
// error when allowMissing is set: the defaults are returned instead.
func Load(path string, allowMissing bool) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && allowMissing {
			slog.Debug("No agent config file, using defaults", slog.String("path", path))
			cfg := &Config{}
			if err := finalize(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		return nil, ferrors.FileSystemError("failed to read config file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	return Parse(data)
}

// Parse decodes agent configuration YAML, expanding ${VAR} references and
// applying defaults before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.ConfigError("failed to unmarshal config").WithCause(err).Build()
	}
	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config) error {
	applyDefaults(cfg)
	return Validate(cfg)
}

// QuietWindowDuration returns the parsed quiet window.
func (c *Config) QuietWindowDuration() time.Duration { return mustDuration(c.Watch.QuietWindow) }

// TestTimeoutDuration returns the parsed test timeout.
func (c *Config) TestTimeoutDuration() time.Duration { return mustDuration(c.Pipeline.TestTimeout) }

// BreakerCooldownDuration returns the parsed breaker cooldown.
func (c *Config) BreakerCooldownDuration() time.Duration { return mustDuration(c.Image.Breaker.Cooldown) }

// PushRetryInitialDelay returns the parsed delay before the first push retry.
func (c *Config) PushRetryInitialDelay() time.Duration {
	return mustDuration(c.Image.PushRetry.InitialDelay)
}

// PushRetryMaxDelay returns the parsed cap on push retry delays.
func (c *Config) PushRetryMaxDelay() time.Duration { return mustDuration(c.Image.PushRetry.MaxDelay) }

// PushRetries returns how often a failed push is retried.
func (c *Config) PushRetries() int {
	if c.Image.PushRetry.MaxRetries == nil {
		return defaultPushRetries
	}
	return *c.Image.PushRetry.MaxRetries
}

// MaxAgeDuration returns the parsed retention max age; zero disables the sweep.
func (c *Config) MaxAgeDuration() time.Duration { return mustDuration(c.Retention.MaxAge) }

// SweepIntervalDuration returns the parsed retention sweep interval.
func (c *Config) SweepIntervalDuration() time.Duration {
	return mustDuration(c.Retention.SweepInterval)
}

// MaxRecordsLimit returns the cap on retained finished records; zero means unbounded.
func (c *Config) MaxRecordsLimit() int {
	if c.Retention.MaxRecords == nil {
		return defaultMaxRecords
	}
	return *c.Retention.MaxRecords
}

// MetricsEnabled reports whether Prometheus metrics are turned on.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// mustDuration parses a duration string already checked by Validate.
func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Init writes a starter agent configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	cfg := &Config{}
	applyDefaults(cfg)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ferrors.InternalError("failed to marshal starter config").WithCause(err).Build()
	}

	header := "# cicdsim agent configuration\n# Values may reference environment variables as ${VAR}.\n\n"
	// #nosec G306 -- config files are meant to be readable
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return ferrors.FileSystemError("failed to write config file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	slog.Info("Configuration file created", slog.String("path", path))
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("roots=%v quiet_window=%s engine=%s addr=%s",
		c.Watch.Roots, c.Watch.QuietWindow, c.Image.Engine, c.HTTP.Addr)
}
