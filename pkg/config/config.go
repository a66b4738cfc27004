// Package config loads the greenpool daemon configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
	"github.com/vnykmshr/greenpool/pkg/control"
	"github.com/vnykmshr/greenpool/pkg/metrics"
	"github.com/vnykmshr/greenpool/pkg/scheduling/taskpool"
)

// Config is the top-level daemon configuration.
type Config struct {
	Pool    PoolConfig    `yaml:"pool"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Control ControlConfig `yaml:"control"`
}

// PoolConfig configures the task pool.
type PoolConfig struct {
	Name        string        `yaml:"name"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	// StopTimeout bounds how long shutdown waits before killing jobs.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// ControlConfig configures the Redis revoke channel. An empty RedisAddr
// disables it.
type ControlConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Name:        "default",
			Concurrency: taskpool.DefaultConcurrency,
			StopTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: metrics.DefaultNamespace,
		},
		Control: ControlConfig{
			Channel: control.DefaultChannel,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("config", "pool.concurrency", c.Pool.Concurrency); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("config", "pool.timeout", c.Pool.Timeout); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("config", "pool.stop_timeout", c.Pool.StopTimeout); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return gferrors.NewValidationError("config", "log.format", c.Log.Format, "unknown format").
			WithHint("use text or json")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return gferrors.NewValidationError("config", "log.level", c.Log.Level, "unknown level").
			WithHint("use debug, info, warn or error")
	}
	if c.Metrics.Enabled {
		if err := validation.ValidateNotEmpty("config", "metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}
	if c.Control.RedisAddr != "" {
		if err := validation.ValidateNotEmpty("config", "control.channel", c.Control.Channel); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// TaskPool converts the pool section into a taskpool.Config.
func (c Config) TaskPool() taskpool.Config {
	return taskpool.Config{
		Name:        c.Pool.Name,
		Concurrency: c.Pool.Concurrency,
		Timeout:     c.Pool.Timeout,
	}
}
