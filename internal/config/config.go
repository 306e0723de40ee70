// Package config loads and validates the runtime configuration from
// config.yaml, applying defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seolab/seopilot/internal/job"
	"github.com/seolab/seopilot/internal/otelx"
)

// RouterConfig tunes message routing behavior.
type RouterConfig struct {
	// BusyWindowMS is how long a participant stays processing after a
	// message, in milliseconds. 0 uses the default (2000).
	BusyWindowMS int `yaml:"busy_window_ms"`
	// ReplyDelayMS is the synthesized reply latency in milliseconds.
	// 0 uses the default (1500); negative disables auto-replies.
	ReplyDelayMS int `yaml:"reply_delay_ms"`
}

// TasksConfig tunes the task engine.
type TasksConfig struct {
	// Workers is the completion worker count. 0 uses the default (4).
	Workers int `yaml:"workers"`
	// MinDelaySeconds and MaxDelaySeconds bound the simulated task
	// duration. Zero values use the defaults (3 and 8).
	MinDelaySeconds int `yaml:"min_delay_seconds"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
	// Seed fixes the duration randomness. 0 seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

// SchedulerConfig tunes the job scheduler loop.
type SchedulerConfig struct {
	// TickSeconds is the due-job poll interval. 0 uses the default (30).
	TickSeconds int `yaml:"tick_seconds"`
}

type Config struct {
	LogLevel string `yaml:"log_level"`
	// Quiet suppresses log output entirely.
	Quiet bool `yaml:"quiet"`

	Router    RouterConfig    `yaml:"router"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry otelx.Config    `yaml:"telemetry"`

	// Jobs are seeded into the scheduler at startup.
	Jobs []job.Config `yaml:"jobs"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Tasks: TasksConfig{
			MinDelaySeconds: 3,
			MaxDelaySeconds: 8,
		},
		Scheduler: SchedulerConfig{TickSeconds: 30},
	}
}

// Load reads the config file at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEOPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SEOPILOT_TELEMETRY"); v == "1" || v == "true" {
		cfg.Telemetry.Enabled = true
	}
}

func validate(cfg *Config) error {
	if cfg.Tasks.Workers < 0 {
		return fmt.Errorf("tasks.workers must not be negative, got %d", cfg.Tasks.Workers)
	}
	if cfg.Tasks.MinDelaySeconds < 0 || cfg.Tasks.MaxDelaySeconds < cfg.Tasks.MinDelaySeconds {
		return fmt.Errorf("tasks delay bounds invalid: min=%d max=%d",
			cfg.Tasks.MinDelaySeconds, cfg.Tasks.MaxDelaySeconds)
	}
	if cfg.Scheduler.TickSeconds < 0 {
		return fmt.Errorf("scheduler.tick_seconds must not be negative, got %d", cfg.Scheduler.TickSeconds)
	}
	for i, jc := range cfg.Jobs {
		if err := jc.Schedule.Validate(); err != nil {
			return fmt.Errorf("jobs[%d] %q: %w", i, jc.Name, err)
		}
	}
	return nil
}

// BusyWindow returns the router busy window as a duration.
func (c Config) BusyWindow() time.Duration {
	return time.Duration(c.Router.BusyWindowMS) * time.Millisecond
}

// ReplyDelay returns the synthesized reply latency as a duration.
// Negative means auto-replies are disabled.
func (c Config) ReplyDelay() time.Duration {
	return time.Duration(c.Router.ReplyDelayMS) * time.Millisecond
}

// TaskDelayBounds returns the simulated task duration bounds.
func (c Config) TaskDelayBounds() (min, max time.Duration) {
	return time.Duration(c.Tasks.MinDelaySeconds) * time.Second,
		time.Duration(c.Tasks.MaxDelaySeconds) * time.Second
}

// SchedulerTick returns the due-job poll interval.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}
