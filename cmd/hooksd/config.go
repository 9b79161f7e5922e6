package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "hooksd.yaml"

type daemonConfig struct {
	Database databaseConfig `yaml:"database"`
	Secrets  secretsConfig  `yaml:"secrets"`
	Queue    queueConfig    `yaml:"queue"`
	Schedule scheduleConfig `yaml:"schedule"`
	Cache    cacheConfig    `yaml:"cache"`
	Logging  loggingConfig  `yaml:"logging"`
	Targets  []targetConfig `yaml:"targets"`
	Hooks    map[string]any `yaml:"hooks"`
}

type databaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type secretsConfig struct {
	AppKey  string `yaml:"app_key"`
	KeyID   string `yaml:"key_id"`
	Version int    `yaml:"version"`
}

type queueConfig struct {
	DispatchInterval  time.Duration `yaml:"dispatch_interval"`
	DispatchBatch     int           `yaml:"dispatch_batch"`
	ErrorDelay        time.Duration `yaml:"error_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

type scheduleConfig struct {
	Prune string `yaml:"prune"`
}

type cacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type loggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// targetConfig declares a delivery target known to this daemon.
type targetConfig struct {
	Kind          string   `yaml:"kind"`
	ID            string   `yaml:"id"`
	Owner         string   `yaml:"owner"`
	EventTypes    []string `yaml:"event_types"`
	GitRefPattern bool     `yaml:"git_ref_pattern"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Database: databaseConfig{
			Driver: "postgres",
		},
		Queue: queueConfig{
			DispatchInterval:  time.Second,
			DispatchBatch:     core.DefaultOutboxDispatcherConfig().BatchSize,
			ErrorDelay:        30 * time.Second,
			MaxRetryDelay:     time.Hour,
			VisibilityTimeout: 2 * time.Minute,
		},
		Schedule: scheduleConfig{
			Prune: "@daily",
		},
		Cache: cacheConfig{
			Enabled: true,
			TTL:     time.Minute,
		},
		Logging: loggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadDaemonConfig layers defaults < YAML < environment. A missing file is
// not an error.
func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	setString(&cfg.Database.Driver, "HOOKS_DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "HOOKS_DATABASE_URL")
	setString(&cfg.Secrets.AppKey, "HOOKS_APP_KEY")
	setString(&cfg.Schedule.Prune, "HOOKS_PRUNE_SCHEDULE")
	setString(&cfg.Logging.Level, "HOOKS_LOG_LEVEL")
	setDuration(&cfg.Queue.DispatchInterval, "HOOKS_DISPATCH_INTERVAL")
	setDuration(&cfg.Queue.VisibilityTimeout, "HOOKS_QUEUE_VISIBILITY_TIMEOUT")
	setInt(&cfg.Queue.DispatchBatch, "HOOKS_DISPATCH_BATCH")

	return cfg, cfg.validate()
}

func (c daemonConfig) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Queue.DispatchInterval <= 0 {
		return fmt.Errorf("queue.dispatch_interval must be positive")
	}
	for i, target := range c.Targets {
		if strings.TrimSpace(target.Kind) == "" || strings.TrimSpace(target.ID) == "" {
			return fmt.Errorf("targets[%d]: kind and id are required", i)
		}
	}
	return nil
}

// LoadRaw feeds the hooks section to core's cfgx provider, so service
// settings are validated by the same rules as embedded use.
func (c daemonConfig) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(c.Hooks))
	for key, value := range c.Hooks {
		out[key] = value
	}
	return out, nil
}

var _ core.RawConfigLoader = daemonConfig{}

func setString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func setDuration(target *time.Duration, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}
