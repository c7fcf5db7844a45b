// Package config loads fieldsync settings from a YAML file and FIELDSYNC_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/db/badgerstore"
	"github.com/kimhsiao/fieldsync/backend/internal/db/redisstore"
	"github.com/kimhsiao/fieldsync/backend/internal/errors"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIELDSYNC_"

// Config is the full application configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir" validate:"required"`
	Backend  string         `yaml:"backend" validate:"oneof=sqlite badger redis"`
	Listen   string         `yaml:"listen" validate:"required,hostname_port"`
	Redis    RedisConfig    `yaml:"redis"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Drain    DrainConfig    `yaml:"drain"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Log      LogConfig      `yaml:"log"`
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// DeliveryConfig points at the job-tracking backend.
type DeliveryConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"omitempty,url"`
	AuthToken     string        `yaml:"auth_token"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
}

// DrainConfig controls drain passes.
type DrainConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=64"`
	// MaxRetries of 0 retries forever.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
}

// TriggerConfig controls when drains happen.
type TriggerConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval" validate:"gt=0"`
	// Signals enables SIGUSR1/SIGUSR2 visibility signals.
	Signals bool `yaml:"signals"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Backend: BackendSQLite,
		Listen:  "127.0.0.1:8091",
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Delivery: DeliveryConfig{
			Timeout: 30 * time.Second,
		},
		Drain: DrainConfig{
			Concurrency: 1,
		},
		Trigger: TriggerConfig{
			ProbeInterval: 15 * time.Second,
			Signals:       true,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConfigInvalid, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrConfigInvalid, "failed to parse config file", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from FIELDSYNC_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrap(errors.ErrConfigInvalid, fmt.Sprintf("%s%s must be an integer", EnvPrefix, name), err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrap(errors.ErrConfigInvalid, fmt.Sprintf("%s%s must be a duration", EnvPrefix, name), err)
		}
		*dst = d
		return nil
	}

	str("DATA_DIR", &c.DataDir)
	str("BACKEND", &c.Backend)
	str("LISTEN", &c.Listen)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("BACKEND_URL", &c.Delivery.BaseURL)
	str("AUTH_TOKEN", &c.Delivery.AuthToken)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "SIGNALS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrap(errors.ErrConfigInvalid, EnvPrefix+"SIGNALS must be a boolean", err)
		}
		c.Trigger.Signals = b
	}

	for _, f := range []func() error{
		func() error { return num("REDIS_DB", &c.Redis.DB) },
		func() error { return num("DRAIN_CONCURRENCY", &c.Drain.Concurrency) },
		func() error { return num("MAX_RETRIES", &c.Drain.MaxRetries) },
		func() error { return dur("DELIVERY_TIMEOUT", &c.Delivery.Timeout) },
		func() error { return dur("PROBE_INTERVAL", &c.Trigger.ProbeInterval) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "invalid configuration", err)
	}
	return nil
}

// NewStore builds the SubmissionStore selected by Backend. The store is not
// opened.
func (c *Config) NewStore() (db.SubmissionStore, error) {
	switch c.Backend {
	case BackendSQLite:
		return db.NewSQLiteStore(c.DataDir), nil
	case BackendBadger:
		return badgerstore.New(filepath.Join(c.DataDir, "badger")), nil
	case BackendRedis:
		return redisstore.New(redisstore.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		}), nil
	default:
		return nil, errors.New(errors.ErrConfigInvalid, fmt.Sprintf("unknown store backend %q", c.Backend))
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "failed to create config directory", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "failed to encode config", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "failed to write config file", err)
	}
	return nil
}
