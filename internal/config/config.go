// Package config loads the daemon configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers understood by engine.Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type HTTP struct {
	Port            string        `yaml:"port"`
	DisableTLS      bool          `yaml:"disable_tls"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	WebhookRate     float64       `yaml:"webhook_rate_per_sec"`
	WebhookBurst    int           `yaml:"webhook_burst"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
}

type Storage struct {
	Driver        string `yaml:"driver"`
	DataDir       string `yaml:"data_dir"`
	DSN           string `yaml:"dsn"`
	RedisURL      string `yaml:"redis_url"`
	RedisPrefix   string `yaml:"redis_prefix"`
	EncryptionKey string `yaml:"encryption_key"`
}

type Export struct {
	TimeZone   string `yaml:"time_zone"`
	TimeLayout string `yaml:"time_layout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Storage Storage `yaml:"storage"`
	Export  Export  `yaml:"export"`
	Log     Log     `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Port:            "7002",
			DisableTLS:      true,
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigin:   "*",
		},
		Storage: Storage{
			Driver:      DriverMemory,
			DataDir:     "./data",
			RedisPrefix: "celerix:leads",
		},
		Export: Export{
			TimeZone:   "Local",
			TimeLayout: "1/2/2006, 3:04:05 PM",
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CELERIX_LEADS_HTTP_PORT", &c.HTTP.Port)
	str("CELERIX_LEADS_ALLOWED_ORIGIN", &c.HTTP.AllowedOrigin)
	str("CELERIX_LEADS_STORAGE", &c.Storage.Driver)
	str("CELERIX_LEADS_DATA_DIR", &c.Storage.DataDir)
	str("CELERIX_LEADS_DSN", &c.Storage.DSN)
	str("CELERIX_LEADS_REDIS_URL", &c.Storage.RedisURL)
	str("CELERIX_LEADS_ENCRYPTION_KEY", &c.Storage.EncryptionKey)
	str("CELERIX_LEADS_TIME_ZONE", &c.Export.TimeZone)
	str("CELERIX_LEADS_LOG_LEVEL", &c.Log.Level)
	str("CELERIX_LEADS_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("CELERIX_DISABLE_TLS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CELERIX_DISABLE_TLS: %w", err)
		}
		c.HTTP.DisableTLS = b
	}
	if v, ok := lookup("CELERIX_LEADS_WEBHOOK_RATE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CELERIX_LEADS_WEBHOOK_RATE: %w", err)
		}
		c.HTTP.WebhookRate = f
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http.port is required"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.HTTP.WebhookRate < 0 || c.HTTP.WebhookBurst < 0 {
		errs = append(errs, errors.New("http webhook rate limit must not be negative"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the file driver"))
		}
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver))
		}
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if k := c.Storage.EncryptionKey; k != "" && len(k) != 32 {
		errs = append(errs, errors.New("storage.encryption_key must be 32 bytes"))
	}

	if _, err := c.Export.Location(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Location resolves the configured export time zone.
func (e Export) Location() (*time.Location, error) {
	if e.TimeZone == "" || e.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("export.time_zone: %w", err)
	}
	return loc, nil
}
