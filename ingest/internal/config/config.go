package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Validation ValidationConfig `mapstructure:"validation"`
	Store      StoreConfig      `mapstructure:"store"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	DLQ        DLQConfig        `mapstructure:"dlq"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type IngestionConfig struct {
	MaxEventSize int64 `mapstructure:"max_event_size"`
}

type ValidationConfig struct {
	RejectUnknownFields bool `mapstructure:"reject_unknown_fields"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	RedisURL      string        `mapstructure:"redis_url"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type AuthConfig struct {
	Mode   string `mapstructure:"mode"`
	Secret string `mapstructure:"secret"`
}

// RateLimitConfig caps events per project_id over a sliding window.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	Limit    int           `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`
}

type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NATSURL string `mapstructure:"nats_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("ingestion.max_event_size", 1048576)
	v.SetDefault("validation.reject_unknown_fields", true)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "./data/events")
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.redis_prefix", "lensai:events:")
	v.SetDefault("store.timeout", "30s")
	v.SetDefault("store.retry_attempts", 1)
	v.SetDefault("store.retry_backoff", "100ms")
	v.SetDefault("auth.mode", "none")
	v.SetDefault("auth.secret", "")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("ratelimit.limit", 1000)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lensai/ingest")
	}

	// Environment variables override, e.g. LENSAI_INGEST_STORE_BACKEND
	v.SetEnvPrefix("LENSAI_INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Ingestion.MaxEventSize <= 0 {
		errs = append(errs, errors.New("ingestion.max_event_size must be positive"))
	}

	switch strings.ToLower(c.Store.Backend) {
	case "file", "bbolt":
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the %s backend", c.Store.Backend))
		}
	case "redis":
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.RetryAttempts < 1 {
		errs = append(errs, errors.New("store.retry_attempts must be at least 1"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "", "none":
	case "hmac", "jwt":
		if c.Auth.Secret == "" {
			errs = append(errs, fmt.Errorf("auth.secret is required for auth mode %q", c.Auth.Mode))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RedisURL == "" {
			errs = append(errs, errors.New("ratelimit.redis_url is required when rate limiting is enabled"))
		}
		if c.RateLimit.Limit < 1 {
			errs = append(errs, errors.New("ratelimit.limit must be at least 1"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("ratelimit.window must be positive"))
		}
	}

	if c.DLQ.Enabled && c.DLQ.NATSURL == "" {
		errs = append(errs, errors.New("dlq.nats_url is required when the DLQ is enabled"))
	}

	return errors.Join(errs...)
}
