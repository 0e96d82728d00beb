package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete seeder configuration
type Config struct {
	Version  string              `mapstructure:"version" yaml:"version"`
	Defaults DefaultsConfig      `mapstructure:"defaults" yaml:"defaults"`
	Catalog  map[string][]string `mapstructure:"catalog" yaml:"catalog"`
	Routes   []string            `mapstructure:"routes" yaml:"routes"`
}

// DefaultsConfig holds default seeder settings
type DefaultsConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	AuthMode    string        `mapstructure:"auth_mode" yaml:"auth_mode"`
	Secret      string        `mapstructure:"secret" yaml:"secret"`
	Count       int           `mapstructure:"count" yaml:"count"`
	Projects    int           `mapstructure:"projects" yaml:"projects"`
	TimeSpread  time.Duration `mapstructure:"time_spread" yaml:"time_spread"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	ErrorRate   float64       `mapstructure:"error_rate" yaml:"error_rate"`
	Seed        int64         `mapstructure:"seed" yaml:"seed"`
}

// DefaultCatalog maps providers to the models the generator picks from.
var DefaultCatalog = map[string][]string{
	"openai":    {"gpt-4o", "gpt-4o-mini", "o3-mini"},
	"anthropic": {"claude-sonnet-4", "claude-haiku-3.5"},
	"google":    {"gemini-2.0-flash", "gemini-1.5-pro"},
	"mistral":   {"mistral-large", "mistral-small"},
}

var DefaultRoutes = []string{
	"/api/chat",
	"/api/complete",
	"/api/summarize",
	"/api/embed",
	"/api/classify",
}

// LoadConfig loads configuration with cascade: flags > ./seeder.yaml > ~/.lensai/seeder.yaml > defaults
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("seeder")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LENSAI_SEEDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lensai"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(config.Catalog) == 0 {
		config.Catalog = DefaultCatalog
	}
	if len(config.Routes) == 0 {
		config.Routes = DefaultRoutes
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("defaults.url", "http://localhost:8787")
	v.SetDefault("defaults.auth_mode", "none")
	v.SetDefault("defaults.secret", "")
	v.SetDefault("defaults.count", 1000)
	v.SetDefault("defaults.projects", 3)
	v.SetDefault("defaults.time_spread", 24*time.Hour)
	v.SetDefault("defaults.concurrency", 4)
	v.SetDefault("defaults.interval", 0)
	v.SetDefault("defaults.error_rate", 0.05)
	v.SetDefault("defaults.seed", 0)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	d := c.Defaults
	if d.URL == "" {
		errs = append(errs, errors.New("defaults.url is required"))
	}
	if d.Count < 1 {
		errs = append(errs, fmt.Errorf("defaults.count must be positive, got %d", d.Count))
	}
	if d.Projects < 1 {
		errs = append(errs, fmt.Errorf("defaults.projects must be positive, got %d", d.Projects))
	}
	if d.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("defaults.concurrency must be positive, got %d", d.Concurrency))
	}
	if d.TimeSpread < 0 {
		errs = append(errs, errors.New("defaults.time_spread must not be negative"))
	}
	if d.ErrorRate < 0 || d.ErrorRate > 1 {
		errs = append(errs, fmt.Errorf("defaults.error_rate must be within [0,1], got %v", d.ErrorRate))
	}
	switch d.AuthMode {
	case "none", "":
	case "hmac", "jwt":
		if d.Secret == "" {
			errs = append(errs, fmt.Errorf("auth mode %q requires defaults.secret", d.AuthMode))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", d.AuthMode))
	}
	for provider, models := range c.Catalog {
		if len(models) == 0 {
			errs = append(errs, fmt.Errorf("catalog %s: at least one model is required", provider))
		}
	}
	return errors.Join(errs...)
}

// ParseDuration parses duration strings like "24h", "7d", "90d"
func ParseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, fmt.Errorf("invalid day count %q: %w", s, err)
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
