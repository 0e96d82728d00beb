package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds connection settings shared by all lensai commands.
type Config struct {
	IngestURL string `mapstructure:"ingest_url"`
	// AuthMode is "none", "hmac" or "jwt" and must match the ingest service.
	AuthMode string `mapstructure:"auth_mode"`
	Secret   string `mapstructure:"secret"`
	NATSURL  string `mapstructure:"nats_url"`
	Output   string `mapstructure:"output"`

	path string
}

func Default() *Config {
	return &Config{
		IngestURL: "http://localhost:8787",
		AuthMode:  "none",
		NATSURL:   "nats://localhost:4222",
		Output:    "table",
	}
}

// DefaultPath is $HOME/.lensai/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lensai", "config.yaml"), nil
}

// Load reads cfgFile (or the default path) with LENSAI_* environment overrides.
// A missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("ingest_url", def.IngestURL)
	v.SetDefault("auth_mode", def.AuthMode)
	v.SetDefault("secret", "")
	v.SetDefault("nats_url", def.NATSURL)
	v.SetDefault("output", def.Output)

	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LENSAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(cfgFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = cfgFile
	return cfg, nil
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	v := viper.New()
	v.Set("ingest_url", c.IngestURL)
	v.Set("auth_mode", c.AuthMode)
	v.Set("secret", c.Secret)
	v.Set("nats_url", c.NATSURL)
	v.Set("output", c.Output)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(c.path); err != nil {
		return err
	}
	return os.Chmod(c.path, 0o600)
}

// Path returns the file the config is read from and saved to.
func (c *Config) Path() string {
	return c.path
}
