// Package config handles configuration for the reference server: defaults,
// CONFORMSYNC_SERVER_* environment (optionally from a .env file), a JSON
// overlay and command-line flags, applied in that order.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
)

// Config holds runtime settings for the server.
//
// An empty DatabaseDSN keeps records in memory.
type Config struct {
	HTTPAddr        string
	BasePath        string
	DatabaseDSN     string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogJSON         bool
	LogFile         string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.BasePath = "/api"
	c.DatabaseDSN = ""
	c.ShutdownTimeout = 10 * time.Second
	c.LogLevel = "info"
	c.LogJSON = false
	c.LogFile = ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, JSON: c.LogJSON, File: c.LogFile}
}

// LoadConfig builds a Config from defaults, environment, the JSON file
// named by -c/-config and flags found in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg, envLookup(envFile())); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envFile() string {
	if p := os.Getenv(envPrefix + "ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}
