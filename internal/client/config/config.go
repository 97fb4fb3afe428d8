package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config holds runtime settings for the conformsync client.
type Config struct {
	// APIBase is the URL prefix of the PHP endpoints, e.g. https://host/api.
	APIBase string
	// UserID selects whose collections are cached and synchronized.
	UserID string

	Storage      string
	StoragePath  string
	WatchStorage bool

	OnlineCheckInterval time.Duration
	DebounceDelay       time.Duration
	SyncInterval        time.Duration
	MinSyncInterval     time.Duration
	RequestTimeout      time.Duration
	MaxAttempts         int
	WorkerInterval      time.Duration

	// Push enables the websocket listener for force-sync-required messages.
	Push bool
	// Offline pins the connectivity monitor to offline: edits stay local.
	Offline bool

	LogLevel string
	LogJSON  bool
	LogFile  string

	// MetricsAddr, when set, serves /metrics on that address.
	MetricsAddr string

	BackupDir         string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBase = "http://127.0.0.1:8080/api"
	c.Storage = StorageSQLite
	c.StoragePath = "conformsync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.DebounceDelay = 1500 * time.Millisecond
	c.SyncInterval = 5 * time.Minute
	c.MinSyncInterval = 10 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.MaxAttempts = 3
	c.WorkerInterval = time.Minute
	c.Push = true
	c.LogLevel = "info"
	c.BackupDir = "backups"
	c.S3Region = "us-east-1"
}

// Load builds a Config from defaults, the environment (and an optional .env
// file), a JSON file given with -c/-config and finally args. Later sources
// take precedence over earlier ones.
func Load(args []string) (*Config, error) {
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

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api base %q must be an http(s) URL", c.APIBase))
	}
	switch c.Storage {
	case StorageSQLite, StorageFile:
		if c.StoragePath == "" {
			errs = append(errs, fmt.Errorf("storage %s needs a path", c.Storage))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, errors.New("online check interval must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, JSON: c.LogJSON, File: c.LogFile}
}
