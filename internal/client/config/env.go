package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CONFORMSYNC_"

type lookupFunc func(key string) (string, bool)

// envLookup resolves keys from the process environment first, then from
// the dotenv file at path when it exists.
func envLookup(path string) lookupFunc {
	file, err := godotenv.Read(path)
	if err != nil {
		file = nil
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}

// parseEnv overlays cfg with CONFORMSYNC_* variables.
func parseEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = b
		}
	}

	str("API_BASE", &cfg.APIBase)
	str("USER_ID", &cfg.UserID)
	str("STORAGE", &cfg.Storage)
	str("STORAGE_PATH", &cfg.StoragePath)
	boolean("WATCH_STORAGE", &cfg.WatchStorage)
	dur("ONLINE_CHECK_INTERVAL", &cfg.OnlineCheckInterval)
	dur("DEBOUNCE_DELAY", &cfg.DebounceDelay)
	dur("SYNC_INTERVAL", &cfg.SyncInterval)
	dur("MIN_SYNC_INTERVAL", &cfg.MinSyncInterval)
	dur("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	dur("WORKER_INTERVAL", &cfg.WorkerInterval)
	if v, ok := lookup(envPrefix + "MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail("MAX_ATTEMPTS", err)
		} else {
			cfg.MaxAttempts = n
		}
	}
	boolean("PUSH", &cfg.Push)
	boolean("OFFLINE", &cfg.Offline)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("LOG_JSON", &cfg.LogJSON)
	str("LOG_FILE", &cfg.LogFile)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	str("BACKUP_DIR", &cfg.BackupDir)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_PREFIX", &cfg.S3Prefix)
	str("S3_REGION", &cfg.S3Region)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_ACCESS_KEY_ID", &cfg.S3AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &cfg.S3SecretAccessKey)
	boolean("S3_PATH_STYLE", &cfg.S3PathStyle)

	return firstErr
}
