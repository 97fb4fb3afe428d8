package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CONFORMSYNC_SERVER_"

type lookupFunc func(key string) (string, bool)

// envLookup prefers the process environment over the dotenv file at path.
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

func parseEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup(envPrefix + "HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup(envPrefix + "BASE_PATH"); ok {
		cfg.BasePath = v
	}
	if v, ok := lookup(envPrefix + "DATABASE_DSN"); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := lookup(envPrefix + "SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", envPrefix, err)
		}
		cfg.ShutdownTimeout = d
	}
	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup(envPrefix + "LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", envPrefix, err)
		}
		cfg.LogJSON = b
	}
	if v, ok := lookup(envPrefix + "LOG_FILE"); ok {
		cfg.LogFile = v
	}
	return nil
}
