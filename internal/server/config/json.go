package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/conformsync/internal/flagx"
	"github.com/dmitrijs2005/conformsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Absent fields keep their
// current value.
type JsonConfig struct {
	HTTPAddr        *string         `json:"http_addr"`
	BasePath        *string         `json:"base_path"`
	DatabaseDSN     *string         `json:"database_dsn"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
	LogLevel        *string         `json:"log_level"`
	LogJSON         *bool           `json:"log_json"`
	LogFile         *string         `json:"log_file"`
}

func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if c.HTTPAddr != nil {
		cfg.HTTPAddr = *c.HTTPAddr
	}
	if c.BasePath != nil {
		cfg.BasePath = *c.BasePath
	}
	if c.DatabaseDSN != nil {
		cfg.DatabaseDSN = *c.DatabaseDSN
	}
	if c.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	if c.LogLevel != nil {
		cfg.LogLevel = *c.LogLevel
	}
	if c.LogJSON != nil {
		cfg.LogJSON = *c.LogJSON
	}
	if c.LogFile != nil {
		cfg.LogFile = *c.LogFile
	}
	return nil
}
