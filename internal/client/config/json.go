package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/flagx"
	"github.com/dmitrijs2005/conformsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from zero values so that a partial file only
// overrides what it names.
type JsonConfig struct {
	APIBase             *string         `json:"api_base"`
	UserID              *string         `json:"user_id"`
	Storage             *string         `json:"storage"`
	StoragePath         *string         `json:"storage_path"`
	WatchStorage        *bool           `json:"watch_storage"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	DebounceDelay       *timex.Duration `json:"debounce_delay"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	MinSyncInterval     *timex.Duration `json:"min_sync_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	WorkerInterval      *timex.Duration `json:"worker_interval"`
	MaxAttempts         *int            `json:"max_attempts"`
	Push                *bool           `json:"push"`
	Offline             *bool           `json:"offline"`
	LogLevel            *string         `json:"log_level"`
	LogJSON             *bool           `json:"log_json"`
	LogFile             *string         `json:"log_file"`
	MetricsAddr         *string         `json:"metrics_addr"`
	BackupDir           *string         `json:"backup_dir"`
	S3                  *struct {
		Bucket          string `json:"bucket"`
		Prefix          string `json:"prefix"`
		Region          string `json:"region"`
		Endpoint        string `json:"endpoint"`
		AccessKeyID     string `json:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key"`
		PathStyle       bool   `json:"path_style"`
	} `json:"s3"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson overlays cfg with the JSON file named by -c/-config in args.
// Without such a flag nothing happens.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&cfg.APIBase, jc.APIBase)
	set(&cfg.UserID, jc.UserID)
	set(&cfg.Storage, jc.Storage)
	set(&cfg.StoragePath, jc.StoragePath)
	set(&cfg.WatchStorage, jc.WatchStorage)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.DebounceDelay, jc.DebounceDelay)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.MinSyncInterval, jc.MinSyncInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.WorkerInterval, jc.WorkerInterval)
	set(&cfg.MaxAttempts, jc.MaxAttempts)
	set(&cfg.Push, jc.Push)
	set(&cfg.Offline, jc.Offline)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogJSON, jc.LogJSON)
	set(&cfg.LogFile, jc.LogFile)
	set(&cfg.MetricsAddr, jc.MetricsAddr)
	set(&cfg.BackupDir, jc.BackupDir)
	if s3 := jc.S3; s3 != nil {
		cfg.S3Bucket = s3.Bucket
		cfg.S3Prefix = s3.Prefix
		if s3.Region != "" {
			cfg.S3Region = s3.Region
		}
		cfg.S3Endpoint = s3.Endpoint
		cfg.S3AccessKeyID = s3.AccessKeyID
		cfg.S3SecretAccessKey = s3.SecretAccessKey
		cfg.S3PathStyle = s3.PathStyle
	}
	return nil
}
