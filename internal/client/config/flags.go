package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/flagx"
)

var knownFlags = []string{
	"-a", "-i", "-u",
	"--api", "--user", "--storage", "--storage-path", "--watch",
	"--sync-interval", "--debounce", "--push", "--offline",
	"--log-level", "--log-json", "--log-file", "--metrics-addr", "--backup-dir", "--s3-bucket",
}

// parseFlags overlays cfg with the flags of args it knows about.
//
//	-a, --api string         URL prefix of the PHP endpoints
//	-u, --user string        user id
//	-i int                   online check interval in seconds
//	--storage string         sqlite, file or memory
//	--storage-path string    database file or directory
//	--watch                  report external writes to the file storage
//	--sync-interval duration periodic sync interval
//	--debounce duration      delay collapsing bursts of edits
//	--push                   listen for server push messages
//	--offline                never contact the server
//	--log-level string       debug, info, warn or error
//	--log-json               JSON log output
//	--log-file string        rotated log file
//	--metrics-addr string    serve /metrics on this address
//	--backup-dir string      directory for cache snapshots
//	--s3-bucket string       store snapshots in this bucket instead
//
// Arguments that are not flags (cobra subcommands) are skipped.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("conformsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBase, "a", cfg.APIBase, "api base URL")
	fs.StringVar(&cfg.APIBase, "api", cfg.APIBase, "api base URL")
	fs.StringVar(&cfg.UserID, "u", cfg.UserID, "user id")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id")
	onlineCheck := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "storage path")
	fs.BoolVar(&cfg.WatchStorage, "watch", cfg.WatchStorage, "watch file storage")
	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "periodic sync interval")
	fs.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "debounce delay")
	fs.BoolVar(&cfg.Push, "push", cfg.Push, "listen for server push")
	fs.BoolVar(&cfg.Offline, "offline", cfg.Offline, "stay offline")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "JSON logs")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics listen address")
	fs.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "snapshot directory")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "snapshot bucket")

	rest := filtered
	for {
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			break
		}
		rest = fs.Args()[1:]
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheck) * time.Second
		}
	})
	return nil
}
