// Package config loads runtime configuration for the conformsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. CONFORMSYNC_* environment variables, falling back to a .env file
//     (path overridable with CONFORMSYNC_ENV_FILE).
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "5m" or
// integer nanoseconds. Absent keys keep the previous value:
//
//	{
//	  "api_base": "https://compliance.example.com/api",
//	  "user_id": "42",
//	  "storage": "sqlite",
//	  "storage_path": "conformsync.db",
//	  "sync_interval": "5m",
//	  "s3": {"bucket": "snapshots", "endpoint": "http://127.0.0.1:9000", "path_style": true}
//	}
package config
