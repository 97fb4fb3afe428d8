package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/conformsync/internal/flagx"
)

// parseFlags applies the server flags found in args:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-b string   API base path (e.g. "/api")
//	-d string   PostgreSQL DSN, empty for the in-memory store
//	-l string   log level
//	-j          JSON log output
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-b", "-d", "-l", "-j"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "address and port to run server")
	fs.StringVar(&cfg.BasePath, "b", cfg.BasePath, "API base path")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogJSON, "j", cfg.LogJSON, "JSON log output")

	return fs.Parse(args)
}
