// Package config loads the layered configuration of the pg CLI and server.
package config

import "time"

// Config holds all configuration options.
type Config struct {
	StatePath     string        `koanf:"state_path"`
	Profile       string        `koanf:"profile"`
	LogCap        int           `koanf:"log_cap"`
	MaxRetries    int           `koanf:"max_retries"`
	BackoffBase   time.Duration `koanf:"backoff_base"`
	MaxResultRows int           `koanf:"max_result_rows"`
	MessageLimit  int           `koanf:"message_limit"`
	Verbose       bool          `koanf:"verbose"`
	OutputFormat  string        `koanf:"output"`
	Server        ServerConfig  `koanf:"server"`

	// File is the config file that was read, empty when none was found.
	File string `koanf:"-"`
}

// ServerConfig holds configuration for the HTTP surface.
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	WatchConfig bool   `koanf:"watch_config"`
}

// Default configuration values.
const (
	DefaultStateFile     = ".pg/state.db"
	DefaultLogCap        = 500
	DefaultMaxRetries    = 2
	DefaultBackoffBase   = 200 * time.Millisecond
	DefaultMaxResultRows = 1000
	DefaultMessageLimit  = 256
	DefaultOutput        = "auto" // table on a TTY, json otherwise
	DefaultAddr          = ":8787"
)

// Config file names searched in the working directory.
const (
	FileName    = "pg.yaml"
	FileNameAlt = "pg.yml"
)

// EnvPrefix prefixes environment overrides, e.g. PG_LOG_CAP.
const EnvPrefix = "PG_"

func defaults() map[string]any {
	return map[string]any{
		"state_path":          DefaultStateFile,
		"profile":             "",
		"log_cap":             DefaultLogCap,
		"max_retries":         DefaultMaxRetries,
		"backoff_base":        DefaultBackoffBase.String(),
		"max_result_rows":     DefaultMaxResultRows,
		"message_limit":       DefaultMessageLimit,
		"verbose":             false,
		"output":              DefaultOutput,
		"server.addr":         DefaultAddr,
		"server.watch_config": false,
	}
}
