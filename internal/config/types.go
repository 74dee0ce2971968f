// Package config loads leaplineage configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the YAML
// config file, LEAPLINEAGE_* environment variables and explicitly set CLI
// flags. The command logger travels in the command context and is read back
// with GetLogger.
package config

import "time"

// Config holds all configuration options.
type Config struct {
	Dialect         string         `koanf:"dialect"`
	EphemeralPolicy string         `koanf:"ephemeral_policy"`
	EphemeralMode   string         `koanf:"ephemeral_mode"`
	Workers         int            `koanf:"workers"`
	Verbose         bool           `koanf:"verbose"`
	Output          string         `koanf:"output"`
	OutputFile      string         `koanf:"output_file"`
	StatePath       string         `koanf:"state_path"`
	Schedule        string         `koanf:"schedule"`
	Parser          ParserConfig   `koanf:"parser"`
	Metadata        MetadataConfig `koanf:"metadata"`
	Sink            SinkConfig     `koanf:"sink"`
	S3              S3Config       `koanf:"s3"`
	Clean           CleanConfig    `koanf:"clean"`
}

// ParserConfig describes the external parser command. An empty Command
// selects the built-in parser.
type ParserConfig struct {
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout"`
}

// MetadataConfig selects where parser hints come from.
type MetadataConfig struct {
	// Source is one of none, files, postgres or duckdb.
	Source    string   `koanf:"source"`
	Paths     []string `koanf:"paths"`
	CachePath string   `koanf:"cache_path"`
	DSN       string   `koanf:"dsn"`
	Schemas   []string `koanf:"schemas"`
	// Names are caches attached to every script in addition to header names.
	Names []string `koanf:"names"`
}

// SinkConfig configures direct database persistence of records.
type SinkConfig struct {
	// Driver is one of none, sqlite, duckdb or pgx.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Table  string `koanf:"table"`
}

// S3Config locates scripts stored in an S3 compatible bucket.
type S3Config struct {
	Endpoint        string `koanf:"endpoint"`
	Region          string `koanf:"region"`
	Bucket          string `koanf:"bucket"`
	Prefix          string `koanf:"prefix"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// CleanConfig toggles script cleaning before splitting.
type CleanConfig struct {
	Enabled bool `koanf:"enabled"`
}
