package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	validOutputs         = []string{"sql", "json", "csv", "xlsx", "table"}
	validPolicies        = []string{"intersect", "all_created"}
	validModes           = []string{"tag", "collapse"}
	validMetadataSources = []string{"none", "files", "postgres", "duckdb"}
	validSinkDrivers     = []string{"none", "sqlite", "duckdb", "pgx"}
)

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	checks := []struct {
		key   string
		value string
		valid []string
	}{
		{"output", c.Output, validOutputs},
		{"ephemeral_policy", c.EphemeralPolicy, validPolicies},
		{"ephemeral_mode", c.EphemeralMode, validModes},
		{"metadata.source", c.Metadata.Source, validMetadataSources},
		{"sink.driver", c.Sink.Driver, validSinkDrivers},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.valid, ch.value) {
			return fmt.Errorf("invalid %s %q (want one of %s)", ch.key, ch.value, strings.Join(ch.valid, ", "))
		}
	}

	if c.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Parser.Timeout < 0 {
		return fmt.Errorf("parser.timeout must not be negative, got %s", c.Parser.Timeout)
	}

	switch c.Metadata.Source {
	case "postgres", "duckdb":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn is required for metadata.source %s", c.Metadata.Source)
		}
	}
	if c.Sink.Driver != "none" && c.Sink.DSN == "" {
		return fmt.Errorf("sink.dsn is required for sink.driver %s", c.Sink.Driver)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// S3Enabled reports whether an S3 bucket is configured.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}
