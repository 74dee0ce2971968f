package config

import "time"

// Default configuration values.
const (
	ConfigFileName    = "leaplineage.yaml"
	ConfigFileNameAlt = "leaplineage.yml"
	EnvPrefix         = "LEAPLINEAGE_"

	DefaultDialect       = "oracle"
	DefaultPolicy        = "all_created"
	DefaultMode          = "tag"
	DefaultOutput        = "sql"
	DefaultStateFile     = ".leaplineage/state.db"
	DefaultParserTimeout = 60 * time.Second
	DefaultSinkTable     = "LINEAGE_TABLE"
	DefaultMetadataSrc   = "files"
	DefaultSinkDriver    = "none"
)

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"dialect":          DefaultDialect,
		"ephemeral_policy": DefaultPolicy,
		"ephemeral_mode":   DefaultMode,
		"workers":          0,
		"verbose":          false,
		"output":           DefaultOutput,
		"output_file":      "",
		"state_path":       DefaultStateFile,
		"schedule":         "",
		"parser.timeout":   DefaultParserTimeout.String(),
		"metadata.source":  DefaultMetadataSrc,
		"sink.driver":      DefaultSinkDriver,
		"sink.table":       DefaultSinkTable,
		"s3.region":        "us-east-1",
		"clean.enabled":    true,
	}
}
