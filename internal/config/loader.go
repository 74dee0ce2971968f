package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// flagKeys maps CLI flag names to config keys where they differ beyond
// kebab-case to snake_case.
var flagKeys = map[string]string{
	"state":            "state_path",
	"parser":           "parser.command",
	"parser-arg":       "parser.args",
	"parser-timeout":   "parser.timeout",
	"metadata":         "metadata.paths",
	"metadata-source":  "metadata.source",
	"metadata-dsn":     "metadata.dsn",
	"metadata-cache":   "metadata.cache_path",
	"metadata-schema":  "metadata.schemas",
	"attach":           "metadata.names",
	"sink":             "sink.driver",
	"sink-dsn":         "sink.dsn",
	"sink-table":       "sink.table",
	"s3-bucket":        "s3.bucket",
	"s3-prefix":        "s3.prefix",
	"s3-endpoint":      "s3.endpoint",
	"clean":            "clean.enabled",
	"ephemeral-mode":   "ephemeral_mode",
	"ephemeral-policy": "ephemeral_policy",
}

// Result is a loaded configuration and the file it came from, if any.
type Result struct {
	Config *Config
	File   string
}

// Load reads configuration from defaults, the config file, the environment
// and the changed flags in that order. An empty cfgFile looks for
// leaplineage.yaml or leaplineage.yml in the working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Result, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// LEAPLINEAGE_PARSER__COMMAND -> parser.command
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.expandEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Result{Config: &cfg, File: used}, nil
}

// findConfigFile returns the config file to use.
// Priority: explicit path > leaplineage.yaml > leaplineage.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandEnvVars expands secrets and connection strings in place.
func (c *Config) expandEnvVars() {
	c.Metadata.DSN = expandEnvVars(c.Metadata.DSN)
	c.Sink.DSN = expandEnvVars(c.Sink.DSN)
	c.S3.Endpoint = expandEnvVars(c.S3.Endpoint)
	c.S3.AccessKeyID = expandEnvVars(c.S3.AccessKeyID)
	c.S3.SecretAccessKey = expandEnvVars(c.S3.SecretAccessKey)
}
