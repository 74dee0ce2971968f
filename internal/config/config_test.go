package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("dialect", "", "")
	fs.String("state", "", "")
	fs.String("parser", "", "")
	fs.Duration("parser-timeout", 0, "")
	fs.StringSlice("metadata", nil, "")
	fs.String("sink", "", "")
	fs.String("sink-dsn", "", "")
	fs.String("output", "", "")
	fs.Int("workers", 0, "")
	fs.Bool("clean", true, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, res.File)

	cfg := res.Config
	assert.Equal(t, DefaultDialect, cfg.Dialect)
	assert.Equal(t, DefaultPolicy, cfg.EphemeralPolicy)
	assert.Equal(t, DefaultMode, cfg.EphemeralMode)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultParserTimeout, cfg.Parser.Timeout)
	assert.Equal(t, DefaultSinkTable, cfg.Sink.Table)
	assert.Equal(t, "none", cfg.Sink.Driver)
	assert.True(t, cfg.Clean.Enabled)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
dialect: hive
workers: 2
output: json
parser:
  command: python3
  args: [scripts/parse.py, --strict]
  timeout: 30s
metadata:
  paths: [meta/a.json]
sink:
  driver: sqlite
  dsn: lineage.db
`)
	t.Setenv("LEAPLINEAGE_WORKERS", "8")
	t.Setenv("LEAPLINEAGE_PARSER__TIMEOUT", "45s")
	t.Setenv("LEAPLINEAGE_EPHEMERAL_MODE", "collapse")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--dialect", "mysql", "--state", "/tmp/s.db", "--clean=false"}))

	res, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, path, res.File)

	cfg := res.Config
	assert.Equal(t, "mysql", cfg.Dialect, "flag beats file")
	assert.Equal(t, 8, cfg.Workers, "env beats file")
	assert.Equal(t, 45*time.Second, cfg.Parser.Timeout, "nested env key")
	assert.Equal(t, "collapse", cfg.EphemeralMode)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "/tmp/s.db", cfg.StatePath, "--state maps to state_path")
	assert.False(t, cfg.Clean.Enabled)
	assert.Equal(t, "python3", cfg.Parser.Command)
	assert.Equal(t, []string{"scripts/parse.py", "--strict"}, cfg.Parser.Args)
	assert.Equal(t, []string{"meta/a.json"}, cfg.Metadata.Paths)
	assert.Equal(t, "sqlite", cfg.Sink.Driver)
}

func TestLoad_UnchangedFlagsDoNotOverride(t *testing.T) {
	path := writeConfig(t, "output: csv\n")

	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	res, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "csv", res.Config.Output)
	assert.True(t, res.Config.Clean.Enabled)
}

func TestLoad_CommaListFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEAPLINEAGE_METADATA__SCHEMAS", "dw,mart")

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dw", "mart"}, res.Config.Metadata.Schemas)
}

func TestLoad_ExpandsSecrets(t *testing.T) {
	path := writeConfig(t, `
sink:
  driver: pgx
  dsn: postgres://etl:${LINEAGE_TEST_PW}@db/lineage
s3:
  bucket: scripts
  secret_access_key: ${LINEAGE_TEST_SECRET}
  access_key_id: ${LINEAGE_TEST_UNSET}
`)
	t.Setenv("LINEAGE_TEST_PW", "s3cr3t")
	t.Setenv("LINEAGE_TEST_SECRET", "abc")

	res, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://etl:s3cr3t@db/lineage", res.Config.Sink.DSN)
	assert.Equal(t, "abc", res.Config.S3.SecretAccessKey)
	assert.Equal(t, "${LINEAGE_TEST_UNSET}", res.Config.S3.AccessKeyID)
	assert.True(t, res.Config.S3Enabled())
}

func TestLoad_FindsConfigInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte("dialect: hive\n"), 0o600))
	t.Chdir(dir)

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfigFileNameAlt, res.File)
	assert.Equal(t, "hive", res.Config.Dialect)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "error reading config file")

	path := writeConfig(t, "output: html\n")
	_, err = Load(path, nil)
	assert.ErrorContains(t, err, `invalid output "html"`)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Dialect:         "oracle",
			EphemeralPolicy: "intersect",
			EphemeralMode:   "tag",
			Output:          "sql",
			Metadata:        MetadataConfig{Source: "files"},
			Sink:            SinkConfig{Driver: "none"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad policy", mutate: func(c *Config) { c.EphemeralPolicy = "union" }, errSubstr: "invalid ephemeral_policy"},
		{name: "bad mode", mutate: func(c *Config) { c.EphemeralMode = "drop" }, errSubstr: "invalid ephemeral_mode"},
		{name: "bad metadata source", mutate: func(c *Config) { c.Metadata.Source = "mysql" }, errSubstr: "invalid metadata.source"},
		{name: "bad sink", mutate: func(c *Config) { c.Sink.Driver = "oracle" }, errSubstr: "invalid sink.driver"},
		{name: "empty dialect", mutate: func(c *Config) { c.Dialect = "" }, errSubstr: "dialect is required"},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }, errSubstr: "workers must be >= 0"},
		{name: "negative timeout", mutate: func(c *Config) { c.Parser.Timeout = -time.Second }, errSubstr: "parser.timeout"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Metadata.Source = "postgres" }, errSubstr: "metadata.dsn is required"},
		{name: "sink without dsn", mutate: func(c *Config) { c.Sink.Driver = "sqlite" }, errSubstr: "sink.dsn is required"},
		{name: "bad schedule", mutate: func(c *Config) { c.Schedule = "every tuesday" }, errSubstr: "invalid schedule"},
		{name: "good schedule", mutate: func(c *Config) { c.Schedule = "*/15 * * * *" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errSubstr)
		})
	}
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	var buf bytes.Buffer
	logger := NewLogger(&buf, false)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))

	GetLogger(ctx).Info("hidden")
	GetLogger(ctx).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	NewLogger(&buf, true).Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cfg := &Config{Dialect: "hive"}
	assert.Same(t, cfg, FromContext(WithConfig(context.Background(), cfg)))
}
