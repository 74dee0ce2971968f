// Package cli provides the command-line interface for leaplineage.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/commands"
	"github.com/leapstack-labs/leaplineage/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// skipConfig lists commands that run without loading configuration.
var skipConfig = map[string]bool{
	"help":                          true,
	"version":                       true,
	"completion":                    true,
	cobra.ShellCompRequestCmd:       true,
	cobra.ShellCompNoDescRequestCmd: true,
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "leaplineage",
		Short: "leaplineage - column-level lineage for SQL scripts",
		Long: `leaplineage extracts column-level lineage from SQL scripts.

Scripts are split into statements, each statement is parsed by an external
lineage parser, and the resulting column graphs are resolved into
source-to-target records. Temporary and staging tables can be tagged or
collapsed away. Records are written as SQL, JSON, CSV or Excel, stored for
tracing, and optionally loaded straight into a database table.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfig[cmd.Name()] {
				return nil
			}

			res, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), res.Config.Verbose)
			if res.File != "" {
				logger.Debug("config loaded", "file", res.File)
			}

			ctx := config.WithConfig(cmd.Context(), res.Config)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./"+config.ConfigFileName+")")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.String("dialect", "", "Default SQL dialect (default "+config.DefaultDialect+")")
	pf.IntP("workers", "w", 0, "Scripts processed concurrently (default: number of CPUs)")
	pf.StringP("output", "o", "", "Output format (sql|json|csv|xlsx|table)")
	pf.String("output-file", "", "Write output to this file instead of stdout")
	pf.String("state", "", "Path to state database (default "+config.DefaultStateFile+")")
	pf.Bool("clean", true, "Strip parameters, comments and storage clauses before splitting")
	pf.String("ephemeral-policy", "", "Which created tables are ephemeral (all_created|intersect)")
	pf.String("ephemeral-mode", "", "How ephemeral tables appear in output (tag|collapse)")

	pf.String("parser", "", "External lineage parser command (default: built-in parser)")
	pf.StringSlice("parser-arg", nil, "Arguments passed to the parser command")
	pf.Duration("parser-timeout", 0, "Timeout of one parser invocation (default "+config.DefaultParserTimeout.String()+")")

	pf.String("metadata-source", "", "Metadata source (none|files|postgres|duckdb)")
	pf.StringSlice("metadata", nil, "Metadata files or directories")
	pf.String("metadata-dsn", "", "Connection string of the metadata database")
	pf.String("metadata-cache", "", "Persistent metadata cache database")
	pf.StringSlice("metadata-schema", nil, "Schemas readable from the metadata database")
	pf.StringSlice("attach", nil, "Metadata caches attached to every script")

	pf.String("sink", "", "Load records into a database (none|sqlite|duckdb|pgx)")
	pf.String("sink-dsn", "", "Connection string of the sink database")
	pf.String("sink-table", "", "Lineage table name (default "+config.DefaultSinkTable+")")

	completions := map[string][]string{
		"output":           {"sql", "json", "csv", "xlsx", "table"},
		"ephemeral-policy": {"all_created", "intersect"},
		"ephemeral-mode":   {"tag", "collapse"},
		"metadata-source":  {"none", "files", "postgres", "duckdb"},
		"sink":             {"none", "sqlite", "duckdb", "pgx"},
	}
	for name, values := range completions {
		_ = rootCmd.RegisterFlagCompletionFunc(name, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}

	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewReprocessCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewTraceCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewMetadataCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leaplineage.

Bash:
  $ source <(leaplineage completion bash)

Zsh:
  $ leaplineage completion zsh > "${fpath[1]}/_leaplineage"

Fish:
  $ leaplineage completion fish | source

PowerShell:
  PS> leaplineage completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// Execute runs the root command under ctx and reports a returned error on stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
