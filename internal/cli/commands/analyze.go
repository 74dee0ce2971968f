package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	var (
		in      lineage.Input
		noState bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Extract column lineage from SQL scripts",
		Long: `Extract column-level lineage from inline SQL, a script file, a directory
of scripts or an S3 prefix.

Scripts are split into statements and every lineage-bearing statement is
sent to the parser: the configured parser command, or the built-in parser
when none is set. Records are written in the configured output
format and stored in the state database for later tracing and reprocessing.`,
		Example: `  leaplineage analyze --dir ./etl
  leaplineage analyze --file job.sql -o json
  leaplineage analyze --sql "INSERT INTO dw.t SELECT a FROM ods.s"
  leaplineage analyze --s3-prefix scripts/ --s3-bucket etl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if in.SQL != "" || in.File != "" || in.Dir != "" {
					return fmt.Errorf("%w: a path argument cannot be combined with --sql, --file or --dir", lineage.ErrUsage)
				}
				in.File = args[0]
			}
			return runAnalyze(cmd, in, cmd.Flags().Changed("s3-prefix"), noState)
		},
	}

	cmd.Flags().StringVar(&in.SQL, "sql", "", "Inline SQL script")
	cmd.Flags().StringVarP(&in.File, "file", "f", "", "Script file")
	cmd.Flags().StringVarP(&in.Dir, "dir", "d", "", "Directory scanned recursively for .sql and .hql scripts")
	cmd.Flags().String("s3-prefix", "", "Process scripts under this prefix of s3.bucket")
	cmd.Flags().String("s3-bucket", "", "S3 bucket holding scripts")
	cmd.Flags().String("s3-endpoint", "", "S3 compatible endpoint")
	cmd.Flags().BoolVar(&noState, "no-state", false, "Do not record the run in the state database")
	cmd.MarkFlagsMutuallyExclusive("sql", "file", "dir", "s3-prefix")

	return cmd
}

func runAnalyze(cmd *cobra.Command, in lineage.Input, fromS3, noState bool) error {
	env, err := newEnv(cmd, output.ModeText)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if !fromS3 {
		// Checked before any parser or store is opened.
		if err := in.Validate(); err != nil {
			return err
		}
	}

	p, err := NewPipeline(ctx, env.cfg, env.logger, !noState)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	src, process := describeInput(in), func(ctx context.Context) []lineage.ScriptResult {
		results, _ := p.Engine.Run(ctx, in)
		return results
	}
	if fromS3 {
		s3src, err := openS3(env.cfg)
		if err != nil {
			return err
		}
		src = fmt.Sprintf("s3://%s/%s", env.cfg.S3.Bucket, env.cfg.S3.Prefix)
		process = func(ctx context.Context) []lineage.ScriptResult {
			return processS3(ctx, p.Engine, s3src, env.cfg)
		}
	}

	rep, err := p.Execute(ctx, src, process)
	if err != nil {
		return err
	}
	if err := WriteOutput(cmd.OutOrStdout(), env.cfg, rep.Groups); err != nil {
		return err
	}
	env.printSummary(rep)
	return failureError(rep)
}

func describeInput(in lineage.Input) string {
	switch {
	case in.File != "":
		return in.File
	case in.Dir != "":
		return in.Dir
	default:
		return "inline"
	}
}

func openS3(cfg *config.Config) (*source.S3Source, error) {
	if !cfg.S3Enabled() {
		return nil, fmt.Errorf("%w: s3.bucket is required for --s3-prefix", lineage.ErrUsage)
	}
	client, err := source.NewS3Client(source.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return source.NewS3Source(client, cfg.S3.Bucket), nil
}

// processS3 downloads every script under the configured prefix and runs
// them as one batch. Objects that cannot be fetched become failed results.
func processS3(ctx context.Context, eng *lineage.Engine, src *source.S3Source, cfg *config.Config) []lineage.ScriptResult {
	prefix := cfg.S3.Prefix
	keys, err := src.List(ctx, prefix)
	if err != nil {
		job := core.JobInfo{Job: prefix, Path: fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, prefix)}
		return []lineage.ScriptResult{{Script: source.Script{ID: prefix, Job: job}, Err: err}}
	}

	scripts, failed := fetchS3(ctx, src, cfg, keys)
	return append(eng.ProcessBatch(ctx, scripts), failed...)
}

func fetchS3(ctx context.Context, src *source.S3Source, cfg *config.Config, keys []string) ([]source.Script, []lineage.ScriptResult) {
	var (
		scripts []source.Script
		failed  []lineage.ScriptResult
	)
	for _, key := range keys {
		s, err := src.Fetch(ctx, key, cfg.S3.Prefix)
		if err != nil {
			job := source.KeyJobInfo(key, cfg.S3.Prefix)
			job.Path = fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, key)
			failed = append(failed, lineage.ScriptResult{Script: source.Script{ID: source.ObjectKey(key, cfg.S3.Prefix), Job: job}, Err: err})
			continue
		}
		s.Dialect = source.DialectFor(key, cfg.Dialect)
		scripts = append(scripts, s)
	}
	return scripts, failed
}
