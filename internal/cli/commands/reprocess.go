package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/source"
)

const s3Scheme = "s3://"

// NewReprocessCommand creates the reprocess command.
func NewReprocessCommand() *cobra.Command {
	var (
		fromState bool
		base      string
	)

	cmd := &cobra.Command{
		Use:   "reprocess [list-file]",
		Short: "Reprocess failed scripts",
		Long: `Reprocess scripts named in a list file, one path per line, or the scripts
recorded as failed in the state database.

Blank lines and lines starting with # are ignored. .hql and .hive scripts
use the hive dialect, everything else the configured dialect. Scripts that
succeed are removed from the failed list.`,
		Example: `  leaplineage reprocess failed.txt --base ./etl
  leaplineage reprocess --from-state`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromState == (len(args) == 1) {
				return fmt.Errorf("%w: pass either a list file or --from-state", lineage.ErrUsage)
			}
			list := ""
			if len(args) == 1 {
				list = args[0]
			}
			return runReprocess(cmd, list, base)
		},
	}

	cmd.Flags().BoolVar(&fromState, "from-state", false, "Reprocess the failed scripts recorded in the state database")
	cmd.Flags().StringVar(&base, "base", "", "Directory job names are derived from (default: each script's directory)")

	return cmd
}

func runReprocess(cmd *cobra.Command, list, base string) error {
	env, err := newEnv(cmd, output.ModeText)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var paths []string
	if list != "" {
		if paths, err = source.ReadListFile(list); err != nil {
			return err
		}
	}

	p, err := NewPipeline(ctx, env.cfg, env.logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	src := list
	if list == "" {
		src = "failed scripts"
		if paths, err = p.Store().ListFailedPaths(ctx); err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		env.status.Success("nothing to reprocess")
		return nil
	}

	var local, remote []string
	for _, path := range paths {
		if strings.HasPrefix(path, s3Scheme) {
			remote = append(remote, path)
		} else {
			local = append(local, path)
		}
	}

	dialect := env.cfg.Dialect
	rep, err := p.Execute(ctx, src, func(ctx context.Context) []lineage.ScriptResult {
		results := p.Engine.ProcessPaths(ctx, local, base, func(path string) string {
			return source.DialectFor(path, dialect)
		})
		if len(remote) == 0 {
			return results
		}
		return append(results, reprocessS3(ctx, p.Engine, env, remote)...)
	})
	if err != nil {
		return err
	}
	if err := WriteOutput(cmd.OutOrStdout(), env.cfg, rep.Groups); err != nil {
		return err
	}
	env.printSummary(rep)
	return failureError(rep)
}

// reprocessS3 fetches failed scripts that came from the configured bucket.
func reprocessS3(ctx context.Context, eng *lineage.Engine, env *commandEnv, uris []string) []lineage.ScriptResult {
	src, err := openS3(env.cfg)
	if err != nil {
		return failedPaths(uris, err)
	}
	bucketPrefix := s3Scheme + env.cfg.S3.Bucket + "/"

	var keys, foreign []string
	for _, uri := range uris {
		if key, ok := strings.CutPrefix(uri, bucketPrefix); ok {
			keys = append(keys, key)
		} else {
			foreign = append(foreign, uri)
		}
	}

	scripts, failed := fetchS3(ctx, src, env.cfg, keys)
	failed = append(failed, failedPaths(foreign, fmt.Errorf("not in bucket %q", env.cfg.S3.Bucket))...)
	return append(eng.ProcessBatch(ctx, scripts), failed...)
}

func failedPaths(paths []string, err error) []lineage.ScriptResult {
	out := make([]lineage.ScriptResult, 0, len(paths))
	for _, path := range paths {
		s := source.Script{ID: path}
		s.Job.Job = path
		s.Job.Path = path
		out = append(out, lineage.ScriptResult{Script: s, Err: err})
	}
	return out
}
