package commands

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Reprocess scripts as they change",
		Long: `Process a directory once, then watch it and reprocess every script that
is written or created. With --schedule the whole directory is also
reprocessed on a cron schedule. Runs until interrupted.`,
		Example: `  leaplineage watch ./etl
  leaplineage watch ./etl --schedule "0 2 * * *"
  leaplineage watch ./etl --schedule "@every 30m"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}
	cmd.Flags().String("schedule", "", "Cron expression for full reprocessing")
	return cmd
}

func runWatch(cmd *cobra.Command, dir string) error {
	env, err := newEnv(cmd, output.ModeText)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	p, err := NewPipeline(ctx, env.cfg, env.logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	// The scheduler and the watcher share one output stream.
	var mu sync.Mutex
	execute := func(ctx context.Context, process func(context.Context) []lineage.ScriptResult) {
		mu.Lock()
		defer mu.Unlock()
		rep, err := p.Execute(ctx, dir, process)
		if err != nil {
			env.status.Error(err.Error())
			return
		}
		if err := WriteOutput(cmd.OutOrStdout(), env.cfg, rep.Groups); err != nil {
			env.status.Error(err.Error())
		}
		env.printSummary(rep)
	}

	full := func(ctx context.Context) {
		execute(ctx, func(ctx context.Context) []lineage.ScriptResult {
			results, _ := p.Engine.Run(ctx, lineage.Input{Dir: dir})
			return results
		})
	}
	full(ctx)

	if env.cfg.Schedule != "" {
		sched, err := watch.NewScheduler(ctx, env.cfg.Schedule, full, env.logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	dialect := env.cfg.Dialect
	w := watch.New(dir, func(ctx context.Context, paths []string) {
		var existing []string
		for _, path := range paths {
			if _, err := os.Stat(path); err == nil {
				existing = append(existing, path)
			}
		}
		if len(existing) == 0 {
			return
		}
		execute(ctx, func(ctx context.Context) []lineage.ScriptResult {
			return p.Engine.ProcessPaths(ctx, existing, dir, func(path string) string {
				return source.DialectFor(path, dialect)
			})
		})
	}, env.logger)

	go func() {
		select {
		case <-w.Ready():
			env.status.Success("watching " + dir)
		case <-ctx.Done():
		}
	}()
	return w.Run(ctx)
}
