// Package commands implements the leaplineage subcommands.
package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/config"
)

// errNoConfig is returned when a command runs outside the root command.
var errNoConfig = errors.New("configuration not loaded")

// commandEnv is what every command reads from its context.
type commandEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	// out renders results on stdout, status renders progress and summaries on stderr.
	out    *output.Renderer
	status *output.Renderer
}

func newEnv(cmd *cobra.Command, mode output.Mode) (*commandEnv, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, errNoConfig
	}
	return &commandEnv{
		cfg:    cfg,
		logger: config.GetLogger(ctx),
		out:    output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
		status: output.NewRenderer(cmd.ErrOrStderr(), cmd.ErrOrStderr(), output.ModeText),
	}, nil
}

// printSummary writes failures and totals of a report to the status renderer.
func (e *commandEnv) printSummary(rep *Report) {
	for _, r := range rep.Results {
		if r.Err != nil {
			e.status.Error(fmt.Sprintf("%s: %v", r.Script.ID, r.Err))
		}
	}

	line := fmt.Sprintf("%d scripts, %d records, %d failed, %d skipped",
		rep.Scripts, rep.Records, rep.Failures, rep.Skipped)
	if rep.Failures > 0 {
		e.status.Warning(line)
	} else {
		e.status.Success(line)
	}

	if e.cfg.Verbose {
		e.status.KeyValue("statements", rep.Stats.Statements)
		e.status.KeyValue("parsed", rep.Stats.Parsed)
		e.status.KeyValue("parse failures", rep.Stats.ParseFailures)
		e.status.KeyValue("skipped statements", rep.Stats.Skipped)
		e.status.KeyValue("dropped pairs", rep.Stats.Dropped)
		if rep.RunID != "" {
			e.status.KeyValue("run", rep.RunID)
		}
	}
}

// failureError turns script failures into the command's exit status.
func failureError(rep *Report) error {
	if rep.Failures == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d scripts failed", rep.Failures, rep.Scripts)
}
