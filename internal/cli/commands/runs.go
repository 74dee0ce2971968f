package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var (
		limit  int
		failed bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show run history or failed scripts",
		Example: `  leaplineage runs --limit 5
  leaplineage runs --failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := output.ModeText
			if asJSON {
				mode = output.ModeJSON
			}
			env, err := newEnv(cmd, mode)
			if err != nil {
				return err
			}

			store := state.NewSQLiteStore(env.logger)
			if err := store.Open(env.cfg.StatePath); err != nil {
				return fmt.Errorf("failed to open state store: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if failed {
				failures, err := store.ListFailures(ctx)
				if err != nil {
					return err
				}
				if env.out.EffectiveMode() == output.ModeJSON {
					return env.out.JSON(failureViews(failures))
				}
				renderFailures(env.out, failures)
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if env.out.EffectiveMode() == output.ModeJSON {
				return env.out.JSON(runViews(runs))
			}
			renderRuns(env.out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&failed, "failed", false, "List scripts whose last run failed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

type runView struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Scripts     int        `json:"scripts"`
	Records     int        `json:"records"`
	Failures    int        `json:"failures"`
	Error       string     `json:"error,omitempty"`
}

func runViews(runs []*state.Run) []runView {
	out := make([]runView, 0, len(runs))
	for _, r := range runs {
		out = append(out, runView{
			ID:          r.ID,
			Source:      r.Source,
			Status:      string(r.Status),
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
			Scripts:     r.Scripts,
			Records:     r.Records,
			Failures:    r.Failures,
			Error:       r.Error,
		})
	}
	return out
}

type failureView struct {
	Path     string    `json:"path"`
	RunID    string    `json:"run_id"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

func failureViews(failures []state.Failure) []failureView {
	out := make([]failureView, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureView(f))
	}
	return out
}

func renderRuns(r *output.Renderer, runs []*state.Run) {
	if len(runs) == 0 {
		r.Println("no runs recorded")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(r.Writer())
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"run", "started", "status", "scripts", "records", "failed", "source"})
	for _, run := range runs {
		tw.AppendRow(table.Row{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(run.Status),
			run.Scripts,
			run.Records,
			run.Failures,
			run.Source,
		})
	}
	tw.Render()
}

func renderFailures(r *output.Renderer, failures []state.Failure) {
	if len(failures) == 0 {
		r.Success("no failed scripts")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(r.Writer())
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"path", "attempts", "failed", "error"})
	for _, f := range failures {
		tw.AppendRow(table.Row{f.Path, f.Attempts, f.FailedAt.Local().Format("2006-01-02 15:04:05"), f.Error})
	}
	tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
