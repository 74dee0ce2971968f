package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/state"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand() *cobra.Command {
	var (
		direction string
		depth     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "trace <database.table.column>",
		Short: "Walk stored lineage from a column",
		Long: `Walk the lineage stored by previous runs as a column graph.

Upstream lists the columns that feed the given column, downstream the
columns it feeds. Depth 0 walks the whole graph.`,
		Example: `  leaplineage trace dw.fact_sales.amount
  leaplineage trace ods.orders.amount --direction down --depth 2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upstream bool
			switch direction {
			case "up", "upstream":
				upstream = true
			case "down", "downstream":
			default:
				return fmt.Errorf("%w: direction must be up or down, got %q", lineage.ErrUsage, direction)
			}
			if depth < 0 {
				return fmt.Errorf("%w: depth must be >= 0", lineage.ErrUsage)
			}

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

			steps, err := store.Trace(cmd.Context(), args[0], upstream, depth)
			if err != nil {
				return err
			}
			if env.out.EffectiveMode() == output.ModeJSON {
				return env.out.JSON(steps)
			}
			renderTrace(env.out, args[0], upstream, steps)
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "up", "Walk direction: up or down")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum number of hops (0 for unlimited)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	_ = cmd.RegisterFlagCompletionFunc("direction", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"up", "down"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func renderTrace(r *output.Renderer, column string, upstream bool, steps []state.TraceStep) {
	title := "Downstream of " + column
	if upstream {
		title = "Upstream of " + column
	}
	r.Header(title)
	if len(steps) == 0 {
		r.Println(r.Styles().Muted.Render("  (no lineage)"))
		return
	}
	for _, s := range steps {
		indent := strings.Repeat("  ", s.Depth)
		r.Printf("%s%s -> %s %s\n", indent, s.Source, s.Target,
			r.Styles().Muted.Render("["+strings.Join(s.Jobs, ", ")+"]"))
	}
}
