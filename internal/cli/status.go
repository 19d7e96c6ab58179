package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"innovation/engine/internal/app"
)

// GroupedStatusCmd prints an innovation's grouped status and round progress.
func GroupedStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grouped-status [innovation-id]",
		Short: "Show the grouped status of an innovation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				status, err := rt.service.GroupedStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				progress, err := rt.service.InnovationProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printProgress(cmd.OutOrStdout(), status, progress)
				return nil
			})
		},
	}
}

// KPICmd prints suggestion-to-engagement figures for the current round.
func KPICmd() *cobra.Command {
	var overdueOnly bool

	cmd := &cobra.Command{
		Use:   "kpi [innovation-id]",
		Short: "Show engagement KPIs for the current support round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				kpis, err := rt.service.SupportKPIs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(kpis) == 0 {
					fmt.Fprintln(out, "No supports in the current round.")
					return nil
				}
				for _, kpi := range kpis {
					if overdueOnly && !kpi.Overdue {
						continue
					}
					printKPI(out, kpi)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&overdueOnly, "overdue", false, "Only show overdue suggestions")
	return cmd
}

// RebuildProjectionsCmd recomputes every cached grouped status.
func RebuildProjectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-projections",
		Short: "Recompute the cached grouped status of every innovation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				written, err := rt.service.RebuildProjections(cmd.Context())
				if errors.Is(err, app.ErrProjectionsDisabled) {
					return fmt.Errorf("%w; set REDIS_URL to a reachable redis", err)
				}
				if err != nil {
					return fmt.Errorf("rebuild stopped after %d innovation(s): %w", written, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d projection(s)\n", written)
				return nil
			})
		},
	}
}
