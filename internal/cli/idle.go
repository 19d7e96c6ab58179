package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"innovation/engine/internal/app"
)

// IdleSupportsCmd lists supports that should receive an idle reminder.
func IdleSupportsCmd() *cobra.Command {
	var (
		thresholdDays   int
		suppressionDays int
		after           string
		limit           int
		markReminded    bool
	)

	cmd := &cobra.Command{
		Use:   "idle-supports",
		Short: "List engaging or waiting supports with no recent activity",
		Long: `Scan live supports in id order and print the ones whose latest message,
task update or status change is older than the threshold. Supports reminded
within the suppression window are left out.

Use --mark-reminded to log a reminder for every printed support.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				now := time.Now().UTC()

				query := app.IdleQuery{
					ThresholdDays:   thresholdDays,
					SuppressionDays: suppressionDays,
					After:           after,
				}
				printed := 0
				for idle, err := range rt.service.IdleSupports(ctx, query) {
					if err != nil {
						return err
					}
					printIdleSupport(out, idle, now)
					if markReminded {
						if err := rt.service.MarkReminderSent(ctx, idle.InnovationID, idle.OrganisationUnitID, now); err != nil {
							return fmt.Errorf("mark reminder for %s: %w", idle.SupportID, err)
						}
					}
					printed++
					if limit > 0 && printed >= limit {
						break
					}
				}
				fmt.Fprintf(out, "%d idle support(s)\n", printed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&thresholdDays, "threshold-days", 0, "Days without activity before a support counts as idle (defaults to config)")
	cmd.Flags().IntVar(&suppressionDays, "suppression-days", 0, "Days a reminder suppresses further reminders (defaults to config)")
	cmd.Flags().StringVar(&after, "after", "", "Resume the scan after this support id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many supports (0 means all)")
	cmd.Flags().BoolVar(&markReminded, "mark-reminded", false, "Record a reminder for each listed support")
	return cmd
}
