package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"innovation/engine/internal/store"
)

// MigrateCmd applies pending SQL migrations.
func MigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if dir == "" {
					dir = rt.cfg.MigrationsDir
				}
				applied, err := store.ApplyMigrations(cmd.Context(), rt.db, dir, rt.log)
				if err != nil {
					return fmt.Errorf("migrations failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) from %s\n", applied, dir)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (defaults to ENGINE_MIGRATIONS_DIR)")
	return cmd
}

// PingCmd checks connectivity to every configured backend.
func PingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check database and redis connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				out := cmd.OutOrStdout()
				ctx := cmd.Context()

				dbErr := rt.service.Ping(ctx)
				fmt.Fprintf(out, "  postgres     %s\n", checkLabel(dbErr))
				if rt.publisher != nil {
					fmt.Fprintf(out, "  events       %s\n", checkLabel(rt.publisher.Ping(ctx)))
				} else {
					fmt.Fprintf(out, "  events       %s\n", color.New(color.FgYellow).Sprint("DISABLED"))
				}
				if rt.projections != nil {
					fmt.Fprintf(out, "  projections  %s\n", checkLabel(rt.projections.Ping(ctx)))
				} else {
					fmt.Fprintf(out, "  projections  %s\n", color.New(color.FgYellow).Sprint("DISABLED"))
				}
				if dbErr != nil {
					return fmt.Errorf("database unreachable: %w", dbErr)
				}
				return nil
			})
		},
	}
}
