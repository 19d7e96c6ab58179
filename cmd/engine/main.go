package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"innovation/engine/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "engine",
		Short: "Support lifecycle and suggestion engine",
		Long: `engine operates the innovation support lifecycle: it applies migrations,
reports grouped statuses and engagement KPIs, finds idle supports and keeps the
redis projections in step with the database.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.PingCmd())
	rootCmd.AddCommand(cli.IdleSupportsCmd())
	rootCmd.AddCommand(cli.GroupedStatusCmd())
	rootCmd.AddCommand(cli.KPICmd())
	rootCmd.AddCommand(cli.GenerateSuggestionsCmd())
	rootCmd.AddCommand(cli.RebuildProjectionsCmd())
	rootCmd.AddCommand(cli.WatchEventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
