package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"innovation/engine/internal/events"
)

// WatchEventsCmd tails the engine's redis event channels.
func WatchEventsCmd() *cobra.Command {
	var types []string

	cmd := &cobra.Command{
		Use:   "watch-events",
		Short: "Print support lifecycle events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if rt.publisher == nil {
					return errors.New("events are disabled; set REDIS_URL to a reachable redis")
				}
				ctx := cmd.Context()
				wanted := make([]events.Type, 0, len(types))
				for _, t := range types {
					wanted = append(wanted, events.Type(t))
				}
				sub, err := rt.publisher.Subscribe(ctx, wanted...)
				if err != nil {
					return err
				}
				defer sub.Close()

				ch := sub.Channel()
				for {
					select {
					case <-ctx.Done():
						return nil
					case msg, ok := <-ch:
						if !ok {
							return nil
						}
						event, err := events.Decode(msg)
						if err != nil {
							rt.log.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping undecodable event")
							continue
						}
						printEvent(cmd.OutOrStdout(), event)
					}
				}
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "Event types to follow (default all)")
	return cmd
}

func printEvent(w io.Writer, event events.Event) {
	change := event.ToStatus
	if event.FromStatus != "" {
		change = event.FromStatus + " -> " + event.ToStatus
	}
	if event.Operation != "" {
		change = event.Operation + " " + event.OrganisationID
	}
	fmt.Fprintf(w, "%s  %-19s  %s  %s  %s\n",
		event.OccurredAt.Format("2006-01-02T15:04:05Z07:00"),
		color.New(color.FgCyan).Sprint(event.Type),
		event.InnovationID,
		event.SupportID,
		change,
	)
}
