package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"innovation/engine/internal/actor"
)

type actorFlags struct {
	userID string
	roleID string
	role   string
	unitID string
}

func (f *actorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "Acting user id (required)")
	cmd.Flags().StringVar(&f.roleID, "role-id", "", "Acting user role id (required)")
	cmd.Flags().StringVar(&f.role, "role", string(actor.RoleAdmin), "Acting role type")
	cmd.Flags().StringVar(&f.unitID, "unit", "", "Organisation unit of an accessor role")
}

func (f *actorFlags) context() (actor.Context, error) {
	a := actor.Context{
		UserID:             f.userID,
		RoleID:             f.roleID,
		Role:               actor.Normalize(f.role),
		OrganisationUnitID: f.unitID,
	}
	if a.Role == actor.RoleUnknown {
		return actor.Context{}, fmt.Errorf("unknown role %q", f.role)
	}
	if err := a.Validate(); err != nil {
		return actor.Context{}, err
	}
	return a, nil
}

// GenerateSuggestionsCmd reruns the suggestion aggregator for an innovation.
func GenerateSuggestionsCmd() *cobra.Command {
	var who actorFlags

	cmd := &cobra.Command{
		Use:   "generate-suggestions [innovation-id]",
		Short: "Convert pending suggestions of the current round into supports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := who.context()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				created, err := rt.service.GenerateSuggestions(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, id := range created {
					fmt.Fprintf(out, "suggested %s\n", id)
				}
				fmt.Fprintf(out, "%d support(s) created\n", len(created))
				return nil
			})
		},
	}

	who.register(cmd)
	return cmd
}
