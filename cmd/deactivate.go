package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeactivateCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "deactivate <alias>",
		Short: "Stop managing the profile and remove its credentials",
		Long: `Stop managing the profile and remove its credentials.
Disarms the renewal timer, deletes the managed section from the shared
credentials file and clears the profile's session bookkeeping.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := r.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			if err := manager.DeactivateProfile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s deactivated\n", args[0])
			return nil
		},
	}
	r.Cmd.AddCommand(cmd)
}
