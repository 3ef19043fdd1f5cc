package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Reconcile the profile registry against the credentials file",
		Long: `Reconcile the profile registry against the credentials file.
Active profiles whose credentials are missing or expired are dropped back
to inactive so the registry reflects what is actually usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := r.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			dropped, err := manager.ValidateSessions()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated sessions, %d dropped\n", dropped)
			return nil
		},
	}
	r.Cmd.AddCommand(cmd)
}
