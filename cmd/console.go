package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConsoleCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "console <alias>",
		Short: "Print a federated console sign-in URL for the profile",
		Long: `Print a federated console sign-in URL for the profile.
Uses the stored credentials, so the profile must have an active session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := r.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			url, err := manager.ConsoleURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	r.Cmd.AddCommand(cmd)
}
