package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type settingsCmdFlags struct {
	enabled     bool
	leadMinutes int
	silent      bool
}

func newSettingsCmd(r *Root) {
	flags := &settingsCmdFlags{}

	settings := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change the auto-renew settings",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the current auto-renew settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := r.profileStore()
			if err != nil {
				return err
			}
			current := store.AutoRenewSettings()
			fmt.Fprintf(cmd.OutOrStdout(), "enabled: %v\nlead-minutes: %d\nsilent: %v\n",
				current.Enabled, current.LeadMinutes, current.Silent)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change auto-renew settings; unset flags keep their current value",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := r.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			current := manager.AutoRenewSettings()
			if cmd.Flags().Changed("enabled") {
				current.Enabled = flags.enabled
			}
			if cmd.Flags().Changed("lead-minutes") {
				current.LeadMinutes = flags.leadMinutes
			}
			if cmd.Flags().Changed("silent") {
				current.Silent = flags.silent
			}
			if current.LeadMinutes <= 0 {
				return fmt.Errorf("lead-minutes: %d, must be a positive number of minutes", current.LeadMinutes)
			}
			if err := manager.SetAutoRenewSettings(current); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled: %v\nlead-minutes: %d\nsilent: %v\n",
				current.Enabled, current.LeadMinutes, current.Silent)
			return nil
		},
	}
	set.Flags().BoolVarP(&flags.enabled, "enabled", "", true, "Renew sessions automatically before they expire")
	set.Flags().IntVarP(&flags.leadMinutes, "lead-minutes", "", 13, "How many minutes before expiry the renewal starts")
	set.Flags().BoolVarP(&flags.silent, "silent", "", true, "Renew with a hidden browser window when the IdP session allows it")

	settings.AddCommand(get, set)
	r.Cmd.AddCommand(settings)
}
