package cmd

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/spf13/cobra"
)

// ActivateFlags are one-off overrides of the stored profile
// definition; non-empty values win and are persisted.
type ActivateFlags struct {
	LoginURL     string
	RoleArn      string
	PrincipalArn string
}

type activateCmd struct {
	flags *ActivateFlags
	cmd   *cobra.Command
}

func newActivateCmd(r *Root) {
	flags := &ActivateFlags{}
	ac := &activateCmd{
		flags: flags,
	}

	ac.cmd = &cobra.Command{
		Use:   "activate <alias>",
		Short: "Log in and start managing the profile's credentials",
		Long: `Log in and start managing the profile's credentials.
Opens the IdP login page in a browser, captures the assertion on completion,
exchanges it for temporary credentials and schedules the renewal.
Still-valid credentials from a previous run are adopted without a fresh login.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			manager, err := r.buildManager(cmd.Context())
			if err != nil {
				return err
			}

			store, err := r.profileStore()
			if err != nil {
				return err
			}
			stored, found, err := store.Get(alias)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("unknown profile: %s", alias)
			}

			if err := OverridesFromFlags(&stored, flags); err != nil {
				return err
			}
			if err := store.Save(stored); err != nil {
				return err
			}

			res, err := manager.ActivateProfile(alias)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	ac.cmd.Flags().StringVarP(&flags.LoginURL, "login-url", "", "", "Override the stored IdP login start URL for this and future activations")
	ac.cmd.Flags().StringVarP(&flags.RoleArn, "role-arn", "r", "", "Override the stored role Arn for this and future activations")
	ac.cmd.Flags().StringVarP(&flags.PrincipalArn, "principal-arn", "", "", "Override the stored principal Arn for this and future activations")
	r.Cmd.AddCommand(ac.cmd)
}

// OverridesFromFlags layers the non-empty flag values over the stored
// profile definition.
func OverridesFromFlags(stored *profile.Profile, flags *ActivateFlags) error {
	override := profile.Profile{
		LoginURL:     flags.LoginURL,
		RoleArn:      flags.RoleArn,
		PrincipalArn: flags.PrincipalArn,
	}
	return mergo.Merge(stored, override, mergo.WithOverride)
}
