package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/spf13/cobra"
)

var ErrProfileExists = errors.New("profile already exists")

type profileCmdFlags struct {
	profileName  string
	roleArn      string
	principalArn string
	loginURL     string
}

type profileCmd struct {
	flags *profileCmdFlags
	cmd   *cobra.Command
}

func newProfileCmd(r *Root) {
	pc := &profileCmd{
		flags: &profileCmdFlags{},
	}
	pc.cmd = &cobra.Command{
		Use:   "profile",
		Short: "Manage the named federation profiles",
	}

	add := &cobra.Command{
		Use:   "add <alias>",
		Short: "Register a new federation profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := r.profileStore()
			if err != nil {
				return err
			}
			alias := args[0]
			if _, found, err := store.Get(alias); err != nil {
				return err
			} else if found {
				return fmt.Errorf("%w: %s, use profile update", ErrProfileExists, alias)
			}
			if err := store.Save(pc.toProfile(alias)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s added\n", alias)
			return nil
		},
	}
	pc.bindDefinitionFlags(add)
	_ = add.MarkFlagRequired("profile-name")
	_ = add.MarkFlagRequired("role-arn")
	_ = add.MarkFlagRequired("principal-arn")
	_ = add.MarkFlagRequired("login-url")

	update := &cobra.Command{
		Use:   "update <alias>",
		Short: "Update fields of an existing profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := r.profileStore()
			if err != nil {
				return err
			}
			alias := args[0]
			current, found, err := store.Get(alias)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("unknown profile: %s", alias)
			}
			if cmd.Flags().Changed("profile-name") {
				current.ProfileName = pc.flags.profileName
			}
			if cmd.Flags().Changed("role-arn") {
				current.RoleArn = pc.flags.roleArn
			}
			if cmd.Flags().Changed("principal-arn") {
				current.PrincipalArn = pc.flags.principalArn
			}
			if cmd.Flags().Changed("login-url") {
				current.LoginURL = pc.flags.loginURL
			}
			if err := store.Save(current); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s updated\n", alias)
			return nil
		},
	}
	pc.bindDefinitionFlags(update)

	remove := &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a profile; deactivates it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			store, err := r.profileStore()
			if err != nil {
				return err
			}
			current, found, err := store.Get(alias)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("unknown profile: %s", alias)
			}
			if current.Active {
				manager, err := r.buildManager(cmd.Context())
				if err != nil {
					return err
				}
				if err := manager.DeactivateProfile(alias); err != nil {
					return err
				}
			}
			if err := store.Delete(alias); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s removed\n", alias)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles and their session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := r.profileStore()
			if err != nil {
				return err
			}
			all, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tPROFILE\tACTIVE\tEXPIRES")
			for _, p := range all {
				expires := p.ExpiresAt
				if expires == "" {
					expires = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Alias, p.ProfileName, p.Active, expires)
			}
			return w.Flush()
		},
	}

	pc.cmd.AddCommand(add, update, remove, list)
	r.Cmd.AddCommand(pc.cmd)
}

func (pc *profileCmd) bindDefinitionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&pc.flags.profileName, "profile-name", "", "", "Section name this profile manages in the shared credentials file")
	cmd.Flags().StringVarP(&pc.flags.roleArn, "role-arn", "r", "", "Role Arn to assume e.g.: arn:aws:iam::1234567891012:role/Role-ReadOnly")
	cmd.Flags().StringVarP(&pc.flags.principalArn, "principal-arn", "", "", `Principal Arn of the SAML IdP in AWS
You should find it in the IAM portal e.g.: arn:aws:iam::1234567891012:saml-provider/MyCompany-Idp`)
	cmd.Flags().StringVarP(&pc.flags.loginURL, "login-url", "", "", `IdP login start URL.
This is the URL your IdP makes the first call to e.g.: https://company-xyz.okta.com/home/amazon_aws/12345SomeRandonId6789`)
}

func (pc *profileCmd) toProfile(alias string) profile.Profile {
	return profile.Profile{
		Alias:        alias,
		ProfileName:  pc.flags.profileName,
		RoleArn:      pc.flags.roleArn,
		PrincipalArn: pc.flags.principalArn,
		LoginURL:     pc.flags.loginURL,
	}
}
