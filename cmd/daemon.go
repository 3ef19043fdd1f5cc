package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDaemonCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep active sessions renewed until interrupted",
		Long: `Keep active sessions renewed until interrupted.
Validates the stored sessions, re-arms a renewal timer for every active
profile and then waits. Ctrl-C disarms the timers and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			manager, err := r.buildManager(ctx)
			if err != nil {
				return err
			}

			dropped, err := manager.ValidateSessions()
			if err != nil {
				return err
			}
			if dropped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %d stale sessions\n", dropped)
			}
			if err := manager.RestoreTimers(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "watching active sessions, Ctrl-C to stop")
			<-ctx.Done()
			manager.Scheduler().ClearAll()
			return nil
		},
	}
	r.Cmd.AddCommand(cmd)
}
