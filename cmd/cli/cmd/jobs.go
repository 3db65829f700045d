package cmd

import (
	"hpcmarket/internal/console"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

var followJobs bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show open jobs matching your hardware",
	Long: `Show the provider's availability. An available provider sees the open jobs
matching its specs; a busy provider sees the job it is running instead. With
--follow the view is polled until interrupted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		e, state, err := loggedIn(cmd, session.RoleProvider)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		providerID, _ := state.ActorID()
		ctrl := e.availability(state)
		watch(cmd, state, e.synchronizer(state), ctrl.Tick(providerID), followJobs, func() {
			console.Render(cmd.OutOrStdout(), state.Snapshot())
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().BoolVarP(&followJobs, "follow", "F", false, "keep polling the jobs")
}
