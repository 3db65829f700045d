package cmd

import (
	"hpcmarket/internal/console"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List your requests and their status",
	Long:  `List every request of the client with its status (OPEN, BIDDING, SCHEDULED, RUNNING, DONE ...), the requested hardware and, once finished, its output.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		e, state, err := loggedIn(cmd, session.RoleClient)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		clientID, _ := state.ActorID()
		requests, err := e.market.ListRequests(cmd.Context(), clientID)
		if err != nil {
			printFailure(cmd, "Failed to list requests", err)
			return
		}
		console.WriteRequests(cmd.OutOrStdout(), requests)
	},
}

func init() {
	rootCmd.AddCommand(requestsCmd)
}
