package cmd

import (
	"strconv"

	"hpcmarket/internal/console"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

var followBids bool

var bidsCmd = &cobra.Command{
	Use:   "bids [request_id]",
	Short: "Show the bids on a request",
	Long: `Show the request and the bids providers placed on it. With --follow the bids
are polled until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || rid <= 0 {
			cmd.Printf("Invalid request id: %s\n", args[0])
			return
		}

		e, state, err := loggedIn(cmd, session.RoleClient)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		if err := state.Navigate(session.ViewBids, rid, nil); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		ctrl := e.bidding(state)
		watch(cmd, state, e.synchronizer(state), ctrl.BidsTick(rid), followBids, func() {
			console.Render(cmd.OutOrStdout(), state.Snapshot())
		})
	},
}

func init() {
	rootCmd.AddCommand(bidsCmd)
	bidsCmd.Flags().BoolVarP(&followBids, "follow", "F", false, "keep polling the bids")
}
