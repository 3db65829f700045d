package cmd

import (
	"strconv"

	"hpcmarket/internal/session"
	"hpcmarket/pkg/api"

	"github.com/spf13/cobra"
)

var acceptCmd = &cobra.Command{
	Use:   "accept [request_id] [bid_id]",
	Short: "Accept a bid on one of your requests",
	Long: `Accept one bid on a request that is still in BIDDING. The backend allows a
single accepted bid per request; after the accept the bids are polled once to
confirm that this bid won.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		rid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || rid <= 0 {
			cmd.Printf("Invalid request id: %s\n", args[0])
			return
		}
		bidID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || bidID <= 0 {
			cmd.Printf("Invalid bid id: %s\n", args[1])
			return
		}

		e, state, err := loggedIn(cmd, session.RoleClient)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		ctx := cmd.Context()
		ctrl := e.bidding(state)

		request, err := ctrl.FindRequest(ctx, rid)
		if err != nil {
			printFailure(cmd, "Failed to load request", err)
			return
		}
		clientID, _ := state.ActorID()
		bids, err := e.market.ListBids(ctx, clientID, rid)
		if err != nil {
			printFailure(cmd, "Failed to load bids", err)
			return
		}
		var bid *api.Bid
		for i := range bids {
			if bids[i].ID == bidID {
				bid = &bids[i]
			}
		}
		if bid == nil {
			cmd.Printf("Bid #%d not found on request #%d\n", bidID, rid)
			return
		}

		if err := ctrl.AcceptBid(ctx, request, *bid); err != nil {
			if banner := state.Snapshot().Data.Banner; banner.Text != "" {
				cmd.Println(banner.Text)
				return
			}
			cmd.Printf("Accept failed: %v\n", err)
			return
		}

		e.synchronizer(state).Once(ctx, state.Token(), ctrl.StatusTick())
		data := state.Snapshot().Data
		if data.Pending != nil {
			cmd.Printf("Accepted bid #%d for request #%d; not confirmed yet, check 'hpcctl requests'.\n", bidID, rid)
			return
		}
		cmd.Println(data.Banner.Text)
	},
}

func init() {
	rootCmd.AddCommand(acceptCmd)
}
