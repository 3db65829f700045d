package cmd

import (
	"errors"
	"strconv"

	"hpcmarket/internal/availability"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

var bidCmd = &cobra.Command{
	Use:   "bid [request_id]",
	Short: "Place a bid on an open job",
	Long: `Place a bid on an open job. The provider's availability is checked first;
a busy or unavailable provider cannot bid.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || rid <= 0 {
			cmd.Printf("Invalid request id: %s\n", args[0])
			return
		}
		price, _ := cmd.Flags().GetString("price")
		if _, err := availability.ParsePrice(price); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		e, state, err := loggedIn(cmd, session.RoleProvider)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		providerID, _ := state.ActorID()
		ctrl := e.availability(state)
		e.synchronizer(state).Once(cmd.Context(), state.Token(), ctrl.Tick(providerID))

		err = ctrl.PlaceBid(cmd.Context(), rid, price)
		if errors.Is(err, availability.ErrBiddingSuppressed) {
			view := ctrl.Current()
			switch view.Display {
			case availability.DisplayCurrentJob:
				cmd.Printf("Cannot bid: busy with Job #%d for Client %d.\n", view.Current.RequestID, view.Current.ClientID)
			case availability.DisplayUnavailable:
				cmd.Println("Cannot bid: provider unavailable.")
			default:
				cmd.Printf("Cannot bid: %s\n", view.Message)
			}
			return
		}
		if text := state.Snapshot().Data.Banner.Text; text != "" {
			cmd.Println(text)
			return
		}
		if err != nil {
			cmd.Printf("Bid failed: %v\n", err)
		}
	},
}

func init() {
	bidCmd.Flags().StringP("price", "p", "", "bid price (required)")
	bidCmd.MarkFlagRequired("price")
	rootCmd.AddCommand(bidCmd)
}
