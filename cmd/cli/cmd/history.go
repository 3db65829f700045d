package cmd

import (
	"hpcmarket/internal/console"
	"hpcmarket/internal/store"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the actions recorded in the ledger",
	Long: `Show submitted requests, accepts, bids and specs uploads issued from hpcctl,
newest first, with their outcome. Accepts stay pending until a poll confirms
them.

The ledger only outlives a single run when HPCMARKET_LEDGER_URL points to a
Postgres database.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		role, _ := flags.GetString("role")
		kinds, _ := flags.GetStringSlice("kind")
		limit, _ := flags.GetInt("limit")

		e, err := newEnv(cmd.Context(), false)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		if e.cfg.LedgerURL == "" {
			cmd.PrintErrln("Ledger is in memory; set HPCMARKET_LEDGER_URL to keep history across runs.")
		}

		filter := store.ActionFilter{ActorID: actorID(cmd), Role: role, Limit: limit}
		for _, k := range kinds {
			filter.Kinds = append(filter.Kinds, store.ActionKind(k))
		}

		actions, err := e.ledger.ListActions(cmd.Context(), filter)
		if err != nil {
			cmd.Printf("Failed to list actions: %v\n", err)
			return
		}
		console.WriteActions(cmd.OutOrStdout(), actions)
	},
}

func init() {
	flags := historyCmd.Flags()
	flags.String("role", "", "only actions of this role (client or provider)")
	flags.StringSlice("kind", nil, "only these kinds (submit, accept, bid, specs)")
	flags.Int("limit", store.DefaultListLimit, "maximum number of actions")

	rootCmd.AddCommand(historyCmd)
}
