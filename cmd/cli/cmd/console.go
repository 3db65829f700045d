package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hpcmarket/internal/console"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Start the interactive client console",
	Long: `Start the interactive client console.

Submit code with its hardware requirements, watch the bids on your requests and
accept one. Type 'help' inside the console for the list of commands. With --id
the console starts logged in.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runConsole(cmd, session.RoleClient)
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Start the interactive provider console",
	Long: `Start the interactive provider console.

Watch the open jobs matching your hardware, bid on them and update the specs
you advertise. Type 'help' inside the console for the list of commands. With
--id the console starts logged in.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runConsole(cmd, session.RoleProvider)
	},
}

func runConsole(cmd *cobra.Command, role session.Role) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, true)
	if err != nil {
		cmd.Printf("Error: %v\n", err)
		return
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Close(shutdownCtx)
	}()

	state, err := e.login(ctx, role, actorID(cmd))
	if err != nil {
		cmd.Printf("Error: %v\n", err)
		return
	}

	opts := []console.Option{console.WithLogger(e.log)}
	if role == session.RoleClient {
		opts = append(opts, console.WithBidding(e.bidding(state)))
	} else {
		opts = append(opts, console.WithAvailability(e.availability(state)))
	}
	con := console.New(state, e.synchronizer(state), cmd.InOrStdin(), cmd.OutOrStdout(), opts...)

	e.log.Info("console started", "role", string(role), "url", e.cfg.APIURL)
	if err := con.Run(ctx); err != nil {
		cmd.Printf("Error: %v\n", err)
	}
	if err := state.Logout(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn("logout notification failed", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(providerCmd)
}
