package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"

	"github.com/spf13/cobra"
)

// watch runs tick once and renders the result. With follow it keeps polling
// and renders every change until interrupted.
func watch(cmd *cobra.Command, state *session.State, syn *poller.Synchronizer, tick poller.Tick, follow bool, render func()) {
	if !follow {
		syn.Once(cmd.Context(), state.Token(), tick)
		render()
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Drop the notification of the login and navigation that set up the view
	select {
	case <-state.Changes():
	default:
	}

	syn.Start(ctx, state.Token(), tick)
	defer syn.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-state.Changes():
			render()
		}
	}
}
