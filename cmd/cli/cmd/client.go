package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hpcmarket/internal/availability"
	"hpcmarket/internal/bidding"
	"hpcmarket/internal/config"
	"hpcmarket/internal/logger"
	"hpcmarket/internal/market"
	"hpcmarket/internal/observability"
	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"
	"hpcmarket/internal/store"
	"hpcmarket/internal/store/postgres"
	"hpcmarket/internal/transport"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const serviceName = "hpcctl"

var errMissingID = errors.New("actor id not found. Please set it using the --id flag or the HPCMARKET_ID environment variable")

// env is everything a command needs to talk to the marketplace.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	market   *market.Client
	ledger   store.Ledger
	shutdown func(context.Context) error
}

// newEnv builds the backend client and the ledger from the current viper
// settings. The Prometheus listener is only started for interactive consoles.
func newEnv(ctx context.Context, interactive bool) (*env, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	opts := observability.Options{ServiceName: serviceName, OTELEndpoint: cfg.OTELEndpoint}
	if interactive {
		opts.MetricsAddr = cfg.MetricsAddr
	}
	shutdown, err := observability.Setup(ctx, opts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	var ledger store.Ledger
	if cfg.LedgerURL != "" {
		pg, err := postgres.Open(ctx, cfg.LedgerURL)
		if err != nil {
			shutdown(ctx)
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		ledger = pg
	} else {
		ledger = store.NewMemoryLedger()
	}

	sender := transport.New(cfg.APIURL,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		transport.WithLogger(log),
	)

	return &env{
		cfg:      cfg,
		log:      log,
		market:   market.New(sender),
		ledger:   ledger,
		shutdown: shutdown,
	}, nil
}

// Close releases the ledger and flushes telemetry.
func (e *env) Close(ctx context.Context) {
	if err := e.ledger.Close(); err != nil {
		e.log.Warn("failed to close ledger", "error", err)
	}
	if err := e.shutdown(ctx); err != nil {
		e.log.Warn("failed to shut down telemetry", "error", err)
	}
}

// login returns a session for role, logged in as id when id is set.
func (e *env) login(ctx context.Context, role session.Role, id int64) (*session.State, error) {
	state := session.New(role, e.market)
	if id == 0 {
		return state, nil
	}
	if err := state.Login(ctx, id); err != nil {
		return nil, err
	}
	return state, nil
}

func (e *env) synchronizer(state *session.State) *poller.Synchronizer {
	return poller.New(state, poller.WithInterval(e.cfg.PollInterval), poller.WithLogger(e.log))
}

func (e *env) bidding(state *session.State) *bidding.Controller {
	return bidding.New(state, e.market, bidding.WithLedger(e.ledger), bidding.WithLogger(e.log))
}

func (e *env) availability(state *session.State) *availability.Controller {
	return availability.New(state, e.market, availability.WithLedger(e.ledger), availability.WithLogger(e.log))
}

// actorID reads --id, falling back to the config file and environment.
func actorID(cmd *cobra.Command) int64 {
	if f := cmd.Flags().Lookup("id"); f != nil && f.Changed {
		id, _ := cmd.Flags().GetInt64("id")
		return id
	}
	return viper.GetInt64("id")
}

// loggedIn is the common preamble of the one-shot commands: build the env and
// log in as the actor given by --id. The caller must Close the env.
func loggedIn(cmd *cobra.Command, role session.Role) (*env, *session.State, error) {
	id := actorID(cmd)
	if id == 0 {
		return nil, nil, errMissingID
	}
	e, err := newEnv(cmd.Context(), false)
	if err != nil {
		return nil, nil, err
	}
	state, err := e.login(cmd.Context(), role, id)
	if err != nil {
		e.Close(cmd.Context())
		return nil, nil, err
	}
	return e, state, nil
}
