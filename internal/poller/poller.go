// Package poller keeps session data eventually consistent with the backend by
// re-fetching on a fixed interval.
//
// A Synchronizer runs one Tick at a time for one session token. Validity is
// checked before a tick is issued and again when its result is applied, so a
// tick that was in flight across a view or identity change is discarded.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hpcmarket/internal/logger"
	"hpcmarket/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInterval is the polling cadence of every synchronizer.
const DefaultInterval = 5 * time.Second

// Tick performs the network calls of one poll and returns the replacement to
// apply. A tick that fails may still return an apply func carrying its error
// policy (clear, message); a nil apply leaves the data untouched.
type Tick func(ctx context.Context) (apply func(*session.Data), err error)

// Synchronizer drives ticks for the active token.
type Synchronizer struct {
	state    *session.State
	interval time.Duration
	logger   *slog.Logger

	ticks    metric.Int64Counter
	discards metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an idle synchronizer for state.
func New(state *session.State, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		state:    state,
		interval: DefaultInterval,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("hpcmarket/poller")
	s.ticks, _ = meter.Int64Counter("poll_ticks",
		metric.WithDescription("Poll ticks by view and outcome"))
	s.discards, _ = meter.Int64Counter("poll_stale_discards",
		metric.WithDescription("Poll results dropped because the view or identity changed"))

	closed := make(chan struct{})
	close(closed)
	s.done = closed
	return s
}

// Start stops any running loop and starts polling tick for token. The first
// tick is issued immediately.
func (s *Synchronizer) Start(ctx context.Context, token session.Token, tick Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(runCtx, token, tick, done)
}

// Stop cancels the running loop without waiting for it. An in-flight tick may
// still finish its request; its result will not be applied.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Done is closed when the most recently started loop has exited.
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Synchronizer) run(ctx context.Context, token session.Token, tick Tick, done chan struct{}) {
	defer close(done)

	log := s.logger.With("view", string(token.View), "actor", token.ActorID, "generation", token.Generation)
	log.Debug("synchronizer started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if !s.Once(ctx, token, tick) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("synchronizer stopped")
			return
		case <-ticker.C:
			if !s.Once(ctx, token, tick) {
				log.Debug("synchronizer token expired")
				return
			}
		}
	}
}

// Once runs a single tick for token. It reports false when token is no
// longer current, either before the tick was issued or when its result came back.
func (s *Synchronizer) Once(ctx context.Context, token session.Token, tick Tick) bool {
	if !s.state.Valid(token) {
		return false
	}

	apply, err := tick(ctx)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Debug("poll tick failed", "view", string(token.View), "error", err)
	}
	s.ticks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("view", string(token.View)),
		attribute.String("outcome", outcome),
	))

	if apply == nil {
		return s.state.Valid(token)
	}
	if !s.state.Apply(token, apply) {
		s.discards.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("view", string(token.View)),
		))
		s.logger.Debug("discarding stale poll result", "view", string(token.View), "generation", token.Generation)
		return false
	}
	return true
}
