// Package availability drives the provider side: polling the provider's
// availability and open jobs, placing bids and updating advertised specs.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hpcmarket/internal/logger"
	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"
	"hpcmarket/internal/store"
	"hpcmarket/internal/transport"
	"hpcmarket/pkg/api"

	"github.com/shopspring/decimal"
)

// Messages shown by the jobs view.
const (
	MsgStatusError = "Error fetching provider status."
	MsgJobsError   = "Error fetching jobs."
	MsgBidPlaced   = "Bid placed successfully."
)

var (
	// ErrInvalidPrice is returned for prices that are not a non-negative number.
	ErrInvalidPrice = errors.New("price must be a non-negative number")

	// ErrBiddingSuppressed is returned when the current display does not offer
	// the bid action.
	ErrBiddingSuppressed = errors.New("bidding is not available right now")

	// ErrInvalidSpecs is returned for non-positive specs.
	ErrInvalidSpecs = errors.New("cores, clock speed and memory must be positive")
)

// Backend is the subset of the marketplace API the controller needs.
type Backend interface {
	ProviderStatus(ctx context.Context, providerID int64) (*api.ProviderStatus, error)
	OpenJobs(ctx context.Context, providerID int64) ([]api.Job, error)
	PlaceBid(ctx context.Context, providerID, requestID int64, price decimal.Decimal) (*api.PlaceBidResponse, error)
	UploadSpecs(ctx context.Context, providerID int64, specs api.Specs) error
}

// Controller implements the provider operations on top of a session.
type Controller struct {
	state   *session.State
	backend Backend
	ledger  store.Ledger
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLedger records actions in l instead of an in-memory ledger.
func WithLedger(l store.Ledger) Option {
	return func(c *Controller) {
		if l != nil {
			c.ledger = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used for banner timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a controller for a provider session.
func New(state *session.State, backend Backend, opts ...Option) *Controller {
	c := &Controller{
		state:   state,
		backend: backend,
		ledger:  store.NewMemoryLedger(),
		logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current derives the display from the latest synchronized data.
func (c *Controller) Current() View {
	d := c.state.Snapshot().Data
	return Derive(d.Status, d.Jobs, d.FetchError)
}

// Tick polls the provider status and, only if the provider is available, its
// open jobs. A failed status fetch clears everything; a failed jobs fetch
// clears the jobs.
func (c *Controller) Tick(providerID int64) poller.Tick {
	return poller.Dependent(
		func(ctx context.Context) (*api.ProviderStatus, error) {
			return c.backend.ProviderStatus(ctx, providerID)
		},
		func(st *api.ProviderStatus) bool { return st.Available },
		func(ctx context.Context) ([]api.Job, error) {
			return c.backend.OpenJobs(ctx, providerID)
		},
		func(d *session.Data, st *api.ProviderStatus, jobs []api.Job, fetched bool, err error) {
			d.Status = st
			switch {
			case !fetched:
				d.Jobs = nil
				d.FetchError = ""
			case err != nil:
				d.Jobs = nil
				d.FetchError = MsgJobsError
			default:
				d.Jobs = jobs
				d.FetchError = ""
			}
		},
		func(d *session.Data, err error) {
			d.Status = nil
			d.Jobs = nil
			d.FetchError = MsgStatusError
		},
	)
}

// ParsePrice parses a bid price. Only finite, non-negative decimals are valid.
func ParsePrice(text string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	return price, nil
}

// PlaceBid bids priceText on request requestID. The price is validated and the
// display must allow bidding before anything is sent. When the backend refuses
// the bid the status is fetched again and the banner explains why.
func (c *Controller) PlaceBid(ctx context.Context, requestID int64, priceText string) error {
	price, err := ParsePrice(priceText)
	if err != nil {
		return err
	}
	if view := c.Current(); !view.Display.AllowsBidding() {
		return fmt.Errorf("%w: provider is %s", ErrBiddingSuppressed, view.Display)
	}
	providerID, err := c.state.ActorID()
	if err != nil {
		return err
	}

	token := c.state.Token()
	rid := requestID
	action := &store.Action{
		ActorID:   providerID,
		Kind:      store.ActionBid,
		RequestID: &rid,
		Price:     decimal.NewNullDecimal(price),
	}

	resp, err := c.backend.PlaceBid(ctx, providerID, requestID, price)
	if err == nil {
		bidID := resp.BidID
		action.BidID = &bidID
		action.Outcome = store.OutcomeOK
		c.record(ctx, action)
		c.state.Apply(token, func(d *session.Data) {
			d.Banner = session.Info(MsgBidPlaced)
		})
		return nil
	}

	action.Outcome = failureOutcome(err)
	action.Detail = err.Error()
	c.record(ctx, action)
	logger.FromContext(ctx, c.logger).Warn("place bid failed",
		"provider_id", providerID, "request_id", requestID, "error", err)

	banner := c.explainBidFailure(ctx, token, providerID, err)
	c.state.Apply(token, func(d *session.Data) {
		d.Banner = session.Failure(banner)
	})
	return fmt.Errorf("place bid on request %d: %w", requestID, err)
}

// explainBidFailure refreshes the provider status and turns it into the reason
// the bid was refused.
func (c *Controller) explainBidFailure(ctx context.Context, token session.Token, providerID int64, cause error) string {
	st, err := c.backend.ProviderStatus(ctx, providerID)
	if err != nil {
		return MsgStatusError
	}

	c.state.Apply(token, func(d *session.Data) {
		d.Status = st
		if !st.Available {
			d.Jobs = nil
		}
	})

	switch {
	case !st.Available && st.CurrentJob != nil:
		return fmt.Sprintf("Cannot bid: busy with Job #%d for Client %d.", st.CurrentJob.RequestID, st.CurrentJob.ClientID)
	case !st.Available:
		return "Cannot bid: provider unavailable."
	}
	if rej, ok := transport.AsRejection(cause); ok {
		return "Cannot bid: " + rej.Message
	}
	return "Cannot bid: network error, try again."
}

// UploadSpecs advertises new hardware specs for the provider. The backend
// marks the provider available again.
func (c *Controller) UploadSpecs(ctx context.Context, specs api.Specs) error {
	if specs.Cores <= 0 || specs.ClockSpeed <= 0 || specs.Memory <= 0 {
		return ErrInvalidSpecs
	}
	providerID, err := c.state.ActorID()
	if err != nil {
		return err
	}

	token := c.state.Token()
	action := &store.Action{ActorID: providerID, Kind: store.ActionSpecs}

	if err := c.backend.UploadSpecs(ctx, providerID, specs); err != nil {
		action.Outcome = failureOutcome(err)
		action.Detail = err.Error()
		c.record(ctx, action)
		c.state.Apply(token, func(d *session.Data) {
			d.Banner = session.Failure("Failed to update specs: " + describe(err))
		})
		return fmt.Errorf("upload specs: %w", err)
	}

	action.Outcome = store.OutcomeOK
	action.Detail = fmt.Sprintf("%d cores, %.1f GHz, %d MB", specs.Cores, specs.ClockSpeed, specs.Memory)
	c.record(ctx, action)
	c.state.Apply(token, func(d *session.Data) {
		d.Specs = specs
		d.Banner = session.Info("Specs updated at " + c.now().Format(time.TimeOnly))
	})
	return nil
}

func (c *Controller) record(ctx context.Context, a *store.Action) {
	a.Role = string(session.RoleProvider)
	if err := c.ledger.RecordAction(ctx, a); err != nil {
		c.logger.Warn("failed to record action", "kind", a.Kind, "error", err)
	}
}

func failureOutcome(err error) store.Outcome {
	if transport.IsRejection(err) {
		return store.OutcomeRejected
	}
	return store.OutcomeFailed
}

func describe(err error) string {
	if rej, ok := transport.AsRejection(err); ok {
		return rej.Message
	}
	return "network error"
}
