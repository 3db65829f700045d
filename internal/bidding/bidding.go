// Package bidding drives the client side of the request lifecycle: submitting
// compute requests, observing their bids and accepting one of them.
//
// The backend is the only enforcer of the single-accept rule. The controller
// gates the accept action on the request still being in BIDDING, and after a
// successful accept it keeps the accept pending until a status poll shows
// which bid the backend actually accepted.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"hpcmarket/internal/logger"
	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"
	"hpcmarket/internal/store"
	"hpcmarket/internal/transport"
	"hpcmarket/pkg/api"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCode is returned when a request is submitted without code.
	ErrEmptyCode = errors.New("code text must not be empty")

	// ErrNotAcceptable is returned when accepting a bid of a request that is
	// no longer in BIDDING.
	ErrNotAcceptable = errors.New("request is not open for acceptance")

	// ErrRequestNotFound is returned when an accept names an unknown request.
	ErrRequestNotFound = errors.New("request not found")

	// ErrBidMismatch is returned when accepting a bid placed on another request.
	ErrBidMismatch = errors.New("bid does not belong to request")
)

// Backend is the subset of the marketplace API the controller needs.
type Backend interface {
	SubmitRequest(ctx context.Context, clientID int64, specs api.Specs, codeText string) (*api.SubmitResponse, error)
	ListRequests(ctx context.Context, clientID int64) ([]api.Request, error)
	ListBids(ctx context.Context, clientID, requestID int64) ([]api.Bid, error)
	AcceptBid(ctx context.Context, clientID, requestID, bidID int64) error
}

// CanAccept is the single accept rule used by every view.
func CanAccept(r api.Request) bool {
	return r.Status == api.StatusBidding
}

// Controller implements the client's request and bid operations on top of a
// session.
type Controller struct {
	state   *session.State
	backend Backend
	ledger  store.Ledger
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[session.PendingAccept]uuid.UUID
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

// New creates a controller for a client session.
func New(state *session.State, backend Backend, opts ...Option) *Controller {
	c := &Controller{
		state:   state,
		backend: backend,
		ledger:  store.NewMemoryLedger(),
		logger:  logger.Discard(),
		pending: make(map[session.PendingAccept]uuid.UUID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitRequest creates a request for the logged-in client. On success the
// state is reset into the bids view of the new request. On failure the
// current view is kept and the failure is shown in the banner.
func (c *Controller) SubmitRequest(ctx context.Context, specs api.Specs, codeText string) (int64, error) {
	if strings.TrimSpace(codeText) == "" {
		return 0, ErrEmptyCode
	}
	clientID, err := c.state.ActorID()
	if err != nil {
		return 0, err
	}

	resp, err := c.backend.SubmitRequest(ctx, clientID, specs, codeText)
	if err != nil {
		c.record(ctx, &store.Action{ActorID: clientID, Kind: store.ActionSubmit, Outcome: failureOutcome(err), Detail: err.Error()})
		c.state.Update(func(d *session.Data) {
			d.Banner = session.Failure("Failed to submit request: " + describe(err))
		})
		logger.FromContext(ctx, c.logger).Warn("submit request failed", "client_id", clientID, "error", err)
		return 0, fmt.Errorf("submit request: %w", err)
	}

	rid := resp.RequestID
	c.record(ctx, &store.Action{ActorID: clientID, Kind: store.ActionSubmit, RequestID: &rid, Outcome: store.OutcomeOK})

	c.state.Reset()
	if err := c.state.Navigate(session.ViewBids, rid, func(d *session.Data) {
		d.Banner = session.Info(fmt.Sprintf("Request #%d submitted.", rid))
	}); err != nil {
		return rid, err
	}
	return rid, nil
}

// BidsTick polls the request a bids view is scoped to and then its bids.
// A failed poll keeps the last good data and sets the fetch error.
func (c *Controller) BidsTick(requestID int64) poller.Tick {
	return poller.Dependent(
		func(ctx context.Context) (*api.Request, error) {
			return c.findRequest(ctx, requestID)
		},
		func(r *api.Request) bool { return r != nil },
		func(ctx context.Context) ([]api.Bid, error) {
			clientID, err := c.state.ActorID()
			if err != nil {
				return nil, err
			}
			return c.backend.ListBids(ctx, clientID, requestID)
		},
		func(d *session.Data, r *api.Request, bids []api.Bid, fetched bool, err error) {
			d.Current = r
			switch {
			case !fetched:
				d.Bids = nil
				d.FetchError = fmt.Sprintf("Request #%d not found.", requestID)
			case err != nil:
				d.FetchError = "Error fetching bids."
			default:
				d.Bids = bids
				d.FetchError = ""
			}
		},
		func(d *session.Data, err error) {
			d.FetchError = "Error fetching request."
		},
	)
}

// StatusTick polls the client's requests. While an accept is pending it also
// fetches the bids of that request and resolves the accept as confirmed or
// lost.
func (c *Controller) StatusTick() poller.Tick {
	return func(ctx context.Context) (func(*session.Data), error) {
		clientID, err := c.state.ActorID()
		if err != nil {
			return nil, err
		}

		requests, err := c.backend.ListRequests(ctx, clientID)
		if err != nil {
			return func(d *session.Data) {
				d.FetchError = "Error fetching requests."
			}, err
		}

		pending := c.state.Snapshot().Data.Pending
		if pending == nil {
			return func(d *session.Data) {
				d.Requests = requests
				d.FetchError = ""
			}, nil
		}

		bids, err := c.backend.ListBids(ctx, clientID, pending.RequestID)
		if err != nil {
			// Requests are still fresh; confirmation waits for the next tick.
			return func(d *session.Data) {
				d.Requests = requests
				d.FetchError = ""
			}, err
		}

		outcome, banner := resolveAccept(*pending, requests, bids)
		if outcome != store.OutcomePending {
			c.resolve(ctx, *pending, outcome, banner.Text)
		}

		return func(d *session.Data) {
			d.Requests = requests
			d.FetchError = ""
			if outcome == store.OutcomePending {
				return
			}
			if d.Pending != nil && *d.Pending == *pending {
				d.Pending = nil
				d.Banner = banner
			}
		}, nil
	}
}

// resolveAccept decides what became of an accept from the bids of its
// request. Without any accepted bid the accept stays pending.
func resolveAccept(p session.PendingAccept, requests []api.Request, bids []api.Bid) (store.Outcome, session.Banner) {
	for _, b := range bids {
		if !b.Accepted {
			continue
		}
		if b.ID == p.BidID {
			status := ""
			for _, r := range requests {
				if r.ID == p.RequestID {
					status = r.Status
				}
			}
			text := fmt.Sprintf("Bid #%d accepted for request #%d.", p.BidID, p.RequestID)
			if status != "" {
				text = fmt.Sprintf("Bid #%d accepted for request #%d (%s).", p.BidID, p.RequestID, status)
			}
			return store.OutcomeConfirmed, session.Info(text)
		}
		return store.OutcomeLost, session.Failure(fmt.Sprintf(
			"Bid #%d was not accepted: bid #%d from provider %d won request #%d.",
			p.BidID, b.ID, b.ProviderID, p.RequestID))
	}
	return store.OutcomePending, session.Banner{}
}

// AcceptBid accepts bid for request. Only requests in BIDDING are accepted;
// others fail with ErrNotAcceptable before any network call.
//
// On success the state is reset into the status view with the accept pending.
// On failure the state is left as is so the user can retry, and the banner
// tells a rejection by the backend apart from a network failure.
func (c *Controller) AcceptBid(ctx context.Context, request api.Request, bid api.Bid) error {
	if bid.RequestID != 0 && bid.RequestID != request.ID {
		return fmt.Errorf("%w: bid #%d is on request #%d, not #%d", ErrBidMismatch, bid.ID, bid.RequestID, request.ID)
	}
	if !CanAccept(request) {
		return fmt.Errorf("%w: request #%d is %s", ErrNotAcceptable, request.ID, request.Status)
	}
	clientID, err := c.state.ActorID()
	if err != nil {
		return err
	}

	rid := request.ID
	bidID := bid.ID
	action := &store.Action{
		ActorID:   clientID,
		Kind:      store.ActionAccept,
		RequestID: &rid,
		BidID:     &bidID,
		Price:     decimal.NewNullDecimal(bid.Price),
		Outcome:   store.OutcomePending,
	}

	if err := c.backend.AcceptBid(ctx, clientID, rid, bid.ID); err != nil {
		action.Outcome = failureOutcome(err)
		action.Detail = err.Error()
		c.record(ctx, action)

		var banner string
		if rej, ok := transport.AsRejection(err); ok {
			banner = "Bid could not be accepted: " + rej.Message
		} else {
			banner = "Network error while accepting bid; try again."
		}
		c.state.Update(func(d *session.Data) { d.Banner = session.Failure(banner) })
		logger.FromContext(ctx, c.logger).Warn("accept bid failed",
			"client_id", clientID, "request_id", rid, "bid_id", bid.ID, "error", err)
		return fmt.Errorf("accept bid %d: %w", bid.ID, err)
	}

	c.record(ctx, action)
	p := session.PendingAccept{RequestID: rid, BidID: bid.ID}
	c.mu.Lock()
	c.pending[p] = action.ID
	c.mu.Unlock()

	c.state.Reset()
	return c.state.Navigate(session.ViewStatus, 0, func(d *session.Data) {
		d.Pending = &p
		d.Banner = session.Info(fmt.Sprintf("Accepted bid #%d for request #%d; awaiting confirmation.", bid.ID, rid))
	})
}

// AllRequestsTick loads the client's requests into the all-bids view.
func (c *Controller) AllRequestsTick() poller.Tick {
	return poller.Single(
		func(ctx context.Context) ([]api.Request, error) {
			clientID, err := c.state.ActorID()
			if err != nil {
				return nil, err
			}
			return c.backend.ListRequests(ctx, clientID)
		},
		func(d *session.Data, requests []api.Request) {
			d.AllRequests = requests
			d.FetchError = ""
		},
		func(d *session.Data, err error) {
			d.FetchError = "Error fetching requests."
		},
	)
}

// ListAllRequestsWithBids loads the client's requests into the all-bids view.
// It is a one-shot fetch; the view is not polled. Outside the all-bids view it
// does nothing, and the result is dropped if the view changes meanwhile.
func (c *Controller) ListAllRequestsWithBids(ctx context.Context) error {
	token := c.state.Token()
	if token.View != session.ViewAllBids {
		return nil
	}
	apply, err := c.AllRequestsTick()(ctx)
	if apply != nil {
		c.state.Apply(token, apply)
	}
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}
	return nil
}

// SelectRequest drills into the bids of one request of the all-bids view.
// The result is dropped if the selection or the view changed meanwhile.
func (c *Controller) SelectRequest(ctx context.Context, requestID int64) error {
	token := c.state.Token()
	clientID, err := c.state.ActorID()
	if err != nil {
		return err
	}

	if !c.state.Apply(token, func(d *session.Data) {
		d.SelectedRequest = requestID
		d.SelectedBids = nil
	}) {
		return nil
	}

	bids, err := c.backend.ListBids(ctx, clientID, requestID)
	if err != nil {
		c.state.Apply(token, func(d *session.Data) {
			if d.SelectedRequest == requestID {
				d.FetchError = "Error fetching bids."
			}
		})
		return fmt.Errorf("list bids: %w", err)
	}
	c.state.Apply(token, func(d *session.Data) {
		if d.SelectedRequest == requestID {
			d.SelectedBids = bids
			d.FetchError = ""
		}
	})
	return nil
}

// FindRequest returns the client's request with id, or ErrRequestNotFound.
func (c *Controller) FindRequest(ctx context.Context, id int64) (api.Request, error) {
	r, err := c.findRequest(ctx, id)
	if err != nil {
		return api.Request{}, err
	}
	if r == nil {
		return api.Request{}, fmt.Errorf("%w: #%d", ErrRequestNotFound, id)
	}
	return *r, nil
}

func (c *Controller) findRequest(ctx context.Context, id int64) (*api.Request, error) {
	clientID, err := c.state.ActorID()
	if err != nil {
		return nil, err
	}
	requests, err := c.backend.ListRequests(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		if requests[i].ID == id {
			r := requests[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (c *Controller) record(ctx context.Context, a *store.Action) {
	a.Role = string(session.RoleClient)
	if err := c.ledger.RecordAction(ctx, a); err != nil {
		c.logger.Warn("failed to record action", "kind", a.Kind, "error", err)
	}
}

func (c *Controller) resolve(ctx context.Context, p session.PendingAccept, outcome store.Outcome, detail string) {
	c.mu.Lock()
	id, ok := c.pending[p]
	delete(c.pending, p)
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.ledger.ResolveAction(ctx, id, outcome, detail); err != nil {
		c.logger.Warn("failed to resolve accept", "request_id", p.RequestID, "bid_id", p.BidID, "error", err)
	}
	logger.FromContext(ctx, c.logger).Info("accept resolved",
		"request_id", p.RequestID, "bid_id", p.BidID, "outcome", outcome)
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
