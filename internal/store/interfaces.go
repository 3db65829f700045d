package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrActionNotFound is returned when resolving an unknown action.
var ErrActionNotFound = errors.New("action not found")

// Ledger records the marketplace actions issued from this client and what
// became of them. It is an audit trail only; the backend stays authoritative.
type Ledger interface {
	// RecordAction inserts a new action. ID and CreatedAt are assigned when zero.
	RecordAction(ctx context.Context, action *Action) error

	// ResolveAction sets the final outcome of a recorded action.
	ResolveAction(ctx context.Context, id uuid.UUID, outcome Outcome, detail string) error

	// ListActions returns matching actions, newest first.
	ListActions(ctx context.Context, filter ActionFilter) ([]Action, error)

	Close() error
}
