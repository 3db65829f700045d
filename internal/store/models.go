// Package store contains the persistence layer for the local action ledger.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionKind identifies the marketplace operation an actor issued.
type ActionKind string

const (
	ActionSubmit ActionKind = "submit"
	ActionAccept ActionKind = "accept"
	ActionBid    ActionKind = "bid"
	ActionSpecs  ActionKind = "specs"
)

// Outcome is what became of an action.
type Outcome string

const (
	// OutcomePending: the backend acknowledged an accept that no poll has
	// confirmed yet.
	OutcomePending Outcome = "pending"
	OutcomeOK      Outcome = "ok"
	// OutcomeConfirmed and OutcomeLost resolve a pending accept.
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeLost      Outcome = "lost"
	// OutcomeRejected: the backend refused the action (4xx).
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed: the action never reached a verdict (network, 5xx).
	OutcomeFailed Outcome = "failed"
)

// Action is one entry of the ledger.
type Action struct {
	ID        uuid.UUID
	ActorID   int64
	Role      string
	Kind      ActionKind
	RequestID *int64
	BidID     *int64
	Price     decimal.NullDecimal
	Outcome   Outcome
	Detail    string
	CreatedAt time.Time
}

// ActionFilter selects ledger entries. Zero fields match everything.
type ActionFilter struct {
	ActorID int64
	Role    string
	Kinds   []ActionKind
	Limit   int
}

// DefaultListLimit caps ListActions when the filter has no limit.
const DefaultListLimit = 50
