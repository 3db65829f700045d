package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger keeps the ledger for the lifetime of the process. It is used
// when no ledger database is configured.
type MemoryLedger struct {
	mu      sync.Mutex
	actions []Action
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) RecordAction(ctx context.Context, action *Action) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, *action)
	return nil
}

func (m *MemoryLedger) ResolveAction(ctx context.Context, id uuid.UUID, outcome Outcome, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].ID == id {
			m.actions[i].Outcome = outcome
			m.actions[i].Detail = detail
			return nil
		}
	}
	return ErrActionNotFound
}

func (m *MemoryLedger) ListActions(ctx context.Context, filter ActionFilter) ([]Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Action
	for _, a := range m.actions {
		if filter.ActorID != 0 && a.ActorID != filter.ActorID {
			continue
		}
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, a.Kind) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) Close() error { return nil }
