package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hpcmarket/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var _ store.Ledger = (*Store)(nil)

func (s *Store) RecordAction(ctx context.Context, action *store.Action) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO actions (id, actor_id, role, kind, request_id, bid_id, price, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		action.ID, action.ActorID, action.Role, action.Kind,
		action.RequestID, action.BidID, action.Price,
		action.Outcome, action.Detail, action.CreatedAt,
	)
	return err
}

func (s *Store) ResolveAction(ctx context.Context, id uuid.UUID, outcome store.Outcome, detail string) error {
	query := `UPDATE actions SET outcome = $1, detail = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, outcome, detail, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrActionNotFound
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, filter store.ActionFilter) ([]store.Action, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActorID != 0 {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		where = append(where, fmt.Sprintf("kind = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	args = append(args, limit)

	query := `SELECT id, actor_id, role, kind, request_id, bid_id, price, outcome, detail, created_at FROM actions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []store.Action
	for rows.Next() {
		var a store.Action
		if err := rows.Scan(
			&a.ID, &a.ActorID, &a.Role, &a.Kind,
			&a.RequestID, &a.BidID, &a.Price,
			&a.Outcome, &a.Detail, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
