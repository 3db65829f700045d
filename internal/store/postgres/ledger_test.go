package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"hpcmarket/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestRecordAction_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	rid, bid := int64(42), int64(7)
	action := &store.Action{
		ActorID:   1,
		Role:      "provider",
		Kind:      store.ActionBid,
		RequestID: &rid,
		BidID:     &bid,
		Price:     decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		Outcome:   store.OutcomeOK,
	}

	mock.ExpectExec(`INSERT INTO actions`).
		WithArgs(sqlmock.AnyArg(), int64(1), "provider", "bid", rid, bid, "12.5", "ok", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.RecordAction(ctx, action); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}
	if action.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRecordAction_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO actions`).WillReturnError(errors.New("connection refused"))

	err := s.RecordAction(context.Background(), &store.Action{ActorID: 1, Role: "client", Kind: store.ActionSubmit})
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestResolveAction(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE actions SET outcome = \$1, detail = \$2 WHERE id = \$3`).
		WithArgs("confirmed", "", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ResolveAction(context.Background(), id, store.OutcomeConfirmed, ""); err != nil {
		t.Fatalf("ResolveAction failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestResolveAction_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE actions`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.ResolveAction(context.Background(), uuid.New(), store.OutcomeLost, "")
	if !errors.Is(err, store.ErrActionNotFound) {
		t.Errorf("expected ErrActionNotFound, got %v", err)
	}
}

func TestListActions_WithFilter(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "actor_id", "role", "kind", "request_id", "bid_id", "price", "outcome", "detail", "created_at",
	}).
		AddRow(id.String(), 1, "client", "accept", 42, 7, nil, "lost", "bid 7 was not accepted", now).
		AddRow(uuid.New().String(), 1, "client", "submit", 42, nil, nil, "ok", "", now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT id, actor_id, role, kind, request_id, bid_id, price, outcome, detail, created_at FROM actions WHERE actor_id = \$1 AND role = \$2 AND kind = ANY\(\$3\) ORDER BY created_at DESC LIMIT \$4`).
		WithArgs(int64(1), "client", sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	actions, err := s.ListActions(context.Background(), store.ActionFilter{
		ActorID: 1,
		Role:    "client",
		Kinds:   []store.ActionKind{store.ActionAccept, store.ActionSubmit},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("ListActions failed: %v", err)
	}

	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].ID != id || actions[0].Outcome != store.OutcomeLost {
		t.Errorf("unexpected first action %+v", actions[0])
	}
	if actions[0].RequestID == nil || *actions[0].RequestID != 42 {
		t.Errorf("expected request 42, got %v", actions[0].RequestID)
	}
	if actions[1].BidID != nil {
		t.Errorf("expected NULL bid id, got %v", *actions[1].BidID)
	}
	if actions[0].Price.Valid {
		t.Error("expected NULL price")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListActions_DefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`FROM actions ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(store.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	actions, err := s.ListActions(context.Background(), store.ActionFilter{})
	if err != nil {
		t.Fatalf("ListActions failed: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %d", len(actions))
	}
}

func TestMigrationSource(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected up and down migration, got %d files", len(entries))
	}
}
