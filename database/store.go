package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SMDV/cakravia-v0-sub001/models"

	"go.uber.org/zap"
)

// Store persists the reconciliation audit trail and unlock snapshots. The
// backend remains the source of truth for orders; this is local durable
// state so an unlock survives a restart without re-polling the backend.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) RecordAttempt(ctx context.Context, a models.ConfirmationAttempt) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO confirmation_attempts (order_id, trigger, observed_status, checked_at) VALUES ($1, $2, $3, $4)",
		a.OrderID, string(a.Trigger), string(a.ObservedStatus), a.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *Store) RecordUnlock(ctx context.Context, order models.Order) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO result_unlocks (order_id, product_ref, payer_ref, amount) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING",
		order.ID, order.ProductRef, order.PayerRef, order.Amount,
	)
	if err != nil {
		return fmt.Errorf("record unlock: %w", err)
	}
	return nil
}

func (s *Store) IsUnlocked(ctx context.Context, productRef, payerRef string) (bool, error) {
	var orderID string
	err := s.db.QueryRowContext(
		ctx,
		"SELECT order_id FROM result_unlocks WHERE product_ref = $1 AND payer_ref = $2",
		productRef, payerRef,
	).Scan(&orderID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query unlock: %w", err)
	}
	return true, nil
}
