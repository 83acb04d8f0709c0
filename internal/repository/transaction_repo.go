package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixmarket/backend/internal/models"
)

// TransactionRepo is the read side of the audit log. Writes go through the
// ledger package so they stay fused with their balance effects.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	var meta []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, credits, price, currency, metadata, status, balance_after, idempotency_key, created_at
		FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Kind, &t.Credits, &t.Price, &t.Currency, &meta, &t.Status, &t.BalanceAfter, &t.IdempotencyKey, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (r *TransactionRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, credits, price, currency, metadata, status, balance_after, idempotency_key, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var meta []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Credits, &t.Price, &t.Currency, &meta, &t.Status, &t.BalanceAfter, &t.IdempotencyKey, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, err
			}
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
