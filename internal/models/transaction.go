package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. Deductions carry a negative credit delta, everything
// else a positive one.
const (
	TxKindGrant     = "grant"
	TxKindDeduction = "deduction"
	TxKindRefund    = "refund"
	TxKindPurchase  = "purchase"
)

const TxStatusCompleted = "completed"

// Transaction is one append-only audit row. The users.credits column is the
// authoritative balance; rows here are never updated or deleted.
type Transaction struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	Kind           string         `json:"kind"`
	Credits        int            `json:"credits"`
	Price          int64          `json:"price"`
	Currency       string         `json:"currency"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Status         string         `json:"status"`
	BalanceAfter   *int           `json:"balance_after,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
