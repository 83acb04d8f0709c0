package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/models"
)

// Amount guards run before any store access, so a nil repository is fine here.

func TestDeductRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(nil)
	for _, amount := range []int{0, -1} {
		if _, err := svc.Deduct(context.Background(), uuid.New(), amount); err == nil {
			t.Errorf("Deduct(%d) should fail", amount)
		}
	}
}

func TestGrantRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(nil)
	for _, amount := range []int{0, -5} {
		if _, err := svc.Grant(context.Background(), uuid.New(), amount); err == nil {
			t.Errorf("Grant(%d) should fail", amount)
		}
	}
}

func TestSpendRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(nil)
	for _, amount := range []int{0, -3} {
		_, err := svc.Spend(context.Background(), SpendParams{UserID: uuid.New(), Amount: amount})
		if err == nil {
			t.Errorf("Spend(%d) should fail", amount)
		}
	}
}

func TestNewTransactionDefaults(t *testing.T) {
	userID := uuid.New()

	tx := newTransaction(userID, -3, models.TxKindDeduction, map[string]any{"job_id": "x"}, 0, "", "")
	if tx.Currency != DefaultCurrency {
		t.Errorf("currency: got %q, want %q", tx.Currency, DefaultCurrency)
	}
	if tx.IdempotencyKey != nil {
		t.Error("empty key must stay nil, not empty string")
	}
	if tx.Credits != -3 {
		t.Errorf("credits: got %d, want -3", tx.Credits)
	}
	if tx.Status != models.TxStatusCompleted {
		t.Errorf("status: got %q, want %q", tx.Status, models.TxStatusCompleted)
	}
	if tx.ID == uuid.Nil {
		t.Error("transaction id must be assigned")
	}

	tx = newTransaction(userID, 5, models.TxKindGrant, nil, 499, "USD", "payment:ref-1")
	if tx.Currency != "USD" {
		t.Errorf("currency: got %q, want USD", tx.Currency)
	}
	if tx.IdempotencyKey == nil || *tx.IdempotencyKey != "payment:ref-1" {
		t.Errorf("key: got %v, want payment:ref-1", tx.IdempotencyKey)
	}
	if tx.Price != 499 {
		t.Errorf("price: got %d, want 499", tx.Price)
	}
}
