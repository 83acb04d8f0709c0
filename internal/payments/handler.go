package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/models"
)

// Ledger is the minimal ledger surface the webhook needs.
type Ledger interface {
	Record(ctx context.Context, p ledger.RecordParams) (ledger.RecordResult, error)
}

// ConfirmationRequest is the parsed payment-confirmation event. The gateway
// webhook parser lives upstream; by the time it calls here the payment is
// already settled and only the credit grant remains.
type ConfirmationRequest struct {
	UserID     string `json:"user_id"`
	Credits    int    `json:"credits"`
	Kind       string `json:"kind"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Reference  string `json:"reference"`
}

type ConfirmationResponse struct {
	TransactionID string `json:"transaction_id"`
	NewBalance    int    `json:"new_balance"`
	Replayed      bool   `json:"replayed"`
}

type Handler struct {
	ledger Ledger
	secret string
	log    *slog.Logger
}

func NewHandler(ledger Ledger, secret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: ledger, secret: secret, log: log}
}

// Confirm handles POST /api/v1/payments/confirm. The gateway reference
// doubles as the idempotency key, so redelivered webhooks grant once.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.secret)) != 1 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req ConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid user_id"}`, http.StatusBadRequest)
		return
	}
	if req.Credits <= 0 {
		http.Error(w, `{"error":"credits must be positive"}`, http.StatusBadRequest)
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = models.TxKindPurchase
	}
	if kind != models.TxKindPurchase && kind != models.TxKindGrant {
		http.Error(w, `{"error":"kind must be purchase or grant"}`, http.StatusBadRequest)
		return
	}

	var key string
	if req.Reference != "" {
		key = "payment:" + req.Reference
	}
	res, err := h.ledger.Record(r.Context(), ledger.RecordParams{
		UserID:   userID,
		Delta:    req.Credits,
		Kind:     kind,
		Price:    req.PriceCents,
		Currency: req.Currency,
		Metadata: map[string]any{
			"reference": req.Reference,
			"source":    "payment_gateway",
		},
		IdempotencyKey: key,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("payment confirmation failed", "user_id", userID, "reference", req.Reference, "error", err)
		http.Error(w, `{"error":"payment confirmation failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ConfirmationResponse{
		TransactionID: res.TransactionID.String(),
		NewBalance:    res.NewBalance,
		Replayed:      res.Replayed,
	})
}
