package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixmarket/backend/internal/middleware"
	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/pricing"
	"github.com/fixmarket/backend/internal/repository"
)

// Handler serves the account surface: own profile and balance, the audit
// trail, and the admin view of the pricing thresholds.
type Handler struct {
	users    *repository.UserRepo
	txs      *repository.TransactionRepo
	settings *repository.SettingsRepo
	log      *slog.Logger
}

func NewHandler(users *repository.UserRepo, txs *repository.TransactionRepo, settings *repository.SettingsRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, txs: txs, settings: settings, log: log}
}

type MeResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Credits int    `json:"credits"`
}

// GetMe handles GET /api/v1/account/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("load account failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"load account failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		ID:      user.ID.String(),
		Email:   user.Email,
		Name:    user.Name,
		Role:    user.Role,
		Credits: user.Credits,
	})
}

// ListTransactions handles GET /api/v1/transactions: the caller's audit trail,
// newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.txs.ListByUserID(r.Context(), id.UserID, 100)
	if err != nil {
		h.log.Error("list transactions failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"list transactions failed"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetTransaction handles GET /api/v1/transactions/{id}. Callers can only see
// their own rows; admins can see anyone's.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	txID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid transaction id"}`, http.StatusBadRequest)
		return
	}
	tx, err := h.txs.GetByID(r.Context(), txID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"transaction not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("load transaction failed", "transaction_id", txID, "error", err)
		http.Error(w, `{"error":"load transaction failed"}`, http.StatusInternalServerError)
		return
	}
	if tx.UserID != id.UserID && id.Role != models.RoleAdmin {
		http.Error(w, `{"error":"transaction not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type ThresholdsResponse struct {
	Thresholds pricing.ThresholdTable `json:"thresholds"`
	Default    bool                   `json:"default"`
}

// GetPricing handles GET /api/v1/admin/pricing.
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	table, err := h.settings.Thresholds(r.Context())
	if err != nil {
		h.log.Error("load thresholds failed", "error", err)
		http.Error(w, `{"error":"load thresholds failed"}`, http.StatusInternalServerError)
		return
	}
	resp := ThresholdsResponse{Thresholds: table}
	if len(table) == 0 {
		resp.Thresholds = pricing.DefaultThresholds()
		resp.Default = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdatePricing handles PUT /api/v1/admin/pricing. The table is validated
// and sorted before it is stored; pricing reads it on every call.
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var table pricing.ThresholdTable
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	normalized, err := table.Normalize()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	if err := h.settings.SaveThresholds(r.Context(), normalized); err != nil {
		h.log.Error("save thresholds failed", "error", err)
		http.Error(w, `{"error":"save thresholds failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ThresholdsResponse{Thresholds: normalized})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
