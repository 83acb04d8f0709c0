package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/middleware"
	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/pricing"
)

type CreateContactRequest struct {
	Message string `json:"message"`
}

type ContactResponse struct {
	Contact *models.Contact `json:"contact"`
	Quote   pricing.Quote   `json:"quote"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// CreateContact handles POST /api/v1/jobs/{id}/contacts. The optional
// Idempotency-Key header makes client retries safe against double debits.
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	var req CreateContactRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
	}

	contact, quote, err := h.svc.Create(r.Context(), id.UserID, jobID, req.Message, r.Header.Get("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrJobUnavailable):
			http.Error(w, `{"error":"job is not available for contact"}`, http.StatusConflict)
		case errors.Is(err, ErrAlreadyContacted):
			http.Error(w, `{"error":"job already contacted"}`, http.StatusConflict)
		case errors.Is(err, ledger.ErrInsufficientCredits):
			http.Error(w, fmt.Sprintf(`{"error":"insufficient credits","required":%d}`, quote.Credits), http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrUserNotFound):
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		default:
			h.log.Error("create contact failed", "job_id", jobID, "error", err)
			http.Error(w, `{"error":"create contact failed"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, ContactResponse{Contact: contact, Quote: quote})
}

// GetPrice handles GET /api/v1/jobs/{id}/price: a quote with no balance
// side effects.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	quote, err := h.svc.Price(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("price quote failed", "job_id", jobID, "error", err)
		http.Error(w, `{"error":"price quote failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
