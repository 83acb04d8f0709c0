package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixmarket/backend/internal/middleware"
	"github.com/fixmarket/backend/internal/models"
)

type CreateJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type JobResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type JobDetailResponse struct {
	JobResponse
	Contacts []models.Contact `json:"contacts"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}
	job, err := h.svc.Create(r.Context(), id.UserID, req.Title, req.Description)
	if err != nil {
		h.log.Error("create job failed", "error", err)
		http.Error(w, `{"error":"create job failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, jobToResponse(job))
}

// ListJobs returns the caller's own jobs for clients and the open board for
// professionals.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var (
		list []*models.Job
		err  error
	)
	if id.Role == models.RoleProfessional {
		list, err = h.svc.ListOpen(r.Context(), 50)
	} else {
		list, err = h.svc.ListByClient(r.Context(), id.UserID)
	}
	if err != nil {
		h.log.Error("list jobs failed", "error", err)
		http.Error(w, `{"error":"list jobs failed"}`, http.StatusInternalServerError)
		return
	}
	resp := make([]JobResponse, 0, len(list))
	for _, j := range list {
		resp = append(resp, jobToResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	snap, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get job failed", "job_id", jobID, "error", err)
		http.Error(w, `{"error":"get job failed"}`, http.StatusInternalServerError)
		return
	}
	resp := JobDetailResponse{JobResponse: jobToResponse(&snap.Job), Contacts: snap.Contacts}
	if resp.Contacts == nil {
		resp.Contacts = []models.Contact{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// WithdrawJob removes a job from the board. Refunds for its contacts are
// enqueued as part of the same transaction and run in the background.
func (h *Handler) WithdrawJob(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.Withdraw(r.Context(), jobID, id.UserID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrNotJobOwner):
			http.Error(w, `{"error":"job does not belong to caller"}`, http.StatusForbidden)
		case errors.Is(err, ErrJobWithdrawn):
			http.Error(w, `{"error":"job already withdrawn"}`, http.StatusConflict)
		default:
			h.log.Error("withdraw job failed", "job_id", jobID, "error", err)
			http.Error(w, `{"error":"withdraw job failed"}`, http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func jobToResponse(j *models.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Title:       j.Title,
		Description: j.Description,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
