package refund

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/fixmarket/backend/internal/models"
)

// RefundJobArgs carries the contact snapshot taken when the job was
// withdrawn. The job row may already be gone by the time the worker runs,
// which is why the contacts travel with the args.
type RefundJobArgs struct {
	JobID    uuid.UUID        `json:"job_id"`
	Contacts []models.Contact `json:"contacts"`
}

func (RefundJobArgs) Kind() string { return "refund_job_contacts" }

type RefundJobWorker struct {
	river.WorkerDefaults[RefundJobArgs]
	coordinator *Coordinator
	log         *slog.Logger
}

func NewRefundJobWorker(coordinator *Coordinator, log *slog.Logger) *RefundJobWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RefundJobWorker{coordinator: coordinator, log: log}
}

func (w *RefundJobWorker) Work(ctx context.Context, job *river.Job[RefundJobArgs]) error {
	args := job.Args
	snap := &models.JobSnapshot{
		Job:      models.Job{ID: args.JobID},
		Contacts: args.Contacts,
	}
	refunded := w.coordinator.RefundJobContacts(ctx, snap)
	w.log.Info("job contacts refunded", "job_id", args.JobID, "refunded", refunded, "contacts", len(args.Contacts))
	// Refunds are best-effort relative to deletion; a partial count is not a
	// worker failure.
	return nil
}
