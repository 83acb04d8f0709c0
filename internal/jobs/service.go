package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/refund"
)

var (
	// ErrNotJobOwner is returned when a caller withdraws a job they did not post.
	ErrNotJobOwner = errors.New("job does not belong to caller")
	// ErrJobWithdrawn is returned on repeated withdrawal of the same job.
	ErrJobWithdrawn = errors.New("job already withdrawn")
)

// InsertRefundJobTxFunc enqueues a refund fan-out within the given
// transaction. Provided by main using river.Client.InsertTx.
type InsertRefundJobTxFunc func(ctx context.Context, tx pgx.Tx, args refund.RefundJobArgs) error

type Service interface {
	Create(ctx context.Context, clientID uuid.UUID, title, description string) (*models.Job, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.JobSnapshot, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	ListOpen(ctx context.Context, limit int) ([]*models.Job, error)
	Withdraw(ctx context.Context, jobID, clientID uuid.UUID) error
}

type service struct {
	repo            *Repository
	insertRefundJob InsertRefundJobTxFunc
	log             *slog.Logger
}

// NewService creates a jobs service. insertRefundJob is typically a closure
// over river.Client.InsertTx.
func NewService(repo *Repository, insertRefundJob InsertRefundJobTxFunc, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, insertRefundJob: insertRefundJob, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, clientID uuid.UUID, title, description string) (*models.Job, error) {
	return s.repo.Create(ctx, clientID, title, description)
}

func (s *service) Get(ctx context.Context, jobID uuid.UUID) (*models.JobSnapshot, error) {
	return s.repo.GetSnapshot(ctx, jobID)
}

func (s *service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	return s.repo.ListByClient(ctx, clientID)
}

func (s *service) ListOpen(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.repo.ListOpen(ctx, limit)
}

// Withdraw marks the job withdrawn and enqueues the refund fan-out in the
// same transaction, so a committed withdrawal always has its refund job and
// vice versa. The refunds themselves run in the background and never block
// or abort the withdrawal.
func (s *service) Withdraw(ctx context.Context, jobID, clientID uuid.UUID) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if job.ClientID != clientID {
		return ErrNotJobOwner
	}
	if job.Status == models.JobStatusWithdrawn {
		return ErrJobWithdrawn
	}

	contacts, err := s.repo.ListContactsTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkWithdrawnTx(ctx, tx, jobID); err != nil {
		return err
	}
	if err := s.insertRefundJob(ctx, tx, refund.RefundJobArgs{JobID: jobID, Contacts: contacts}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
