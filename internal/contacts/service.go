package contacts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/pricing"
)

var (
	// ErrJobNotFound is returned when the job snapshot cannot be loaded.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobUnavailable is returned for withdrawn jobs.
	ErrJobUnavailable = errors.New("job is not available for contact")
	// ErrAlreadyContacted is returned when the professional has a contact on
	// this job already.
	ErrAlreadyContacted = errors.New("job already contacted by caller")
)

// JobStore is the minimal job surface the contact flow needs.
type JobStore interface {
	GetSnapshot(ctx context.Context, jobID uuid.UUID) (*models.JobSnapshot, error)
	InsertContact(ctx context.Context, c *models.Contact) error
}

// Pricer quotes the cost of a contact attempt.
type Pricer interface {
	Quote(ctx context.Context, snap *models.JobSnapshot) pricing.Quote
}

// Ledger is the minimal ledger surface the contact flow needs.
type Ledger interface {
	Spend(ctx context.Context, p ledger.SpendParams) (*ledger.SpendResult, error)
	Record(ctx context.Context, p ledger.RecordParams) (ledger.RecordResult, error)
}

// Service runs the create-contact use case: price the attempt, debit the
// professional exactly once, then persist the contact.
type Service struct {
	jobs   JobStore
	pricer Pricer
	ledger Ledger
	log    *slog.Logger
}

func NewService(jobs JobStore, pricer Pricer, ledger Ledger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{jobs: jobs, pricer: pricer, ledger: ledger, log: log}
}

// Create contacts the job on behalf of the professional. The spend and its
// audit row are fused in one store transaction; idempotencyKey, when
// supplied by the caller, makes a retried request a no-op instead of a
// second debit. On ledger failure no contact is created and no audit row is
// written.
func (s *Service) Create(ctx context.Context, professionalID, jobID uuid.UUID, message, idempotencyKey string) (*models.Contact, pricing.Quote, error) {
	snap, err := s.jobs.GetSnapshot(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pricing.Quote{}, ErrJobNotFound
		}
		return nil, pricing.Quote{}, err
	}
	if snap.Status == models.JobStatusWithdrawn {
		return nil, pricing.Quote{}, ErrJobUnavailable
	}
	for _, c := range snap.Contacts {
		if c.ProfessionalID == professionalID {
			return nil, pricing.Quote{}, ErrAlreadyContacted
		}
	}

	quote := s.pricer.Quote(ctx, snap)

	var spendTxID *uuid.UUID
	if quote.Credits > 0 {
		res, err := s.ledger.Spend(ctx, ledger.SpendParams{
			UserID: professionalID,
			Amount: quote.Credits,
			Kind:   models.TxKindDeduction,
			Metadata: map[string]any{
				"job_id": jobID.String(),
				"reason": quote.Reason,
			},
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return nil, quote, err
		}
		spendTxID = &res.TransactionID
	}

	contact := &models.Contact{
		ID:             uuid.New(),
		JobID:          jobID,
		ProfessionalID: professionalID,
		CreditsUsed:    quote.Credits,
		Message:        message,
	}
	if err := s.jobs.InsertContact(ctx, contact); err != nil {
		if isUniqueViolation(err) {
			s.compensate(ctx, professionalID, jobID, quote.Credits, spendTxID)
			return nil, quote, ErrAlreadyContacted
		}
		return nil, quote, err
	}
	return contact, quote, nil
}

// compensate grants back a spend that lost the race against a concurrent
// duplicate contact. Keyed on the spend transaction so the compensation
// itself cannot double-apply.
func (s *Service) compensate(ctx context.Context, professionalID, jobID uuid.UUID, credits int, spendTxID *uuid.UUID) {
	if credits <= 0 || spendTxID == nil {
		return
	}
	_, err := s.ledger.Record(ctx, ledger.RecordParams{
		UserID: professionalID,
		Delta:  credits,
		Kind:   models.TxKindRefund,
		Metadata: map[string]any{
			"job_id": jobID.String(),
			"reason": "duplicate_contact",
		},
		IdempotencyKey: "contact-dup:" + spendTxID.String(),
	})
	if err != nil {
		s.log.Error("compensating refund failed", "job_id", jobID, "professional_id", professionalID, "error", err)
	}
}

// Price quotes a contact attempt without any balance effect.
func (s *Service) Price(ctx context.Context, jobID uuid.UUID) (pricing.Quote, error) {
	snap, err := s.jobs.GetSnapshot(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Quote{}, ErrJobNotFound
		}
		return pricing.Quote{}, err
	}
	return s.pricer.Quote(ctx, snap), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
