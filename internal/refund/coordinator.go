package refund

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/models"
)

// Ledger is the minimal ledger surface the coordinator needs.
type Ledger interface {
	Record(ctx context.Context, p ledger.RecordParams) (ledger.RecordResult, error)
}

// UserDirectory reports whether a professional still exists.
type UserDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Coordinator reverses the credits spent on a job's contacts when the job is
// withdrawn before completion.
type Coordinator struct {
	ledger Ledger
	users  UserDirectory
	log    *slog.Logger
}

func NewCoordinator(ledger Ledger, users UserDirectory, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{ledger: ledger, users: users, log: log}
}

// RefundJobContacts grants back credits_used to every contact's professional
// and returns how many refunds went through. Contacts with credits_used <= 0
// and professionals that no longer exist are skipped silently; individual
// failures are logged and never escalate, so the caller's deletion flow
// always proceeds. Each refund carries a key derived from the job and
// contact ids, so running the coordinator twice for the same job does not
// refund twice.
func (c *Coordinator) RefundJobContacts(ctx context.Context, snap *models.JobSnapshot) int {
	count := 0
	for _, contact := range snap.Contacts {
		if contact.CreditsUsed <= 0 {
			continue
		}
		exists, err := c.users.Exists(ctx, contact.ProfessionalID)
		if err != nil {
			c.log.Error("refund: professional lookup failed", "job_id", snap.ID, "professional_id", contact.ProfessionalID, "error", err)
			continue
		}
		if !exists {
			continue
		}
		_, err = c.ledger.Record(ctx, ledger.RecordParams{
			UserID: contact.ProfessionalID,
			Delta:  contact.CreditsUsed,
			Kind:   models.TxKindRefund,
			Metadata: map[string]any{
				"job_id":                snap.ID.String(),
				"reason":                "job_deleted",
				"original_credits_used": contact.CreditsUsed,
			},
			IdempotencyKey: fmt.Sprintf("refund:%s:%s", snap.ID, contact.ID),
		})
		if err != nil {
			c.log.Error("refund: record failed", "job_id", snap.ID, "professional_id", contact.ProfessionalID, "error", err)
			continue
		}
		count++
	}
	return count
}
