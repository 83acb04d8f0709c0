package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusOpen      = "open"
	JobStatusExpired   = "expired"
	JobStatusWithdrawn = "withdrawn"
)

// Job is a posted request for work. CreatedAt is nullable: rows imported from
// the legacy system can lack it, and pricing has a dedicated branch for that.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Contact records one professional unlocking a job, with the credits spent.
type Contact struct {
	ID             uuid.UUID `json:"id"`
	JobID          uuid.UUID `json:"job_id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	CreditsUsed    int       `json:"credits_used"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// JobSnapshot is a job together with its contact list, the unit both the
// pricing calculator and the refund coordinator operate on.
type JobSnapshot struct {
	Job
	Contacts []Contact `json:"contacts"`
}
