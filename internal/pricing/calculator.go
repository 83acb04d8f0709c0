package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/models"
)

// Reason codes returned alongside a price.
const (
	ReasonNoCreationDate   = "no_creation_date"
	ReasonNewJobFree       = "new_job_free"
	ReasonContactedDayOne  = "contacted_job_0_24h_after_first"
	ReasonContactedDayTwo  = "contacted_job_24_48h"
	ReasonContactedExpired = "contacted_job_expired"
)

// Quote is the outcome of pricing one contact attempt.
type Quote struct {
	Credits int    `json:"credits"`
	Reason  string `json:"reason"`
}

// Price computes the credit cost for contacting a job, as a pure function of
// the snapshot, the threshold table and the clock. The boolean reports that
// the job aged out of the contacted bracket and should be marked expired.
//
// Jobs nobody has contacted yet are priced from the configurable table. Jobs
// with at least one contact use fixed 24h/48h tiers instead; the two regimes
// are deliberately kept separate even where they disagree.
func Price(snap *models.JobSnapshot, table ThresholdTable, now time.Time) (Quote, bool) {
	if snap.CreatedAt == nil {
		return Quote{Credits: 1, Reason: ReasonNoCreationDate}, false
	}
	age := now.UTC().Sub(snap.CreatedAt.UTC()).Hours()

	if len(snap.Contacts) > 0 {
		switch {
		case age <= 24:
			return Quote{Credits: 2, Reason: ReasonContactedDayOne}, false
		case age <= 48:
			return Quote{Credits: 3, Reason: ReasonContactedDayTwo}, false
		default:
			return Quote{Credits: 0, Reason: ReasonContactedExpired}, true
		}
	}

	lower := 0
	for _, th := range table {
		if age <= float64(th.MaxAgeHours) {
			return Quote{Credits: th.Credits, Reason: fmt.Sprintf("new_job_%d_%dh", lower, th.MaxAgeHours)}, false
		}
		lower = th.MaxAgeHours
	}
	return Quote{Credits: 0, Reason: ReasonNewJobFree}, false
}

// SettingsSource loads the configured threshold table.
type SettingsSource interface {
	Thresholds(ctx context.Context) (ThresholdTable, error)
}

// StatusWriter marks a job expired. Used best-effort only.
type StatusWriter interface {
	MarkExpired(ctx context.Context, jobID uuid.UUID) error
}

// Calculator prices contact attempts against the stored threshold table,
// falling back to DefaultThresholds when the table is absent or invalid.
type Calculator struct {
	settings SettingsSource
	jobs     StatusWriter
	now      func() time.Time
	log      *slog.Logger
}

func NewCalculator(settings SettingsSource, jobs StatusWriter, log *slog.Logger) *Calculator {
	if log == nil {
		log = slog.Default()
	}
	return &Calculator{settings: settings, jobs: jobs, now: time.Now, log: log}
}

// Quote loads the threshold table and prices the snapshot. It has no balance
// side effects; the only side effect is the best-effort expired write, whose
// failure is logged and swallowed.
func (c *Calculator) Quote(ctx context.Context, snap *models.JobSnapshot) Quote {
	q, expire := Price(snap, c.loadTable(ctx), c.now())
	if expire {
		if err := c.jobs.MarkExpired(ctx, snap.ID); err != nil {
			c.log.Warn("mark job expired failed", "job_id", snap.ID, "error", err)
		}
	}
	return q
}

func (c *Calculator) loadTable(ctx context.Context) ThresholdTable {
	table, err := c.settings.Thresholds(ctx)
	if err != nil {
		c.log.Warn("load threshold table failed, using defaults", "error", err)
		return DefaultThresholds()
	}
	normalized, err := table.Normalize()
	if err != nil {
		if len(table) > 0 {
			c.log.Warn("stored threshold table invalid, using defaults", "error", err)
		}
		return DefaultThresholds()
	}
	return normalized
}
