package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for Ledger and UserDirectory.
// ---------------------------------------------------------------------------

type mockLedger struct {
	mu      sync.Mutex
	records []ledger.RecordParams
	failFor map[uuid.UUID]error
}

func (m *mockLedger) Record(_ context.Context, p ledger.RecordParams) (ledger.RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[p.UserID]; ok {
		return ledger.RecordResult{}, err
	}
	m.records = append(m.records, p)
	return ledger.RecordResult{TransactionID: uuid.New()}, nil
}

func (m *mockLedger) recorded() []ledger.RecordParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.RecordParams, len(m.records))
	copy(out, m.records)
	return out
}

type mockDirectory struct {
	mu      sync.Mutex
	known   map[uuid.UUID]bool
	failFor map[uuid.UUID]error
}

func newMockDirectory(ids ...uuid.UUID) *mockDirectory {
	m := &mockDirectory{known: make(map[uuid.UUID]bool)}
	for _, id := range ids {
		m.known[id] = true
	}
	return m
}

func (m *mockDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[id]; ok {
		return false, err
	}
	return m.known[id], nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func contact(jobID, professionalID uuid.UUID, credits int) models.Contact {
	return models.Contact{
		ID:             uuid.New(),
		JobID:          jobID,
		ProfessionalID: professionalID,
		CreditsUsed:    credits,
	}
}

func snapshot(jobID uuid.UUID, contacts ...models.Contact) *models.JobSnapshot {
	return &models.JobSnapshot{
		Job:      models.Job{ID: jobID, Status: models.JobStatusWithdrawn},
		Contacts: contacts,
	}
}

var discard = slog.New(slog.DiscardHandler)

// ---------------------------------------------------------------------------
// 1. Every paid contact gets its credits back
// ---------------------------------------------------------------------------

func TestRefundJobContacts(t *testing.T) {
	jobID := uuid.New()
	pros := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	spent := []int{3, 2, 1}

	led := &mockLedger{}
	dir := newMockDirectory(pros...)
	c := NewCoordinator(led, dir, discard)

	snap := snapshot(jobID,
		contact(jobID, pros[0], spent[0]),
		contact(jobID, pros[1], spent[1]),
		contact(jobID, pros[2], spent[2]),
	)
	if got := c.RefundJobContacts(context.Background(), snap); got != 3 {
		t.Fatalf("refunded count: got %d, want 3", got)
	}

	records := led.recorded()
	if len(records) != 3 {
		t.Fatalf("ledger records: got %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.UserID != pros[i] {
			t.Errorf("record %d: user got %s, want %s", i, rec.UserID, pros[i])
		}
		if rec.Delta != spent[i] {
			t.Errorf("record %d: delta got %d, want %d", i, rec.Delta, spent[i])
		}
		if rec.Kind != models.TxKindRefund {
			t.Errorf("record %d: kind got %q, want %q", i, rec.Kind, models.TxKindRefund)
		}
		if rec.Metadata["reason"] != "job_deleted" {
			t.Errorf("record %d: reason got %v, want job_deleted", i, rec.Metadata["reason"])
		}
		if rec.Metadata["job_id"] != jobID.String() {
			t.Errorf("record %d: job_id got %v, want %s", i, rec.Metadata["job_id"], jobID)
		}
		if rec.Metadata["original_credits_used"] != spent[i] {
			t.Errorf("record %d: original_credits_used got %v, want %d", i, rec.Metadata["original_credits_used"], spent[i])
		}
		wantKey := fmt.Sprintf("refund:%s:%s", jobID, snap.Contacts[i].ID)
		if rec.IdempotencyKey != wantKey {
			t.Errorf("record %d: key got %q, want %q", i, rec.IdempotencyKey, wantKey)
		}
	}
}

// ---------------------------------------------------------------------------
// 2. Free contacts and vanished professionals are skipped silently
// ---------------------------------------------------------------------------

func TestRefundSkipsFreeContacts(t *testing.T) {
	jobID := uuid.New()
	pro := uuid.New()

	led := &mockLedger{}
	c := NewCoordinator(led, newMockDirectory(pro), discard)

	snap := snapshot(jobID,
		contact(jobID, pro, 0),
		contact(jobID, pro, -2),
	)
	if got := c.RefundJobContacts(context.Background(), snap); got != 0 {
		t.Errorf("refunded count: got %d, want 0", got)
	}
	if len(led.recorded()) != 0 {
		t.Error("free contacts must not reach the ledger")
	}
}

func TestRefundSkipsDeletedProfessional(t *testing.T) {
	jobID := uuid.New()
	alive := uuid.New()
	gone := uuid.New()

	led := &mockLedger{}
	c := NewCoordinator(led, newMockDirectory(alive), discard)

	snap := snapshot(jobID,
		contact(jobID, gone, 3),
		contact(jobID, alive, 2),
	)
	if got := c.RefundJobContacts(context.Background(), snap); got != 1 {
		t.Fatalf("refunded count: got %d, want 1", got)
	}
	records := led.recorded()
	if len(records) != 1 || records[0].UserID != alive {
		t.Error("only the surviving professional should be refunded")
	}
}

// ---------------------------------------------------------------------------
// 3. Individual failures never stop the sweep
// ---------------------------------------------------------------------------

func TestRefundContinuesPastFailures(t *testing.T) {
	jobID := uuid.New()
	lookupFails := uuid.New()
	recordFails := uuid.New()
	fine := uuid.New()

	led := &mockLedger{failFor: map[uuid.UUID]error{recordFails: errors.New("tx rolled back")}}
	dir := newMockDirectory(lookupFails, recordFails, fine)
	dir.failFor = map[uuid.UUID]error{lookupFails: errors.New("connection reset")}
	c := NewCoordinator(led, dir, discard)

	snap := snapshot(jobID,
		contact(jobID, lookupFails, 3),
		contact(jobID, recordFails, 2),
		contact(jobID, fine, 1),
	)
	if got := c.RefundJobContacts(context.Background(), snap); got != 1 {
		t.Fatalf("refunded count: got %d, want 1", got)
	}
	records := led.recorded()
	if len(records) != 1 || records[0].UserID != fine {
		t.Error("the healthy professional should still be refunded")
	}
}

func TestRefundEmptySnapshot(t *testing.T) {
	c := NewCoordinator(&mockLedger{}, newMockDirectory(), discard)
	if got := c.RefundJobContacts(context.Background(), snapshot(uuid.New())); got != 0 {
		t.Errorf("refunded count: got %d, want 0", got)
	}
}
