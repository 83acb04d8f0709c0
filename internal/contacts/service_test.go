package contacts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fixmarket/backend/internal/ledger"
	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/pricing"
)

// ---------------------------------------------------------------------------
// In-memory mocks for JobStore, Pricer and Ledger.
// ---------------------------------------------------------------------------

type mockJobStore struct {
	mu        sync.Mutex
	snap      *models.JobSnapshot
	snapErr   error
	inserted  []*models.Contact
	insertErr error
}

func (m *mockJobStore) GetSnapshot(_ context.Context, _ uuid.UUID) (*models.JobSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapErr != nil {
		return nil, m.snapErr
	}
	return m.snap, nil
}

func (m *mockJobStore) InsertContact(_ context.Context, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *c
	m.inserted = append(m.inserted, &cp)
	return nil
}

func (m *mockJobStore) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

type fixedPricer struct {
	quote pricing.Quote
}

func (p fixedPricer) Quote(context.Context, *models.JobSnapshot) pricing.Quote { return p.quote }

type mockLedger struct {
	mu       sync.Mutex
	spends   []ledger.SpendParams
	spendErr error
	records  []ledger.RecordParams
	balance  int
	lastTxID uuid.UUID
}

func (m *mockLedger) Spend(_ context.Context, p ledger.SpendParams) (*ledger.SpendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spendErr != nil {
		return nil, m.spendErr
	}
	m.spends = append(m.spends, p)
	m.balance -= p.Amount
	m.lastTxID = uuid.New()
	return &ledger.SpendResult{TransactionID: m.lastTxID, NewBalance: m.balance}, nil
}

func (m *mockLedger) Record(_ context.Context, p ledger.RecordParams) (ledger.RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, p)
	m.balance += p.Delta
	return ledger.RecordResult{TransactionID: uuid.New(), NewBalance: m.balance}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var discard = slog.New(slog.DiscardHandler)

func openSnap(jobID uuid.UUID, contacts ...models.Contact) *models.JobSnapshot {
	return &models.JobSnapshot{
		Job:      models.Job{ID: jobID, Status: models.JobStatusOpen},
		Contacts: contacts,
	}
}

// ---------------------------------------------------------------------------
// 1. Paid contact: one spend, then the contact row
// ---------------------------------------------------------------------------

func TestCreatePaidContact(t *testing.T) {
	jobID := uuid.New()
	pro := uuid.New()

	jobs := &mockJobStore{snap: openSnap(jobID)}
	led := &mockLedger{balance: 10}
	svc := NewService(jobs, fixedPricer{pricing.Quote{Credits: 3, Reason: "new_job_0_12h"}}, led, discard)

	contact, quote, err := svc.Create(context.Background(), pro, jobID, "hello", "req-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if quote.Credits != 3 {
		t.Errorf("quote credits: got %d, want 3", quote.Credits)
	}
	if contact.CreditsUsed != 3 || contact.ProfessionalID != pro || contact.JobID != jobID {
		t.Errorf("contact fields wrong: %+v", contact)
	}

	if len(led.spends) != 1 {
		t.Fatalf("spends: got %d, want 1", len(led.spends))
	}
	spend := led.spends[0]
	if spend.UserID != pro || spend.Amount != 3 {
		t.Errorf("spend: got user=%s amount=%d", spend.UserID, spend.Amount)
	}
	if spend.Kind != models.TxKindDeduction {
		t.Errorf("spend kind: got %q, want %q", spend.Kind, models.TxKindDeduction)
	}
	if spend.IdempotencyKey != "req-1" {
		t.Errorf("spend key: got %q, want req-1", spend.IdempotencyKey)
	}
	if spend.Metadata["job_id"] != jobID.String() || spend.Metadata["reason"] != "new_job_0_12h" {
		t.Errorf("spend metadata: %+v", spend.Metadata)
	}
	if jobs.insertedCount() != 1 {
		t.Errorf("contacts inserted: got %d, want 1", jobs.insertedCount())
	}
}

// ---------------------------------------------------------------------------
// 2. Free contact: no ledger traffic at all
// ---------------------------------------------------------------------------

func TestCreateFreeContact(t *testing.T) {
	jobID := uuid.New()
	jobs := &mockJobStore{snap: openSnap(jobID)}
	led := &mockLedger{}
	svc := NewService(jobs, fixedPricer{pricing.Quote{Credits: 0, Reason: pricing.ReasonNewJobFree}}, led, discard)

	contact, _, err := svc.Create(context.Background(), uuid.New(), jobID, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if contact.CreditsUsed != 0 {
		t.Errorf("credits used: got %d, want 0", contact.CreditsUsed)
	}
	if len(led.spends) != 0 || len(led.records) != 0 {
		t.Error("free contact must not touch the ledger")
	}
	if jobs.insertedCount() != 1 {
		t.Error("free contact should still be persisted")
	}
}

// ---------------------------------------------------------------------------
// 3. Insufficient credits: no contact, error propagates
// ---------------------------------------------------------------------------

func TestCreateInsufficientCredits(t *testing.T) {
	jobID := uuid.New()
	jobs := &mockJobStore{snap: openSnap(jobID)}
	led := &mockLedger{spendErr: ledger.ErrInsufficientCredits}
	svc := NewService(jobs, fixedPricer{pricing.Quote{Credits: 2}}, led, discard)

	_, quote, err := svc.Create(context.Background(), uuid.New(), jobID, "", "")
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if quote.Credits != 2 {
		t.Errorf("quote should still carry the required amount, got %d", quote.Credits)
	}
	if jobs.insertedCount() != 0 {
		t.Error("no contact may exist after a failed spend")
	}
}

// ---------------------------------------------------------------------------
// 4. Unavailable and missing jobs
// ---------------------------------------------------------------------------

func TestCreateJobNotFound(t *testing.T) {
	jobs := &mockJobStore{snapErr: pgx.ErrNoRows}
	svc := NewService(jobs, fixedPricer{}, &mockLedger{}, discard)

	_, _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), "", "")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCreateWithdrawnJob(t *testing.T) {
	jobID := uuid.New()
	snap := openSnap(jobID)
	snap.Status = models.JobStatusWithdrawn
	led := &mockLedger{}
	svc := NewService(&mockJobStore{snap: snap}, fixedPricer{pricing.Quote{Credits: 2}}, led, discard)

	_, _, err := svc.Create(context.Background(), uuid.New(), jobID, "", "")
	if !errors.Is(err, ErrJobUnavailable) {
		t.Fatalf("expected ErrJobUnavailable, got %v", err)
	}
	if len(led.spends) != 0 {
		t.Error("withdrawn job must not be charged for")
	}
}

// ---------------------------------------------------------------------------
// 5. Duplicate contacts: pre-check and the insert race
// ---------------------------------------------------------------------------

func TestCreateAlreadyContacted(t *testing.T) {
	jobID := uuid.New()
	pro := uuid.New()
	existing := models.Contact{ID: uuid.New(), JobID: jobID, ProfessionalID: pro, CreditsUsed: 2}

	led := &mockLedger{}
	svc := NewService(&mockJobStore{snap: openSnap(jobID, existing)}, fixedPricer{pricing.Quote{Credits: 2}}, led, discard)

	_, _, err := svc.Create(context.Background(), pro, jobID, "", "")
	if !errors.Is(err, ErrAlreadyContacted) {
		t.Fatalf("expected ErrAlreadyContacted, got %v", err)
	}
	if len(led.spends) != 0 {
		t.Error("known duplicate must not be charged")
	}
}

func TestCreateDuplicateRaceCompensates(t *testing.T) {
	jobID := uuid.New()
	pro := uuid.New()

	// Snapshot looks clean but the insert hits the unique constraint: a
	// concurrent request won the race after our snapshot was taken.
	jobs := &mockJobStore{
		snap:      openSnap(jobID),
		insertErr: &pgconn.PgError{Code: "23505"},
	}
	led := &mockLedger{balance: 10}
	svc := NewService(jobs, fixedPricer{pricing.Quote{Credits: 3}}, led, discard)

	_, _, err := svc.Create(context.Background(), pro, jobID, "", "")
	if !errors.Is(err, ErrAlreadyContacted) {
		t.Fatalf("expected ErrAlreadyContacted, got %v", err)
	}

	if len(led.spends) != 1 {
		t.Fatalf("spends: got %d, want 1", len(led.spends))
	}
	if len(led.records) != 1 {
		t.Fatalf("compensating records: got %d, want 1", len(led.records))
	}
	comp := led.records[0]
	if comp.UserID != pro || comp.Delta != 3 || comp.Kind != models.TxKindRefund {
		t.Errorf("compensation: got user=%s delta=%d kind=%q", comp.UserID, comp.Delta, comp.Kind)
	}
	if comp.Metadata["reason"] != "duplicate_contact" {
		t.Errorf("compensation reason: got %v", comp.Metadata["reason"])
	}
	if want := "contact-dup:" + led.lastTxID.String(); comp.IdempotencyKey != want {
		t.Errorf("compensation key: got %q, want %q", comp.IdempotencyKey, want)
	}
	if led.balance != 10 {
		t.Errorf("balance after compensation: got %d, want 10", led.balance)
	}
}

// ---------------------------------------------------------------------------
// 6. Price never touches the balance
// ---------------------------------------------------------------------------

func TestPriceQuoteOnly(t *testing.T) {
	jobID := uuid.New()
	led := &mockLedger{}
	svc := NewService(&mockJobStore{snap: openSnap(jobID)}, fixedPricer{pricing.Quote{Credits: 3, Reason: "new_job_0_12h"}}, led, discard)

	quote, err := svc.Price(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if quote.Credits != 3 {
		t.Errorf("quote credits: got %d, want 3", quote.Credits)
	}
	if len(led.spends) != 0 || len(led.records) != 0 {
		t.Error("Price must not write to the ledger")
	}

	svc = NewService(&mockJobStore{snapErr: pgx.ErrNoRows}, fixedPricer{}, led, discard)
	if _, err := svc.Price(context.Background(), uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
