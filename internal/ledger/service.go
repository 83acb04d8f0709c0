package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fixmarket/backend/internal/models"
)

// DefaultCurrency is applied when a caller does not name one.
const DefaultCurrency = "EUR"

// SpendParams describes a credit spend: a conditional deduct of Amount fused
// with its audit row. Amount is the positive magnitude to deduct.
type SpendParams struct {
	UserID         uuid.UUID
	Amount         int
	Kind           string
	Metadata       map[string]any
	Price          int64
	Currency       string
	IdempotencyKey string
}

type SpendResult struct {
	TransactionID uuid.UUID
	NewBalance    int
	Replayed      bool
}

// RecordParams describes an audit row append. A positive Delta also performs
// the grant, fused with the insert. A non-positive Delta is audit-only: the
// caller must already have applied the balance effect via Deduct.
type RecordParams struct {
	UserID         uuid.UUID
	Delta          int
	Kind           string
	Metadata       map[string]any
	Price          int64
	Currency       string
	IdempotencyKey string
}

type RecordResult struct {
	TransactionID uuid.UUID
	// NewBalance is only meaningful when Delta > 0.
	NewBalance int
	Replayed   bool
}

type Service interface {
	Deduct(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	Record(ctx context.Context, p RecordParams) (RecordResult, error)
	Spend(ctx context.Context, p SpendParams) (*SpendResult, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Deduct(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}
	return s.repo.Deduct(ctx, userID, amount)
}

func (s *service) Grant(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return s.repo.Grant(ctx, userID, amount)
}

func (s *service) Record(ctx context.Context, p RecordParams) (RecordResult, error) {
	t := newTransaction(p.UserID, p.Delta, p.Kind, p.Metadata, p.Price, p.Currency, p.IdempotencyKey)
	if p.Delta > 0 {
		replayed, err := s.repo.GrantAndRecord(ctx, t)
		if err != nil {
			return RecordResult{}, err
		}
		res := RecordResult{TransactionID: t.ID, Replayed: replayed}
		if t.BalanceAfter != nil {
			res.NewBalance = *t.BalanceAfter
		}
		return res, nil
	}
	if err := s.repo.Append(ctx, t); err != nil {
		if isUniqueViolation(err) && t.IdempotencyKey != nil {
			if lerr := s.repo.loadByKey(ctx, *t.IdempotencyKey, t); lerr == nil {
				return RecordResult{TransactionID: t.ID, Replayed: true}, nil
			}
		}
		return RecordResult{}, err
	}
	return RecordResult{TransactionID: t.ID}, nil
}

func (s *service) Spend(ctx context.Context, p SpendParams) (*SpendResult, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %d", p.Amount)
	}
	kind := p.Kind
	if kind == "" {
		kind = models.TxKindDeduction
	}
	t := newTransaction(p.UserID, -p.Amount, kind, p.Metadata, p.Price, p.Currency, p.IdempotencyKey)
	replayed, err := s.repo.SpendAndRecord(ctx, t)
	if err != nil {
		return nil, err
	}
	res := &SpendResult{TransactionID: t.ID, Replayed: replayed}
	if t.BalanceAfter != nil {
		res.NewBalance = *t.BalanceAfter
	}
	return res, nil
}

func newTransaction(userID uuid.UUID, delta int, kind string, metadata map[string]any, price int64, currency, key string) *models.Transaction {
	if currency == "" {
		currency = DefaultCurrency
	}
	t := &models.Transaction{
		ID:       uuid.New(),
		UserID:   userID,
		Kind:     kind,
		Credits:  delta,
		Price:    price,
		Currency: currency,
		Metadata: metadata,
		Status:   models.TxStatusCompleted,
	}
	if key != "" {
		k := key
		t.IdempotencyKey = &k
	}
	return t
}

// ErrUserNotFound is returned by Deduct and Grant when the user row does not exist.
var ErrUserNotFound = errUserNotFound

// ErrInsufficientCredits is returned by Deduct when the balance is below the requested amount.
var ErrInsufficientCredits = errInsufficientCredits
