package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixmarket/backend/internal/models"
)

var (
	errUserNotFound        = errors.New("user not found")
	errInsufficientCredits = errors.New("insufficient credits")
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const deductSQL = `
	UPDATE users SET credits = credits - $1, updated_at = now()
	WHERE id = $2 AND credits >= $1
	RETURNING credits
`

const grantSQL = `
	UPDATE users SET credits = credits + $1, updated_at = now()
	WHERE id = $2
	RETURNING credits
`

const insertTransactionSQL = `
	INSERT INTO transactions (id, user_id, kind, credits, price, currency, metadata, status, balance_after, idempotency_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at
`

// Deduct atomically checks credits >= amount and decrements in a single
// conditional UPDATE. The precondition and the effect are one statement: the
// balance can never go negative and no update is lost under concurrent
// callers. On failure a follow-up read distinguishes a missing user from an
// insufficient balance; that read is diagnostic only and never authorizes
// the write.
func (r *Repository) Deduct(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	return deduct(ctx, r.pool, userID, amount)
}

func deduct(ctx context.Context, q querier, userID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := q.QueryRow(ctx, deductSQL, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, classifyDeductFailure(ctx, q, userID)
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func classifyDeductFailure(ctx context.Context, q querier, userID uuid.UUID) error {
	var credits int
	err := q.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return errUserNotFound
	}
	if err != nil {
		return err
	}
	return errInsufficientCredits
}

// Grant unconditionally increments the balance. Fails only if the user does
// not exist.
func (r *Repository) Grant(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	return grant(ctx, r.pool, userID, amount)
}

func grant(ctx context.Context, q querier, userID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := q.QueryRow(ctx, grantSQL, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func insertTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	return q.QueryRow(ctx, insertTransactionSQL,
		t.ID, t.UserID, t.Kind, t.Credits, t.Price, t.Currency, meta, t.Status, t.BalanceAfter, t.IdempotencyKey,
	).Scan(&t.CreatedAt)
}

// Append inserts an audit-only transaction row without touching the balance.
// Used for negative deltas, where the caller has already called Deduct.
func (r *Repository) Append(ctx context.Context, t *models.Transaction) error {
	return insertTransaction(ctx, r.pool, t)
}

// GrantAndRecord performs the grant and its audit row in one database
// transaction. If t.IdempotencyKey is set and was already processed, the
// grant is rolled back and t is overwritten with the original row.
func (r *Repository) GrantAndRecord(ctx context.Context, t *models.Transaction) (replayed bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	newBalance, err := grant(ctx, tx, t.UserID, t.Credits)
	if err != nil {
		return false, err
	}
	t.BalanceAfter = &newBalance
	if err := insertTransaction(ctx, tx, t); err != nil {
		if isUniqueViolation(err) && t.IdempotencyKey != nil {
			_ = tx.Rollback(ctx)
			return true, r.loadByKey(ctx, *t.IdempotencyKey, t)
		}
		return false, err
	}
	return false, tx.Commit(ctx)
}

// SpendAndRecord fuses the conditional deduct and its audit row into one
// database transaction so a crash between the two cannot produce a balance
// change without a matching audit row. t.Credits must be negative.
func (r *Repository) SpendAndRecord(ctx context.Context, t *models.Transaction) (replayed bool, err error) {
	if t.IdempotencyKey != nil {
		var prior models.Transaction
		err := r.loadByKey(ctx, *t.IdempotencyKey, &prior)
		if err == nil {
			*t = prior
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	newBalance, err := deduct(ctx, tx, t.UserID, -t.Credits)
	if err != nil {
		return false, err
	}
	t.BalanceAfter = &newBalance
	if err := insertTransaction(ctx, tx, t); err != nil {
		if isUniqueViolation(err) && t.IdempotencyKey != nil {
			_ = tx.Rollback(ctx)
			return true, r.loadByKey(ctx, *t.IdempotencyKey, t)
		}
		return false, err
	}
	return false, tx.Commit(ctx)
}

func (r *Repository) loadByKey(ctx context.Context, key string, t *models.Transaction) error {
	var meta []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, credits, price, currency, metadata, status, balance_after, idempotency_key, created_at
		FROM transactions WHERE idempotency_key = $1
	`, key).Scan(&t.ID, &t.UserID, &t.Kind, &t.Credits, &t.Price, &t.Currency, &meta, &t.Status, &t.BalanceAfter, &t.IdempotencyKey, &t.CreatedAt)
	if err != nil {
		return err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
