package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixmarket/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Create(ctx context.Context, clientID uuid.UUID, title, description string) (*models.Job, error) {
	var j models.Job
	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, title, description, status, created_at)
		VALUES ($1, $2, $3, $4, 'open', now())
		RETURNING id, client_id, title, description, status, created_at, updated_at
	`, uuid.New(), clientID, title, description)
	if err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var j models.Job
	row := r.pool.QueryRow(ctx, `
		SELECT id, client_id, title, description, status, created_at, updated_at
		FROM jobs WHERE id = $1
	`, jobID)
	if err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetByIDForUpdate locks the job row. Call within a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error) {
	var j models.Job
	row := tx.QueryRow(ctx, `
		SELECT id, client_id, title, description, status, created_at, updated_at
		FROM jobs WHERE id = $1 FOR UPDATE
	`, jobID)
	if err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetSnapshot loads the job with its embedded contact list.
func (r *Repository) GetSnapshot(ctx context.Context, jobID uuid.UUID) (*models.JobSnapshot, error) {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	contacts, err := r.ListContacts(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &models.JobSnapshot{Job: *job, Contacts: contacts}, nil
}

func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, title, description, status, created_at, updated_at
		FROM jobs WHERE client_id = $1 ORDER BY updated_at DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, title, description, status, created_at, updated_at
		FROM jobs WHERE status = 'open' ORDER BY created_at DESC NULLS LAST LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]*models.Job, error) {
	var list []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &j)
	}
	return list, rows.Err()
}

const listContactsSQL = `
	SELECT id, job_id, professional_id, credits_used, message, created_at
	FROM job_contacts WHERE job_id = $1 ORDER BY created_at ASC
`

func (r *Repository) ListContacts(ctx context.Context, jobID uuid.UUID) ([]models.Contact, error) {
	rows, err := r.pool.Query(ctx, listContactsSQL, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// ListContactsTx loads contacts inside the caller's transaction, for the
// withdrawal snapshot.
func (r *Repository) ListContactsTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) ([]models.Contact, error) {
	rows, err := tx.Query(ctx, listContactsSQL, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func scanContacts(rows pgx.Rows) ([]models.Contact, error) {
	var list []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.JobID, &c.ProfessionalID, &c.CreditsUsed, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *Repository) InsertContact(ctx context.Context, c *models.Contact) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO job_contacts (id, job_id, professional_id, credits_used, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.JobID, c.ProfessionalID, c.CreditsUsed, c.Message).Scan(&c.CreatedAt)
}

// MarkExpired flips an open job to expired. Used best-effort by pricing.
func (r *Repository) MarkExpired(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'expired', updated_at = now() WHERE id = $1 AND status = 'open'
	`, jobID)
	return err
}

func (r *Repository) MarkWithdrawnTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'withdrawn', updated_at = now() WHERE id = $1
	`, jobID)
	return err
}
