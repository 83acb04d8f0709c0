package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixmarket/backend/internal/pricing"
)

// SettingsRepo stores the singleton pricing configuration document. The
// thresholds are edited from the admin surface and read on every pricing call.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Thresholds returns the stored table, or an empty table when none has been
// configured yet. The calculator treats both the same way: default pricing.
func (r *SettingsRepo) Thresholds(ctx context.Context) (pricing.ThresholdTable, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT thresholds FROM pricing_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var table pricing.ThresholdTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// SaveThresholds upserts the singleton row. Callers validate via Normalize
// before saving.
func (r *SettingsRepo) SaveThresholds(ctx context.Context, table pricing.ThresholdTable) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pricing_settings (id, thresholds) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET thresholds = EXCLUDED.thresholds, updated_at = now()
	`, raw)
	return err
}
