package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wakala/payouts/internal/domain"
)

// RateRepo stores the single rate_config row.
type RateRepo struct {
	db *sql.DB
}

func NewRateRepo(db *sql.DB) *RateRepo {
	return &RateRepo{db: db}
}

// GetRates returns the current configuration. An unconfigured store yields
// the zero value with both rates unset.
func (r *RateRepo) GetRates(ctx context.Context) (domain.RateConfig, error) {
	var cfg domain.RateConfig
	var updated string
	err := r.db.QueryRowContext(ctx,
		"SELECT usd_to_ves, usd_to_cop, updated_at FROM rate_config WHERE id = 1",
	).Scan(&cfg.USDToVES, &cfg.USDToCOP, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RateConfig{}, nil
	}
	if err != nil {
		return domain.RateConfig{}, fmt.Errorf("read rates: %w", err)
	}
	cfg.UpdatedAt = parseTime(updated)
	return cfg, nil
}

// SaveRates overwrites the configuration in place.
func (r *RateRepo) SaveRates(ctx context.Context, cfg domain.RateConfig) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_config (id, usd_to_ves, usd_to_cop, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			usd_to_ves = excluded.usd_to_ves,
			usd_to_cop = excluded.usd_to_cop,
			updated_at = excluded.updated_at`,
		cfg.USDToVES, cfg.USDToCOP, formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save rates: %w", err)
	}
	return nil
}
