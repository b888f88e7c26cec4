package rateconfig

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imexpress/backend-billing/internal/rate"
)

// Config is the singleton global rate configuration.
type Config struct {
	Policy    rate.Policy `json:"policy"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Repository persists the singleton row. The table is keyed on a constant so
// saves are plain upserts.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the stored configuration, or found=false before the first save.
func (r *Repository) Get(ctx context.Context) (Config, bool, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		SELECT rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg,
		       discount_type, discount_value, updated_at
		FROM rate_config WHERE id = 1`).Scan(
		&cfg.Policy.RatePerKg, &cfg.Policy.USDSurcharge, &cfg.Policy.BaseRate, &cfg.Policy.ExtraRatePerKg,
		&cfg.Policy.DiscountType, &cfg.Policy.DiscountValue, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, false, nil
		}
		return Config{}, false, err
	}
	return cfg, true, nil
}

// GlobalPolicy implements rate.GlobalPolicies.
func (r *Repository) GlobalPolicy(ctx context.Context) (rate.Policy, bool, error) {
	cfg, found, err := r.Get(ctx)
	if err != nil || !found {
		return rate.Policy{}, false, err
	}
	return cfg.Policy, true, nil
}

// Save upserts the singleton policy.
func (r *Repository) Save(ctx context.Context, p rate.Policy) (Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rate_config (id, rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg,
			discount_type, discount_value, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			rate_per_kg = EXCLUDED.rate_per_kg,
			usd_surcharge = EXCLUDED.usd_surcharge,
			base_rate = EXCLUDED.base_rate,
			extra_rate_per_kg = EXCLUDED.extra_rate_per_kg,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			updated_at = now()
		RETURNING rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg,
			discount_type, discount_value, updated_at`,
		p.RatePerKg, p.USDSurcharge, p.BaseRate, p.ExtraRatePerKg, p.DiscountType, p.DiscountValue,
	).Scan(
		&cfg.Policy.RatePerKg, &cfg.Policy.USDSurcharge, &cfg.Policy.BaseRate, &cfg.Policy.ExtraRatePerKg,
		&cfg.Policy.DiscountType, &cfg.Policy.DiscountValue, &cfg.UpdatedAt,
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
