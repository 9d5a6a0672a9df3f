package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/promo"
)

const (
	listPromosSQL = `SELECT code, kind, value, min_subtotal, description, valid_from, valid_until, active
		FROM promo_codes ORDER BY code`

	listPromoCodesSQL = `SELECT code FROM promo_codes`

	existingPromoCodesSQL = `SELECT code FROM promo_codes WHERE code = ANY($1)`

	upsertPromoSQL = `INSERT INTO promo_codes (code, kind, value, min_subtotal, description, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, value = EXCLUDED.value, min_subtotal = EXCLUDED.min_subtotal,
			description = EXCLUDED.description, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, active = EXCLUDED.active`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// List returns every promo code, including inactive ones, so the pricing
// engine can report why a code did not apply.
func (r *PromoRepository) List(ctx context.Context) ([]pricing.PromoRule, error) {
	rows, err := r.pool.Query(ctx, listPromosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	return pgx.CollectRows(rows, scanPromoRule)
}

// Codes returns every stored promo code.
func (r *PromoRepository) Codes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listPromoCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo code names: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Existing returns the subset of codes already stored.
func (r *PromoRepository) Existing(ctx context.Context, codes []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, existingPromoCodesSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("checking %d promo codes: %w", len(codes), err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upsert inserts or replaces rules in a single batch transaction. Codes are
// stored normalized.
func (r *PromoRepository) Upsert(ctx context.Context, rules []pricing.PromoRule) error {
	if len(rules) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rule := range rules {
			batch.Queue(upsertPromoSQL,
				pricing.NormalizeCode(rule.Code), string(rule.Kind), rule.Value, rule.MinSubtotal,
				rule.Description, rule.ValidFrom, rule.ValidUntil, rule.Active,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %d promo codes: %w", len(rules), err)
		}
		return nil
	})
}

func scanPromoRule(row pgx.CollectableRow) (pricing.PromoRule, error) {
	var (
		rule pricing.PromoRule
		kind string
	)
	err := row.Scan(
		&rule.Code, &kind, &rule.Value, &rule.MinSubtotal, &rule.Description,
		&rule.ValidFrom, &rule.ValidUntil, &rule.Active,
	)
	rule.Kind = pricing.PromoKind(kind)
	return rule, err
}
