// Package promo keeps the promo code table in memory and refreshes it from
// the store in the background. Each reader gets a consistent snapshot.
package promo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// Repository lists every promo rule, active or not, so that the pricing
// engine can explain why a known code did not apply.
type Repository interface {
	List(ctx context.Context) ([]pricing.PromoRule, error)
}

// Cache holds the current promo table snapshot.
type Cache struct {
	repo     Repository
	table    atomic.Pointer[pricing.Table]
	loadedAt atomic.Int64
	now      func() time.Time
}

// NewCache returns an empty Cache. Call Refresh before serving traffic.
func NewCache(repo Repository) *Cache {
	return &Cache{repo: repo, now: time.Now}
}

// Table returns the current snapshot. It is never nil.
func (c *Cache) Table() pricing.Table {
	if t := c.table.Load(); t != nil {
		return *t
	}
	return pricing.Table{}
}

// Refresh reloads the table from the repository and swaps it in.
func (c *Cache) Refresh(ctx context.Context) error {
	rules, err := c.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list promo rules")
	}
	t := pricing.NewTable(rules...)
	c.table.Store(&t)
	c.loadedAt.Store(c.now().UnixNano())
	return nil
}

// Run refreshes the table every interval until ctx is cancelled. Failures
// keep the previous snapshot and are logged.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Warn("Promo refresh failed, keeping previous table", zap.Error(err))
			}
		}
	}
}

// Fresh returns a health check that fails once the table is older than
// maxAge or was never loaded.
func (c *Cache) Fresh(maxAge time.Duration) func(context.Context) error {
	return func(context.Context) error {
		loaded := c.loadedAt.Load()
		if loaded == 0 {
			return errors.New("promo table not loaded")
		}
		if age := c.now().Sub(time.Unix(0, loaded)); age > maxAge {
			return errors.Errorf("promo table is %s old, max %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}
