//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/auth"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = testcontainers.TerminateContainer(container) }()

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	// Migrations are idempotent.
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate twice: %v\n", err)
		return 1
	}

	return m.Run()
}

func seedVariant(t *testing.T, stock int) string {
	t.Helper()
	ctx := context.Background()

	productID := "p-" + uuid.NewString()[:8]
	variantID := "v-" + uuid.NewString()[:8]
	_, err := pool.Exec(ctx, `INSERT INTO products (id, name, base_price) VALUES ($1, 'Void Hoodie', 4500)`, productID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO variants (id, product_id, sku, size, color, stock_quantity, low_stock_threshold, price_adjustment)
		VALUES ($1, $2, $3, 'M', 'Black', $4, 2, 500)`, variantID, productID, "SKU-"+variantID, stock)
	require.NoError(t, err)
	return variantID
}

func mutation(variantID string, action inventory.Action, delta int) inventory.Mutation {
	return inventory.Mutation{
		EventID:   uuid.NewString(),
		VariantID: variantID,
		Action:    action,
		Delta:     delta,
		At:        time.Now().UTC(),
	}
}

func TestCatalogRepository_GetVariants(t *testing.T) {
	ctx := context.Background()
	id := seedVariant(t, 3)

	repo := postgres.NewCatalogRepository(pool)
	got, err := repo.GetVariants(ctx, []string{id, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5000), got[0].UnitPrice())
	assert.Equal(t, 3, got[0].StockQuantity)
	assert.True(t, got[0].Active)
}

func TestInventoryStore_Apply(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewInventoryStore(pool)
	id := seedVariant(t, 5)

	applied, err := store.Apply(ctx, mutation(id, inventory.ActionSale, -3))
	require.NoError(t, err)
	assert.Equal(t, 5, applied.Event.QuantityBefore)
	assert.Equal(t, 2, applied.Event.QuantityAfter)
	assert.Equal(t, 2, applied.LowStockThreshold)

	_, err = store.Apply(ctx, mutation(id, inventory.ActionSale, -3))
	var negErr *inventory.NegativeStockError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, 2, negErr.Available)
	assert.Equal(t, 3, negErr.Requested)

	adj := mutation(id, inventory.ActionAdjustment, 0)
	adj.SetTo = 10
	applied, err = store.Apply(ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, 8, applied.Event.QuantityChange)

	_, err = store.Apply(ctx, mutation("v-missing", inventory.ActionRestock, 1))
	require.ErrorIs(t, err, inventory.ErrVariantNotFound)

	events, err := store.Events(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, inventory.ActionAdjustment, events[0].Action)
	assert.Equal(t, inventory.ActionSale, events[1].Action)
	for _, ev := range events {
		assert.Equal(t, ev.QuantityBefore+ev.QuantityChange, ev.QuantityAfter)
	}
}

func TestInventoryStore_StockOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewInventoryStore(pool)
	id := seedVariant(t, math.MaxInt32-10)

	_, err := store.Apply(ctx, mutation(id, inventory.ActionRestock, 11))
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	events, err := store.Events(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestInventoryStore_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewInventoryStore(pool)
	id := seedVariant(t, 1)

	const buyers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Apply(ctx, mutation(id, inventory.ActionSale, -1))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, inventory.ErrNegativeStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	var stock int
	require.NoError(t, pool.QueryRow(ctx, `SELECT stock_quantity FROM variants WHERE id = $1`, id).Scan(&stock))
	assert.Zero(t, stock)
}

func newOrder(variantID, key string) *order.Order {
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &order.Order{
		ID:             id.String(),
		Number:         order.Number(id, now),
		IdempotencyKey: key,
		Status:         order.StatusPending,
		PaymentMethod:  order.PaymentCOD,
		PaymentStatus:  order.PaymentUnpaid,
		ShippingMethod: pricing.ShippingStandard,
		Currency:       "PHP",
		Subtotal:       5000,
		ShippingCost:   150,
		Total:          5150,
		Address:        order.Address{Name: "Ana", Phone: "0917", Line1: "1 Main St", City: "Manila"},
		Items: []order.Item{{
			ID:         uuid.NewString(),
			VariantID:  variantID,
			Name:       "Void Hoodie",
			SKU:        "SKU-" + variantID,
			UnitPrice:  5000,
			Quantity:   1,
			TotalPrice: 5000,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewOrderRepository(pool)
	variantID := seedVariant(t, 1)
	key := uuid.NewString()

	o := newOrder(variantID, key)
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.CreateItems(ctx, o.ID, o.Items))

	t.Run("DuplicateKey", func(t *testing.T) {
		require.ErrorIs(t, repo.Create(ctx, newOrder(variantID, key)), order.ErrDuplicateKey)
	})

	t.Run("FindByIdempotencyKey", func(t *testing.T) {
		got, err := repo.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		require.Len(t, got.Items, 1)
		assert.Equal(t, variantID, got.Items[0].VariantID)
		assert.Equal(t, o.Address, got.Address)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		at := time.Now().UTC()
		err := repo.UpdateStatus(ctx, order.StatusUpdate{
			OrderID: o.ID, From: order.StatusPending, To: order.StatusConfirmed,
			PaymentStatus: order.PaymentPaid, PaymentReference: "txn_1", At: at,
		})
		require.NoError(t, err)

		err = repo.UpdateStatus(ctx, order.StatusUpdate{
			OrderID: o.ID, From: order.StatusPending, To: order.StatusCancelled, At: at,
		})
		require.ErrorIs(t, err, order.ErrStatusConflict)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, got.Status)
		assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
		assert.Equal(t, "txn_1", got.PaymentReference)
		require.NotNil(t, got.ConfirmedAt)
		assert.Nil(t, got.CancelledAt)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		require.ErrorIs(t, err, order.ErrNotFound)
		_, err = repo.Get(ctx, "not-a-uuid")
		require.ErrorIs(t, err, order.ErrNotFound)
		err = repo.UpdateStatus(ctx, order.StatusUpdate{OrderID: uuid.NewString(), From: order.StatusPending, To: order.StatusConfirmed})
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("ItemsSurviveVariantDeletion", func(t *testing.T) {
		_, err := pool.Exec(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
		require.NoError(t, err)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Empty(t, got.Items[0].VariantID)
		assert.Equal(t, "Void Hoodie", got.Items[0].Name)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, o.ID))
		_, err := repo.Get(ctx, o.ID)
		require.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestPromoRepository_List(t *testing.T) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO promo_codes (code, kind, value, description)
		VALUES ('ANTIGRAVITY10', 'percentage', 10, '10% off') ON CONFLICT DO NOTHING`)
	require.NoError(t, err)

	rules, err := postgres.NewPromoRepository(pool).List(ctx)
	require.NoError(t, err)
	table := pricing.NewTable(rules...)
	rule, ok := table.Lookup("antigravity10")
	require.True(t, ok)
	assert.True(t, rule.Value.Equal(decimal.NewFromInt(10)))
	assert.Nil(t, rule.ValidUntil)
}

func TestPromoRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPromoRepository(pool)

	require.NoError(t, repo.Upsert(ctx, []pricing.PromoRule{
		{Code: " spring5 ", Kind: pricing.PromoFixed, Value: decimal.NewFromInt(500), Description: "first", Active: true},
	}))
	require.NoError(t, repo.Upsert(ctx, []pricing.PromoRule{
		{Code: "SPRING5", Kind: pricing.PromoFixed, Value: decimal.NewFromInt(700), MinSubtotal: 2000, Description: "second", Active: true},
	}))
	require.NoError(t, repo.Upsert(ctx, nil))

	codes, err := repo.Codes(ctx)
	require.NoError(t, err)
	assert.Contains(t, codes, "SPRING5")

	existing, err := repo.Existing(ctx, []string{"SPRING5", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPRING5"}, existing)

	rules, err := repo.List(ctx)
	require.NoError(t, err)
	rule, ok := pricing.NewTable(rules...).Lookup("spring5")
	require.True(t, ok)
	assert.True(t, rule.Value.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, int64(2000), rule.MinSubtotal)
	assert.Equal(t, "second", rule.Description)
}

func TestAPIKeyRepository_FindByHash(t *testing.T) {
	ctx := context.Background()
	hash := auth.HashKey([]byte("pepper"), "secret")
	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, scopes) VALUES ('k1', $1, 'ops', $2)`,
		hash, []string{auth.ScopeOrdersRead})
	require.NoError(t, err)

	repo := postgres.NewAPIKeyRepository(pool)
	k, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, k.HasScope(auth.ScopeOrdersRead))
	assert.False(t, k.HasScope(auth.ScopeStockWrite))

	_, err = repo.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}
