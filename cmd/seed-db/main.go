package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/auth"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/storage/postgres"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, base_price, image_url) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, base_price = EXCLUDED.base_price,
			image_url = EXCLUDED.image_url`

	// Stock starts at zero and is raised through the ledger so every unit has
	// a restock event behind it.
	insertVariantSQL = `INSERT INTO variants (id, product_id, sku, size, color, price_adjustment)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, scopes = EXCLUDED.scopes, active = TRUE`
)

type variantJSON struct {
	ID              string `json:"id"`
	SKU             string `json:"sku"`
	Size            string `json:"size"`
	Color           string `json:"color"`
	Stock           int    `json:"stock"`
	PriceAdjustment int64  `json:"priceAdjustment"`
}

type productJSON struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	BasePrice int64         `json:"basePrice"`
	ImageURL  string        `json:"imageUrl"`
	Variants  []variantJSON `json:"variants"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}
	if apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or STORE_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedPromos(ctx, postgres.NewPromoRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promos")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	ledger, err := inventory.NewLedger(postgres.NewInventoryStore(pool), noop.NewMeterProvider())
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.BasePrice, p.ImageURL); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			tag, err := pool.Exec(ctx, insertVariantSQL, v.ID, p.ID, v.SKU, v.Size, v.Color, v.PriceAdjustment)
			if err != nil {
				return errors.Wrapf(err, "insert variant %s", v.ID)
			}
			// Existing variants keep their live stock.
			if tag.RowsAffected() == 0 || v.Stock <= 0 {
				continue
			}
			if _, err := ledger.ApplyChange(ctx, inventory.Change{
				VariantID: v.ID,
				Action:    inventory.ActionRestock,
				Quantity:  v.Stock,
				Notes:     "initial stock",
			}); err != nil {
				return errors.Wrapf(err, "stock variant %s", v.ID)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}

	return nil
}

func seedPromos(ctx context.Context, repo *postgres.PromoRepository) error {
	slog.Info("seeding promo codes")

	promos := []pricing.PromoRule{
		{
			Code:        "ANTIGRAVITY10",
			Kind:        pricing.PromoPercentage,
			Value:       decimal.NewFromInt(10),
			Description: "10% off your order",
			Active:      true,
		},
	}

	if err := repo.Upsert(ctx, promos); err != nil {
		return err
	}

	for _, p := range promos {
		slog.Info("upserted promo code", slog.String("code", p.Code), slog.String("description", p.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	scopes := []string{auth.ScopeOrdersRead, auth.ScopeOrdersWrite, auth.ScopeStockRead, auth.ScopeStockWrite}
	if _, err := pool.Exec(ctx, upsertAPIKeySQL, "admin", auth.HashKey([]byte(pepper), apiKey), "Admin key", scopes); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"), slog.Any("scopes", scopes))

	return nil
}
