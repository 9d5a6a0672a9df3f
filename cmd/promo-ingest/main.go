package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/storage/postgres"
)

const (
	bloomFPR         = 0.001
	minBloomCapacity = 1024
)

var defaultRule = pricing.PromoRule{
	Kind:        pricing.PromoPercentage,
	Value:       decimal.NewFromInt(10),
	Description: "Campaign code: 10% off",
	Active:      true,
}

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
		workers     int
		overwrite   bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz campaign files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "codes per upsert transaction")
	flag.IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "files parsed in parallel")
	flag.BoolVar(&overwrite, "overwrite", false, "replace rules of codes that already exist")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize <= 0 || workers <= 0 {
		slog.Error("batch size and workers must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, batchSize, workers, overwrite); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize, workers int, overwrite bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list campaign files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}
	slices.Sort(files)

	slog.Info("parsing campaign files", slog.Int("files", len(files)), slog.Int("workers", workers))

	rules, skipped, err := parseFiles(ctx, files, workers)
	if err != nil {
		return errors.Wrap(err, "parse campaign files")
	}

	slog.Info("parsed campaign files", slog.Int("codes", len(rules)), slog.Int("skipped", skipped))

	if len(rules) == 0 {
		slog.Info("no codes to write")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewPromoRepository(pool)

	if !overwrite {
		rules, err = dropExisting(ctx, repo, rules)
		if err != nil {
			return errors.Wrap(err, "filter existing codes")
		}
	}

	return writePromos(ctx, repo, rules, batchSize)
}

// parseFiles parses files concurrently and merges them in file order.
func parseFiles(ctx context.Context, files []string, workers int) ([]pricing.PromoRule, int, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			res, err := parseFile(ctx, f)
			if err != nil {
				return err
			}
			slog.Info("parsed file",
				slog.String("file", f),
				slog.Int("codes", len(res.rules)),
				slog.Int("skipped", res.skipped),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	rules, skipped := mergeResults(results)
	return rules, skipped, nil
}

// existenceChecker is the part of the promo store dropExisting needs.
type existenceChecker interface {
	Codes(ctx context.Context) ([]string, error)
	Existing(ctx context.Context, codes []string) ([]string, error)
}

// dropExisting removes rules whose code is already stored. A bloom filter of
// stored codes clears most new codes without a round trip; only probable
// matches are confirmed against the database.
func dropExisting(ctx context.Context, repo existenceChecker, rules []pricing.PromoRule) ([]pricing.PromoRule, error) {
	stored, err := repo.Codes(ctx)
	if err != nil {
		return nil, err
	}

	filter := bloom.NewWithEstimates(uint(max(len(stored), minBloomCapacity)), bloomFPR)
	for _, code := range stored {
		filter.AddString(code)
	}

	var maybe []string
	for _, r := range rules {
		if filter.TestString(r.Code) {
			maybe = append(maybe, r.Code)
		}
	}
	if len(maybe) == 0 {
		return rules, nil
	}

	existing, err := repo.Existing(ctx, maybe)
	if err != nil {
		return nil, err
	}

	slog.Info("skipping stored codes",
		slog.Int("probable", len(maybe)),
		slog.Int("confirmed", len(existing)),
	)

	known := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		known[code] = struct{}{}
	}
	return slices.DeleteFunc(rules, func(r pricing.PromoRule) bool {
		_, ok := known[r.Code]
		return ok
	}), nil
}

// promoWriter is the part of the promo store writePromos needs.
type promoWriter interface {
	Upsert(ctx context.Context, rules []pricing.PromoRule) error
}

// writePromos upserts rules in batches of batchSize.
func writePromos(ctx context.Context, repo promoWriter, rules []pricing.PromoRule, batchSize int) error {
	slog.Info("writing promo codes", slog.Int("count", len(rules)))

	written := 0
	for batch := range slices.Chunk(rules, batchSize) {
		if err := repo.Upsert(ctx, batch); err != nil {
			return errors.Wrapf(err, "upsert batch at %d", written)
		}
		written += len(batch)
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(rules)))
	}

	return nil
}
