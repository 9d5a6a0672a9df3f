// Package app wires the checkout API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/promo"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/handler"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/payment"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/storage/postgres"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/pkg/health"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	rules, err := cfg.Pricing.Rules()
	if err != nil {
		return errors.Wrap(err, "pricing rules")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	inventoryStore := postgres.NewInventoryStore(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Promo codes are served from memory and reloaded in the background.
	promos := promo.NewCache(promoRepo)
	if err := promos.Refresh(ctx); err != nil {
		return errors.Wrap(err, "load promo codes")
	}
	go promos.Run(ctx, cfg.PromoRefresh)

	// Domain services.
	ledger, err := inventory.NewLedger(inventoryStore, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}

	var gateway order.PaymentGateway
	if cfg.Payment.BaseURL != "" {
		gateway = payment.NewClient(payment.Config{
			BaseURL:        cfg.Payment.BaseURL,
			APIKey:         cfg.Payment.APIKey,
			Timeout:        cfg.Payment.Timeout,
			TracerProvider: m.TracerProvider(),
		})
	} else {
		lg.Warn("Payment provider not configured, card checkout will stay unpaid")
	}

	orderService, err := order.NewService(order.Config{
		Rules:          rules,
		Currency:       cfg.Pricing.Currency,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, catalogRepo, orderRepo, ledger, promos, gateway)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("promos", time.Second, promos.Fresh(5*cfg.PromoRefresh))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second), health.WithThresholds(5, 1))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{
		Currency:      cfg.Pricing.Currency,
		WebhookSecret: []byte(cfg.Payment.WebhookSecret),
		APIKeyPepper:  []byte(cfg.APIKeyPepper),
	}, orderService, ledger, apikeyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10*time.Second + cfg.Payment.Timeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("store-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
