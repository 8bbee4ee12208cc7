// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/coupon"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/handler"
	"github.com/xenking/printshop/internal/repository"
	"github.com/xenking/printshop/pkg/health"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("sandbox", cfg.SandboxMode),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddWarningCheck("catalog", cfg.Health.CatalogTimeout, CatalogIntegrityCheck(productRepo))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(zctx.Base(ctx, lg.Named("health")), cfg.Health.Interval)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	orderService, err := order.NewService(order.Config{
		Sandbox:        cfg.SandboxMode,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}, productRepo, couponValidator, orderRepo)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers: health endpoints + API routes on one mux.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(productRepo, orderService).
		Register(mux, handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpHandler(ctx, lg, m, cfg, mux),
	}

	healthSvc.SetReady(true)

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

// httpHandler wraps mux with the middleware chain. The logger and request id
// are attached before Recovery so recovered panics carry both.
func httpHandler(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config, mux *http.ServeMux) http.Handler {
	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.KeyByHeader(handler.APIKeyHeader),
		}),
		httpmiddleware.Instrument("printshop-api", routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}

// CatalogIntegrityCheck returns a probe that fails while any product in the
// catalog has structural faults. Each fault is logged at error level.
func CatalogIntegrityCheck(products catalog.Repository) health.CheckFunc {
	return func(ctx context.Context) error {
		list, err := products.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list products")
		}
		faults := catalog.CheckIntegrity(list)
		if len(faults) == 0 {
			return nil
		}

		lg := zctx.From(ctx)
		for _, f := range faults {
			lg.Error("Catalog integrity fault",
				zap.String("product_id", f.ProductID),
				zap.String("group_id", f.GroupID),
				zap.String("kind", f.Kind),
			)
		}
		return errors.Errorf("%d catalog integrity faults, first: %s", len(faults), faults[0])
	}
}
