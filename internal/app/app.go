package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/voucher"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/remote/voucherapi"
	"github.com/xenking/storefront/internal/storage/local"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const voucherCheck = "voucher-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Storage.
	store := postgres.NewKVStore(pool)
	orderRepo := local.NewOrderRepository(store)
	voucherCache := local.NewVoucherCache(store)
	favoriteRepo := local.NewFavoriteRepository(store)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Remote voucher catalog.
	voucherClient := voucherapi.NewClient(voucherapi.Config{
		BaseURL:        cfg.VoucherAPI.BaseURL,
		Timeout:        cfg.VoucherAPI.Timeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	catalog := voucher.NewCatalog(voucherClient, voucherCache, voucher.WithLogger(lg.Named("voucher")))

	// Domain services.
	orderService, err := order.NewService(orderRepo,
		order.WithCancelPolicy(cfg.Orders.CancelPolicy()),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	favoriteService := favorite.NewService(favoriteRepo)

	// Health checks. The voucher catalog is optional: losing it degrades
	// readiness and switches the catalog to the offline voucher.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck(voucherCheck, cfg.VoucherAPI.Timeout, health.PingCheck(voucherClient),
		health.Critical(false),
		health.WithThresholds(1, 1),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Watch(voucherCheck, func(ctx context.Context, healthy bool) {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.VoucherAPI.Timeout)
		defer cancel()
		if err := catalog.HandleConnectivity(fetchCtx, healthy); err != nil {
			lg.Warn("Voucher refetch failed", zap.Error(err))
		}
	})
	healthSvc.Start(ctx, cfg.VoucherAPI.ProbeInterval)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(cart.NewSessions(), catalog, orderService, favoriteService)
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, securityHandler)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.VoucherAPI.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Routes: map[string]int{"POST /api/orders": cfg.RateLimit.Checkout},
				Find:   routeFinder,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
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
