package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zenithcart/api/internal/di"
	"github.com/zenithcart/api/internal/handlers"
	"github.com/zenithcart/api/internal/platform/config"
	"github.com/zenithcart/api/internal/platform/idempotency"
	"github.com/zenithcart/api/internal/platform/observability"
	"github.com/zenithcart/api/internal/platform/secrets"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	if err := run(ctx, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger),
		secrets.WithDefaultProject(envValues["API_FIRESTORE_PROJECT_ID"]),
	)
	if err != nil {
		return fmt.Errorf("build secret fetcher: %w", err)
	}
	defer func() {
		_ = fetcher.Close()
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container shutdown failed", zap.Error(err))
		}
	}()

	metrics := container.Metrics

	checkoutMiddlewares, stopCleanup, err := checkoutGuards(ctx, container, logger)
	if err != nil {
		return err
	}
	defer stopCleanup()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			metrics.Middleware(),
			handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.Repositories.Health())),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(container.Authenticator, container.Services.Users).Routes),
		handlers.WithProductRoutes(handlers.NewCatalogHandlers(container.Authenticator, container.Services.Catalog).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(container.Authenticator, container.Services.Carts).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(container.Authenticator, container.Services.Checkout).Routes),
		handlers.WithCheckoutMiddlewares(checkoutMiddlewares...),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Authenticator, container.Services.Orders).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(container.Authenticator, container.Services.Catalog, container.Services.Orders, container.Services.Media).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(container.Services.Orders, cfg.Razorpay.WebhookSecret).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-stopCtx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}

// checkoutGuards assembles the checkout-specific middleware chain: a tighter
// per-minute rate limit plus idempotency replay protection backed by Firestore.
func checkoutGuards(ctx context.Context, container *di.Container, logger *zap.Logger) ([]func(http.Handler) http.Handler, func(), error) {
	cfg := container.Config

	client, err := container.Firestore.Client(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore client for idempotency store: %w", err)
	}
	store := idempotency.NewFirestoreStore(client)

	cleanupCtx, cancel := context.WithCancel(ctx)
	go func() {
		interval := cfg.Idempotency.CleanupInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case now := <-ticker.C:
				removed, err := store.CleanupExpired(cleanupCtx, now.UTC(), cfg.Idempotency.CleanupBatchSize)
				if err != nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Debug("idempotency records expired", zap.Int("removed", removed))
				}
			}
		}
	}()

	middlewares := []func(http.Handler) http.Handler{
		handlers.RateLimitMiddleware(cfg.RateLimits.AuthenticatedPerMinute),
		idempotency.Middleware(store,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(observability.NewPrintfAdapter(logger)),
			idempotency.WithMethods(http.MethodPost),
		),
	}
	return middlewares, cancel, nil
}
