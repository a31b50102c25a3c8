// B2B pricing service - reconciles variant prices and plan-limited B2B prices
// against one Shopify shop. Designed for Cloud Run deployment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"b2b-pricing/internal/config"
	"b2b-pricing/internal/handler"
	"b2b-pricing/internal/jobstore"
	"b2b-pricing/internal/middleware"
	"b2b-pricing/internal/reconcile"
	"b2b-pricing/internal/shopctx"
	"b2b-pricing/internal/shopify"
)

// pruneInterval is how often expired pending reports are removed.
const pruneInterval = 6 * time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	field := cfg.Shop.SpecialPriceField()
	logger.Info("configuration loaded",
		slog.String("shop_id", cfg.ShopID),
		slog.String("environment", cfg.Environment),
		slog.String("shop", cfg.Shop.Domain),
		slog.String("api_version", cfg.Shop.APIVersion),
		slog.String("special_price_field", field.Namespace+"."+field.Key),
		slog.Int("bulk_threshold", cfg.BulkThreshold),
	)

	client := shopify.NewClient(shopify.Config{
		Shop:              cfg.Shop.Domain,
		AccessToken:       cfg.Shop.AccessToken,
		APIVersion:        cfg.Shop.APIVersion,
		Field:             field,
		RequestsPerSecond: cfg.RPS,
		Fingerprint:       cfg.Fingerprint,
	})

	// Pending bulk reports survive restarts between submission and poll
	store, err := jobstore.Open(cfg.JobStorePath)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer store.Close()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go pruneReports(pruneCtx, store, logger)

	reconciler := reconcile.New(client, store, reconcile.Options{
		Field:         field,
		BulkThreshold: cfg.BulkThreshold,
	}, logger)

	h := handler.New(reconciler, handler.Options{
		Shop:          cfg.Shop.Domain,
		WebhookSecret: cfg.Shop.APISecret,
	}, logger)
	if cfg.Shop.APISecret == "" {
		logger.Warn("api_secret not configured; subscription webhooks will be rejected")
	}

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → shop context → handler
	// Recovery must be outermost to catch panics from logging middleware
	// Shop context rejects callers acting for another shop (except exempt paths)
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		shopctx.Middleware(cfg.Shop.Domain, logger),
	)(mux)

	// Create HTTP server with timeouts. Large sheets take a full snapshot
	// read before the first write, so the write timeout is generous.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// pruneReports removes pending reports older than jobstore.Retention, once at
// startup and then every pruneInterval until ctx is done.
func pruneReports(ctx context.Context, store *jobstore.Store, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := store.Prune(ctx, jobstore.Retention)
		if err != nil {
			logger.Warn("pruning pending reports failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("pruned pending reports", slog.Int64("removed", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
