package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"scootr/internal/app"
	"scootr/internal/config"
	"scootr/internal/handler"
	"scootr/internal/payments/stripe"
	internalRedis "scootr/internal/redis"
	"scootr/internal/repository/postgres"
	"scootr/internal/service"
	"scootr/migrations"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	telemetry, err := app.NewTelemetry(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	if cfg.Database.AutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	server, err := wireServer(db, redisClient, nrApp, telemetry, cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
	return nil
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	telemetry *app.Telemetry,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, error) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	eventStore := internalRedis.NewEventStore(redisClient)
	responseStore := internalRedis.NewResponseStore(redisClient)

	database := postgres.NewDB(db, cfg.Database.TxMaxRetries, logger)

	// Initialize services.
	ledger, err := service.NewLedgerService(database, telemetry.Meter("scootr/ledger"), logger, time.Now)
	if err != nil {
		return nil, err
	}
	rideService := service.NewRideService(database, ledger, locationStore, lockStore, service.RideConfig{
		FixedCost:         cfg.Ride.FixedCost,
		PerMinuteRate:     cfg.Ride.PerMinuteRate,
		MinBalanceToStart: cfg.Ride.MinBalanceToStart,
		StartLockTTL:      cfg.Ride.StartLockTTL,
	}, logger, time.Now)
	vehicleService := service.NewVehicleService(database, locationStore, logger)

	var customers service.CustomerDirectory
	if cfg.Stripe.SecretKey != "" {
		customers = stripe.NewDirectory(cfg.Stripe.SecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_API_KEY not set; events for unlinked customers will fail")
	}
	reconciler := service.NewReconcilerService(database, ledger, eventStore, customers, service.ReconcilerConfig{
		ConditionalCreditRetries: cfg.Ledger.ConditionalCreditRetries,
	}, logger)

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(rideService)
	walletHandler := handler.NewWalletHandler(ledger)
	vehicleHandler := handler.NewVehicleHandler(vehicleService)
	webhookHandler := handler.NewWebhookHandler(stripe.NewParser(cfg.Stripe.WebhookSecret, cfg.Stripe.AmountScale), reconciler)

	routerDeps := app.RouterDeps{
		RideHandler:    rideHandler,
		WalletHandler:  walletHandler,
		VehicleHandler: vehicleHandler,
		WebhookHandler: webhookHandler,
		Responses:      responseStore,
		NewRelicApp:    nrApp,
		Logger:         logger,
	}
	if telemetry.Enabled {
		routerDeps.TracingService = cfg.OTel.ServiceName
	}

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.NewRouter(routerDeps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
