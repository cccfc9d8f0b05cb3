package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"purchase-api/internal/api"
	"purchase-api/internal/config"
	"purchase-api/internal/database"
	"purchase-api/internal/purchasing"
	"purchase-api/internal/services"
	"purchase-api/internal/store/billing"
	"purchase-api/internal/store/fake"
	"purchase-api/internal/validator"
	"purchase-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	// Process lifecycle context: cancellation aborts suspended purchases
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load product catalog
	defs, err := config.LoadCatalog(config.AppConfig.CatalogPath)
	if err != nil {
		log.Fatal("Failed to load catalog:", err)
	}

	// Select store backend
	var store purchasing.StoreAdapter
	var ingest api.NotificationIngestor
	switch config.AppConfig.StoreBackend {
	case "billing":
		b := billing.New(config.AppConfig.BillingAPIURL, config.AppConfig.BillingAPIKey)
		store, ingest = b, b
	default:
		f := fake.New()
		f.SetAutoComplete(true)
		store, ingest = f, f
		logging.Infof("Using fake store backend (auto-complete)")
	}

	opts := []purchasing.Option{
		purchasing.WithLifecycle(ctx),
		purchasing.WithPlatform(purchasing.Platform(config.AppConfig.Platform)),
	}
	if url := config.AppConfig.ReceiptValidationURL; url != "" {
		opts = append(opts, purchasing.WithValidator(validator.NewRemote(url)))
	}

	service := purchasing.NewService(store, opts...)

	// Attach event subscribers
	services.NewHistoryRecorder(config.AppConfig.Platform).Attach(service.Events())
	services.NewWebhookNotifier(config.AppConfig.WebhookCallbackURL, config.AppConfig.WebhookSecret).Attach(service.Events())
	services.NewReceiptMailer(
		config.AppConfig.BrevoAPIKey,
		config.AppConfig.BrevoFromEmail,
		config.AppConfig.BrevoFromName,
		config.AppConfig.ReceiptToEmail,
	).Attach(service.Events())

	if err := service.Initialize(ctx, defs...); err != nil {
		log.Fatal("Failed to initialize purchase service:", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r, &api.Handlers{
		Service: service,
		Ingest:  ingest,
		Replay:  services.NewReplayProtection(database.GetRedis(), time.Duration(config.AppConfig.ReplayTTLHours)*time.Hour),
	})

	port := config.AppConfig.Port
	logging.Infof("Starting server on port %s", port)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	logging.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server shutdown: %v", err)
	}
}
