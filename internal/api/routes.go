package api

import (
	"purchase-api/internal/middleware"
	"purchase-api/internal/purchasing"
	"purchase-api/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationIngestor accepts store notifications delivered out-of-band,
// which both store adapters expose for their webhook path.
type NotificationIngestor interface {
	Ingest(n purchasing.Notification) error
}

// Handlers carries the dependencies of the API layer.
type Handlers struct {
	Service *purchasing.Service
	Ingest  NotificationIngestor
	Replay  *services.ReplayProtection
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")
	{
		// Client routes (require API key when configured)
		client := api.Group("")
		client.Use(middleware.APIKeyMiddleware())
		{
			client.GET("/products", h.ListProducts)
			client.GET("/products/:id", h.GetProduct)
			client.POST("/purchase", h.PurchaseProduct)
			client.POST("/confirm", h.ConfirmProduct)
			client.POST("/restore", h.RestorePurchases)
			client.GET("/transactions", h.GetTransactionHistory)
		}

		// Store notification routes (no authentication, the billing backend
		// calls these; deliveries are signature-free but replay-protected)
		store := api.Group("/store")
		{
			store.POST("/notifications", h.StoreNotification)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if !h.Service.IsInitialized() {
			status = "initializing"
		}
		c.JSON(200, gin.H{
			"status":  status,
			"service": "purchase-service",
		})
	})
}
