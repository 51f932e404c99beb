package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"scootr/internal/handler"
	"scootr/internal/middleware"
	"scootr/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	WalletHandler  *handler.WalletHandler
	VehicleHandler *handler.VehicleHandler
	WebhookHandler *handler.WebhookHandler
	Responses      redis.ResponseStoreInterface
	NewRelicApp    *newrelic.Application
	Logger         *slog.Logger

	// TracingService enables OpenTelemetry request spans under this name.
	TracingService string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(deps.Logger))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	if deps.TracingService != "" {
		router.Use(otelgin.Middleware(deps.TracingService))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	// Provider webhooks authenticate by signature and dedup by event id.
	v1.POST("/webhooks/stripe", deps.WebhookHandler.Stripe)

	// Rider routes.
	user := v1.Group("", middleware.RequireUser(), middleware.Idempotency(deps.Responses))
	{
		user.POST("/rides", deps.RideHandler.StartRide)
		user.GET("/rides/:id", deps.RideHandler.GetRide)
		user.POST("/rides/:id/end", deps.RideHandler.EndRide)
		user.GET("/rides/:id/waypoints", deps.RideHandler.ListWaypoints)

		user.GET("/users/:id/rides", deps.RideHandler.ListUserRides)
		user.GET("/users/:id/rides/active", deps.RideHandler.ActiveRide)

		user.POST("/wallets", deps.WalletHandler.CreateWallet)
		user.GET("/wallets/:id", deps.WalletHandler.GetWallet)
		user.GET("/wallets/:id/transactions", deps.WalletHandler.ListTransactions)

		user.POST("/vehicles", deps.VehicleHandler.Register)
		user.GET("/vehicles", deps.VehicleHandler.Nearby)
		user.GET("/vehicles/:id", deps.VehicleHandler.GetVehicle)
	}

	// Vehicle routes.
	vehicle := v1.Group("", middleware.RequireVehicle(), middleware.Idempotency(deps.Responses))
	{
		vehicle.POST("/rides/:id/waypoints", deps.RideHandler.AddWaypoints)
		vehicle.PATCH("/vehicles/:id", deps.VehicleHandler.UpdateTelemetry)
	}

	return router
}
