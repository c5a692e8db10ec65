// internal/app/router.go
package app

import (
	"net/http"

	claimHandler "vowlist-service/internal/handlers/claim"
	providerHandler "vowlist-service/internal/handlers/provider"
	subscriptionHandler "vowlist-service/internal/handlers/subscription"
	webhookHandler "vowlist-service/internal/handlers/webhook"
	wsHandler "vowlist-service/internal/handlers/websocket"
	"vowlist-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	ProviderHandler     *providerHandler.ProviderHandler
	ClaimHandler        *claimHandler.ClaimHandler
	WebhookHandler      *webhookHandler.StripeWebhookHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Billing Webhooks ====================
	api.POST("/webhooks/stripe", h.WebhookHandler.Handle)

	// ==================== Directory ====================
	providers := api.Group("/providers")
	{
		providers.GET("", h.ProviderHandler.ListDirectory)

		providersAuth := providers.Group("")
		providersAuth.Use(h.AuthMiddleware.Auth())
		{
			providersAuth.GET("/mine", h.ProviderHandler.ListMine)
			providersAuth.PUT("/:id/boost", h.ProviderHandler.ToggleBoost)
			providersAuth.POST("/:id/claims", h.ClaimHandler.Submit)
		}
	}

	// ==================== Claims ====================
	claims := api.Group("/claims")
	claims.Use(h.AuthMiddleware.Auth())
	{
		claims.GET("/mine", h.ClaimHandler.ListMine)
	}

	// ==================== Boost Subscription ====================
	boost := api.Group("/subscriptions/boost")
	boost.Use(h.AuthMiddleware.Auth())
	{
		boost.GET("", h.SubscriptionHandler.GetBoostSubscription)
		boost.GET("/plans", h.SubscriptionHandler.ListPlans)
		boost.POST("/sync", h.SubscriptionHandler.Sync)
		boost.POST("/checkout", h.SubscriptionHandler.CreateCheckout)
		boost.POST("/cancel", h.SubscriptionHandler.Cancel)
		boost.POST("/resume", h.SubscriptionHandler.Resume)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/claims/pending", h.ClaimHandler.ListPending)
		admin.GET("/claims/:id", h.ClaimHandler.Get)
		admin.POST("/claims/:id/decision", h.ClaimHandler.Decide)
		admin.POST("/users/:id/reconcile", h.SubscriptionHandler.ReconcileUser)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
