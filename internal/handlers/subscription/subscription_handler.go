// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"context"
	"net/http"
	"strconv"

	"vowlist-service/internal/domain/subscription"
	"vowlist-service/internal/middleware"
	"vowlist-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type BoostSubscriptionService interface {
	Plans() []subscription.BoostPlan
	GetBoostSubscription(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
	Reconcile(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
	SyncNow(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
	CreateBoostCheckout(ctx context.Context, userID int64, priceID string) (*subscription.CheckoutResponse, error)
	CancelAtPeriodEnd(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
	Resume(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
}

type SubscriptionHandler struct {
	subscriptionService BoostSubscriptionService
}

func NewSubscriptionHandler(subscriptionService BoostSubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ListPlans returns the purchasable boost tiers
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	response.Success(c, http.StatusOK, "plans retrieved", h.subscriptionService.Plans())
}

// GetBoostSubscription returns the stored row and its entitlement summary
func (h *SubscriptionHandler) GetBoostSubscription(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.GetBoostSubscription(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to get subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", result)
}

// Sync reconciles the caller's subscription against billing
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.SyncNow(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to sync subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription synced", result)
}

// CreateCheckout starts a hosted checkout for a boost plan
func (h *SubscriptionHandler) CreateCheckout(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	var req subscription.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.subscriptionService.CreateBoostCheckout(c.Request.Context(), userID, req.PriceID)
	if err != nil {
		response.FromError(c, "failed to create checkout", err)
		return
	}

	response.Success(c, http.StatusCreated, "checkout created", result)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.CancelAtPeriodEnd(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription will cancel at period end", result)
}

func (h *SubscriptionHandler) Resume(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.Resume(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to resume subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription resumed", result)
}

// ========== Admin Endpoints ==========

// ReconcileUser reconciles any user's subscription, bypassing the sync rate limit
func (h *SubscriptionHandler) ReconcileUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid user ID", err)
		return
	}

	result, err := h.subscriptionService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to reconcile subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription reconciled", result)
}
