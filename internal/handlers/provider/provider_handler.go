// internal/handlers/provider/provider_handler.go
package provider

import (
	"context"
	"net/http"
	"strconv"

	"vowlist-service/internal/domain/provider"
	"vowlist-service/internal/middleware"
	"vowlist-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type BoostService interface {
	ToggleBoost(ctx context.Context, listingID, ownerID int64, desired bool) (*provider.BoostResult, error)
	ListMyListings(ctx context.Context, ownerID int64) ([]provider.Provider, error)
	ListDirectory(ctx context.Context, filters *provider.ListFilters) (*provider.ListResponse, error)
}

type ProviderHandler struct {
	boostService BoostService
}

func NewProviderHandler(boostService BoostService) *ProviderHandler {
	return &ProviderHandler{
		boostService: boostService,
	}
}

// ListDirectory returns the public directory, featured listings first
func (h *ProviderHandler) ListDirectory(c *gin.Context) {
	var filters provider.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.boostService.ListDirectory(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list providers", err)
		return
	}

	response.Success(c, http.StatusOK, "providers retrieved", result)
}

func (h *ProviderHandler) ListMine(c *gin.Context) {
	ownerID := middleware.MustGetIdentityID(c)

	result, err := h.boostService.ListMyListings(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, "failed to list providers", err)
		return
	}

	response.Success(c, http.StatusOK, "providers retrieved", result)
}

// ToggleBoost sets or clears the boosted flag on one of the caller's listings
func (h *ProviderHandler) ToggleBoost(c *gin.Context) {
	ownerID := middleware.MustGetIdentityID(c)

	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid provider ID", err)
		return
	}

	var req provider.ToggleBoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.boostService.ToggleBoost(c.Request.Context(), listingID, ownerID, *req.Boosted)
	if err != nil {
		response.FromError(c, "failed to update boost", err)
		return
	}

	response.Success(c, http.StatusOK, "boost updated", result)
}
