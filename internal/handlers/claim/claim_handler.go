// internal/handlers/claim/claim_handler.go
package claim

import (
	"context"
	"net/http"
	"strconv"

	"vowlist-service/internal/domain/claim"
	"vowlist-service/internal/middleware"
	"vowlist-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClaimService interface {
	SubmitClaim(ctx context.Context, listingID, userID int64, justification string) (*claim.Claim, error)
	Decide(ctx context.Context, claimID, reviewerID int64, outcome claim.ClaimStatus, notes string) (*claim.Claim, error)
	ListPending(ctx context.Context, filters *claim.PendingFilters) (*claim.ClaimListResponse, error)
	ListMine(ctx context.Context, userID int64) ([]claim.Claim, error)
	GetClaim(ctx context.Context, id int64) (*claim.Claim, error)
}

type ClaimHandler struct {
	claimService ClaimService
}

func NewClaimHandler(claimService ClaimService) *ClaimHandler {
	return &ClaimHandler{
		claimService: claimService,
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid "+name+" ID", err)
		return 0, false
	}
	return id, true
}

// Submit files an ownership claim for a listing
func (h *ClaimHandler) Submit(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	listingID, ok := parseID(c, "provider")
	if !ok {
		return
	}

	var req claim.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.claimService.SubmitClaim(c.Request.Context(), listingID, userID, req.Justification)
	if err != nil {
		response.FromError(c, "failed to submit claim", err)
		return
	}

	response.Success(c, http.StatusCreated, "claim submitted", result)
}

func (h *ClaimHandler) ListMine(c *gin.Context) {
	userID := middleware.MustGetIdentityID(c)

	result, err := h.claimService.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to list claims", err)
		return
	}

	response.Success(c, http.StatusOK, "claims retrieved", result)
}

// ========== Admin Endpoints ==========

func (h *ClaimHandler) ListPending(c *gin.Context) {
	var filters claim.PendingFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.claimService.ListPending(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list pending claims", err)
		return
	}

	response.Success(c, http.StatusOK, "pending claims retrieved", result)
}

func (h *ClaimHandler) Get(c *gin.Context) {
	claimID, ok := parseID(c, "claim")
	if !ok {
		return
	}

	result, err := h.claimService.GetClaim(c.Request.Context(), claimID)
	if err != nil {
		response.FromError(c, "claim not found", err)
		return
	}

	response.Success(c, http.StatusOK, "claim retrieved", result)
}

// Decide approves or rejects a pending claim
func (h *ClaimHandler) Decide(c *gin.Context) {
	reviewerID := middleware.MustGetIdentityID(c)

	claimID, ok := parseID(c, "claim")
	if !ok {
		return
	}

	var req claim.DecideClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.claimService.Decide(c.Request.Context(), claimID, reviewerID, req.Outcome, req.Notes)
	if err != nil {
		response.FromError(c, "failed to decide claim", err)
		return
	}

	response.Success(c, http.StatusOK, "claim "+string(result.Status), result)
}
