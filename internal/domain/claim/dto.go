// internal/domain/claim/dto.go
package claim

type SubmitClaimRequest struct {
	Justification string `json:"justification" binding:"required,min=10,max=2000"`
}

type DecideClaimRequest struct {
	Outcome ClaimStatus `json:"outcome" binding:"required,oneof=approved rejected"`
	Notes   string      `json:"notes" binding:"max=2000"`
}

type PendingFilters struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type ClaimListResponse struct {
	Claims     []Claim `json:"claims"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}
