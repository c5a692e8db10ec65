// internal/domain/provider/dto.go
package provider

type ListFilters struct {
	Categories []string `form:"category"`
	Location   string   `form:"location"`
	Search     string   `form:"q"`
	Page       int      `form:"page"`
	PageSize   int      `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type ListResponse struct {
	Providers  []Provider `json:"providers"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

type ToggleBoostRequest struct {
	Boosted *bool `json:"boosted" binding:"required"`
}

// BoostResult reports the listing's flag and the owner's usage after a toggle.
type BoostResult struct {
	ListingID int64 `json:"listing_id"`
	Boosted   bool  `json:"boosted"`
	Used      int   `json:"used"`
	Limit     int   `json:"limit"`
}
