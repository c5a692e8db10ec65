// internal/domain/subscription/dto.go
package subscription

type CheckoutRequest struct {
	PriceID string `json:"price_id" binding:"required"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type BoostSubscriptionResponse struct {
	Subscription *Subscription     `json:"subscription,omitempty"`
	Entitlement  EntitlementSummary `json:"entitlement"`
}

// BoostPlan maps a billing price to the number of listings it entitles.
type BoostPlan struct {
	PriceID            string `json:"price_id"`
	MaxBoostedListings int    `json:"max_boosted_listings"`
}
