// internal/domain/billing/entity.go
package billing

import "time"

// Customer is a billing-provider customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subscription is the billing provider's view of one subscription.
type Subscription struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id"`
	Status             string            `json:"status"`
	PriceID            string            `json:"price_id,omitempty"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Created            int64             `json:"created"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession is a checkout session with its linked subscription id, if any.
type CheckoutSession struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	URL            string            `json:"url,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CheckoutParams describes a subscription checkout to create.
type CheckoutParams struct {
	CustomerID    string
	CustomerEmail string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	// Metadata is written on both the session and the resulting subscription.
	Metadata map[string]string
}

// Event is a verified webhook event.
type Event struct {
	ID         string
	Type       string
	CustomerID string
	Metadata   map[string]string
}

// EpochToTime converts provider epoch seconds to a UTC timestamp; 0 means unset.
func EpochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
