// internal/domain/subscription/entity.go
package subscription

import (
	"context"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// Valid reports whether s is one of the lifecycle states the store accepts.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid, SubscriptionStatusCanceled, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return true
	}
	return false
}

// ProductLine discriminates independent subscribable offerings for one user.
type ProductLine string

const (
	ProductLineListing ProductLine = "listing"
	ProductLineBoost   ProductLine = "boost"
)

// Metadata keys written on billing objects at checkout creation.
const (
	MetaUserID             = "user_id"
	MetaSubscriptionType   = "subscription_type"
	MetaMaxBoostedListings = "max_boosted_listings"
)

// Subscription mirrors one user's billing relationship for one product line.
// At most one row exists per (UserID, SubscriptionType).
type Subscription struct {
	ID                   int64              `json:"id" db:"id"`
	UserID               int64              `json:"user_id" db:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	StripePriceID        *string            `json:"stripe_price_id,omitempty" db:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	SubscriptionType     ProductLine        `json:"subscription_type" db:"subscription_type"`

	// Billing period
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" db:"cancel_at_period_end"`

	// Entitlement quantity mirrored from billing metadata
	MaxBoostedListings int `json:"max_boosted_listings" db:"max_boosted_listings"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UsableEntitlement returns how many listings sub currently allows to be boosted.
// It is the stored quantity only while the subscription is active, not set to
// cancel at period end, and its period has not ended; otherwise 0.
func UsableEntitlement(sub *Subscription, now time.Time) int {
	if sub == nil {
		return 0
	}
	if sub.Status != SubscriptionStatusActive || sub.CancelAtPeriodEnd {
		return 0
	}
	if sub.CurrentPeriodEnd != nil && !sub.CurrentPeriodEnd.After(now) {
		return 0
	}
	if sub.MaxBoostedListings < 0 {
		return 0
	}
	return sub.MaxBoostedListings
}

// EntitlementSummary is the server-computed view the dashboard renders.
type EntitlementSummary struct {
	Active    bool `json:"active"`
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}

// Summarize combines the derived entitlement with the current boosted count.
func Summarize(sub *Subscription, used int, now time.Time) EntitlementSummary {
	limit := UsableEntitlement(sub, now)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return EntitlementSummary{
		Active:    limit > 0,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
	}
}

// Repository is the store contract for subscription rows.
type Repository interface {
	FindByUserAndType(ctx context.Context, userID int64, subType ProductLine) (*Subscription, error)
	// FindAnyByUser returns the most recently updated row for the user, any product line.
	FindAnyByUser(ctx context.Context, userID int64) (*Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Subscription, error)
	// InsertPlaceholder inserts sub unless a row for (user, type) already exists.
	InsertPlaceholder(ctx context.Context, sub *Subscription) error
	// Upsert writes sub keyed by (user, type). Returns xerrors.ErrNoConflictTarget
	// when the store lacks the matching unique constraint.
	Upsert(ctx context.Context, sub *Subscription) error
	Insert(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
}
