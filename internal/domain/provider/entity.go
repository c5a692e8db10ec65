// internal/domain/provider/entity.go
package provider

import (
	"context"
	"time"
)

// Provider is a directory listing for a wedding-service vendor.
type Provider struct {
	ID        int64      `json:"id" db:"id"`
	UserID    *int64     `json:"user_id,omitempty" db:"user_id"`
	Name      string     `json:"name" db:"name"`
	Slug      string     `json:"slug" db:"slug"`
	Category  string     `json:"category" db:"category"`
	Location  string     `json:"location" db:"location"`
	IsBoosted bool       `json:"is_boosted" db:"is_boosted"`
	BoostedAt *time.Time `json:"boosted_at,omitempty" db:"boosted_at"`
	// Featured is computed for directory reads: boosted and backed by a live entitlement.
	Featured  bool       `json:"featured" db:"-"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsOwnedBy reports whether userID is the listing's owner.
func (p *Provider) IsOwnedBy(userID int64) bool {
	return p.UserID != nil && *p.UserID == userID
}

// Repository is the store contract for provider listings.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Provider, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Provider, error)
	List(ctx context.Context, filters *ListFilters) ([]Provider, int64, error)
	CountBoostedByOwner(ctx context.Context, ownerID int64) (int, error)
	// BoostIfUnderLimit sets the boosted flag when the owner's boosted count is
	// below limit. It serializes per owner and reports false when at capacity.
	BoostIfUnderLimit(ctx context.Context, listingID, ownerID int64, limit int) (bool, error)
	ClearBoost(ctx context.Context, listingID, ownerID int64) error
}
