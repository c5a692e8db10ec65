// internal/domain/claim/entity.go
package claim

import (
	"context"
	"time"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusRejected ClaimStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected
}

// Claim is one user's request to become the owner of a listing.
type Claim struct {
	ID            int64       `json:"id" db:"id"`
	ProviderID    int64       `json:"provider_id" db:"provider_id"`
	UserID        int64       `json:"user_id" db:"user_id"`
	Justification string      `json:"justification" db:"justification"`
	Status        ClaimStatus `json:"status" db:"status"`
	ReviewedBy    *int64      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt    *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
	AdminNotes    *string     `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Decision is an admin's terminal verdict on a pending claim.
type Decision struct {
	ClaimID    int64
	ReviewerID int64
	Outcome    ClaimStatus
	Notes      string
}

// Repository is the store contract for provider claims.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Claim, error)
	// ListPendingByProvider reads pending claims for a listing straight from the store.
	ListPendingByProvider(ctx context.Context, providerID int64) ([]Claim, error)
	ListPending(ctx context.Context, limit, offset int) ([]Claim, int64, error)
	ListByUser(ctx context.Context, userID int64) ([]Claim, error)
	// Create inserts a pending claim. Returns xerrors.ErrDuplicateEntry when
	// the listing already has a pending claim.
	Create(ctx context.Context, c *Claim) error
	// Decide applies d atomically: the claim update and, on approval, the
	// listing ownership change commit together or not at all.
	Decide(ctx context.Context, d Decision) (*Claim, error)
}
