// internal/repository/postgres/claim_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"vowlist-service/internal/domain/claim"
	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const claimColumns = `
	id, provider_id, user_id, justification, status,
	reviewed_by, reviewed_at, admin_notes, created_at, updated_at`

type ClaimRepository struct {
	db DBTX
}

func NewClaimRepository(db DBTX) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func scanClaim(row pgx.Row) (*claim.Claim, error) {
	var c claim.Claim
	err := row.Scan(
		&c.ID, &c.ProviderID, &c.UserID, &c.Justification, &c.Status,
		&c.ReviewedBy, &c.ReviewedAt, &c.AdminNotes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClaimRepository) list(ctx context.Context, query string, args ...any) ([]claim.Claim, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []claim.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// FindByID retrieves a claim by ID
func (r *ClaimRepository) FindByID(ctx context.Context, id int64) (*claim.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM provider_claims WHERE id = $1`

	c, err := scanClaim(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claim: %w", err)
	}
	return c, nil
}

// ListPendingByProvider retrieves pending claims for one listing
func (r *ClaimRepository) ListPendingByProvider(ctx context.Context, providerID int64) ([]claim.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM provider_claims
		WHERE provider_id = $1 AND status = 'pending'
		ORDER BY created_at ASC`
	return r.list(ctx, query, providerID)
}

// ListPending retrieves the moderation queue, oldest first
func (r *ClaimRepository) ListPending(ctx context.Context, limit, offset int) ([]claim.Claim, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM provider_claims WHERE status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pending claims: %w", err)
	}

	query := `SELECT ` + claimColumns + `
		FROM provider_claims
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`
	claims, err := r.list(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// ListByUser retrieves a requester's claims, newest first
func (r *ClaimRepository) ListByUser(ctx context.Context, userID int64) ([]claim.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM provider_claims
		WHERE user_id = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// Create inserts a pending claim
func (r *ClaimRepository) Create(ctx context.Context, c *claim.Claim) error {
	query := `
		INSERT INTO provider_claims (provider_id, user_id, justification, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, status, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.ProviderID, c.UserID, c.Justification).
		Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// Decide records the verdict and, on approval, transfers listing ownership in
// the same transaction. The fresh claim is re-read after commit.
func (r *ClaimRepository) Decide(ctx context.Context, d claim.Decision) (*claim.Claim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var providerID, requesterID int64
	var status claim.ClaimStatus
	err = tx.QueryRow(ctx,
		`SELECT provider_id, user_id, status FROM provider_claims WHERE id = $1 FOR UPDATE`,
		d.ClaimID,
	).Scan(&providerID, &requesterID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock claim: %w", err)
	}
	if status != claim.ClaimStatusPending {
		return nil, xerrors.ErrClaimNotPending
	}

	var notes *string
	if d.Notes != "" {
		notes = &d.Notes
	}

	_, err = tx.Exec(ctx, `
		UPDATE provider_claims
		SET status = $2, reviewed_by = $3, reviewed_at = NOW(), admin_notes = $4, updated_at = NOW()
		WHERE id = $1`,
		d.ClaimID, d.Outcome, d.ReviewerID, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update claim: %w", err)
	}

	if d.Outcome == claim.ClaimStatusApproved {
		result, err := tx.Exec(ctx, `
			UPDATE providers
			SET user_id = $2, updated_at = NOW()
			WHERE id = $1 AND (user_id IS NULL OR user_id = $2)`,
			providerID, requesterID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to transfer provider ownership: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil, xerrors.ErrOwnedByOther
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.FindByID(ctx, d.ClaimID)
}
