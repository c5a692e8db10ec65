// internal/repository/postgres/provider_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vowlist-service/internal/domain/provider"
	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const providerColumns = `
	p.id, p.user_id, p.name, p.slug, p.category, p.location,
	p.is_boosted, p.boosted_at, p.created_at, p.updated_at`

// A listing is featured only while its owner's boost subscription still confers entitlement.
const featuredExpr = `(p.is_boosted AND EXISTS (
		SELECT 1 FROM subscriptions s
		WHERE s.user_id = p.user_id
		  AND s.subscription_type = 'boost'
		  AND s.status = 'active'
		  AND s.cancel_at_period_end = FALSE
		  AND (s.current_period_end IS NULL OR s.current_period_end > NOW())
		  AND s.max_boosted_listings > 0
	))`

type ProviderRepository struct {
	db DBTX
}

func NewProviderRepository(db DBTX) *ProviderRepository {
	return &ProviderRepository{db: db}
}

func scanProvider(row pgx.Row, extra ...any) (*provider.Provider, error) {
	var p provider.Provider
	dest := []any{
		&p.ID, &p.UserID, &p.Name, &p.Slug, &p.Category, &p.Location,
		&p.IsBoosted, &p.BoostedAt, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByID retrieves a listing by ID
func (r *ProviderRepository) FindByID(ctx context.Context, id int64) (*provider.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers p WHERE p.id = $1`

	p, err := scanProvider(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}
	return p, nil
}

// ListByOwner retrieves every listing owned by a user
func (r *ProviderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]provider.Provider, error) {
	query := `SELECT ` + providerColumns + `, ` + featuredExpr + `
		FROM providers p
		WHERE p.user_id = $1
		ORDER BY p.is_boosted DESC, p.name ASC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner providers: %w", err)
	}
	defer rows.Close()

	providers := []provider.Provider{}
	for rows.Next() {
		var featured bool
		p, err := scanProvider(rows, &featured)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		p.Featured = featured
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// List retrieves directory listings, featured first
func (r *ProviderRepository) List(ctx context.Context, filters *provider.ListFilters) ([]provider.Provider, int64, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if len(filters.Categories) > 0 {
		conditions = append(conditions, fmt.Sprintf("p.category = ANY($%d)", argPos))
		args = append(args, pq.Array(filters.Categories))
		argPos++
	}

	if filters.Location != "" {
		conditions = append(conditions, fmt.Sprintf("p.location ILIKE $%d", argPos))
		args = append(args, "%"+filters.Location+"%")
		argPos++
	}

	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("p.name ILIKE $%d", argPos))
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM providers p WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count providers: %w", err)
	}

	// Pagination
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT %s, %s AS featured
		FROM providers p
		WHERE %s
		ORDER BY featured DESC, p.boosted_at ASC NULLS LAST, p.name ASC
		LIMIT $%d OFFSET $%d
	`, providerColumns, featuredExpr, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	providers := []provider.Provider{}
	for rows.Next() {
		var featured bool
		p, err := scanProvider(rows, &featured)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan provider: %w", err)
		}
		p.Featured = featured
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate providers: %w", err)
	}

	return providers, total, nil
}

// CountBoostedByOwner counts the owner's listings with the boosted flag set
func (r *ProviderRepository) CountBoostedByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM providers WHERE user_id = $1 AND is_boosted = TRUE`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count boosted providers: %w", err)
	}
	return count, nil
}

// BoostIfUnderLimit flags the listing as boosted when the owner has capacity.
// The per-owner advisory lock serializes concurrent toggles, so the count and
// the write observe the same boosted set.
func (r *ProviderRepository) BoostIfUnderLimit(ctx context.Context, listingID, ownerID int64, limit int) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return false, fmt.Errorf("failed to lock owner: %w", err)
	}

	var owner *int64
	var boosted bool
	err = tx.QueryRow(ctx, `SELECT user_id, is_boosted FROM providers WHERE id = $1 FOR UPDATE`, listingID).Scan(&owner, &boosted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, xerrors.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock provider: %w", err)
	}
	if owner == nil || *owner != ownerID {
		return false, xerrors.ErrForbidden
	}
	if boosted {
		return true, nil
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM providers WHERE user_id = $1 AND is_boosted = TRUE`, ownerID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count boosted providers: %w", err)
	}
	if count >= limit {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE providers SET is_boosted = TRUE, boosted_at = NOW(), updated_at = NOW() WHERE id = $1`, listingID); err != nil {
		return false, fmt.Errorf("failed to boost provider: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ClearBoost unsets the boosted flag on an owned listing
func (r *ProviderRepository) ClearBoost(ctx context.Context, listingID, ownerID int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE providers
		SET is_boosted = FALSE, boosted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, listingID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to clear boost: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, listingID); err != nil {
			return err
		}
		return xerrors.ErrForbidden
	}
	return nil
}
