// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"vowlist-service/internal/domain/subscription"
	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `
	id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
	status, subscription_type, current_period_start, current_period_end,
	cancel_at_period_end, max_boosted_listings, created_at, updated_at`

// Row comparison used to keep updated_at stable when a write changes nothing,
// so repeated reconciles against the same billing state leave the row untouched.
const subscriptionChanged = `
	(subscriptions.stripe_customer_id, subscriptions.stripe_subscription_id, subscriptions.stripe_price_id,
	 subscriptions.status, subscriptions.current_period_start, subscriptions.current_period_end,
	 subscriptions.cancel_at_period_end, subscriptions.max_boosted_listings)
	IS DISTINCT FROM
	(EXCLUDED.stripe_customer_id, EXCLUDED.stripe_subscription_id, EXCLUDED.stripe_price_id,
	 EXCLUDED.status, EXCLUDED.current_period_start, EXCLUDED.current_period_end,
	 EXCLUDED.cancel_at_period_end, EXCLUDED.max_boosted_listings)`

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.StripePriceID,
		&sub.Status, &sub.SubscriptionType, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.MaxBoostedListings, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, args ...any) (*subscription.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// FindByUserAndType retrieves the row for one user's product line
func (r *SubscriptionRepository) FindByUserAndType(ctx context.Context, userID int64, subType subscription.ProductLine) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND subscription_type = $2
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, userID, subType)
}

// FindAnyByUser retrieves the most recently touched row for a user
func (r *SubscriptionRepository) FindAnyByUser(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND stripe_customer_id <> ''
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, userID)
}

// FindByCustomerID retrieves a row holding the billing customer id
func (r *SubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, customerID)
}

// InsertPlaceholder records a customer mapping without touching an existing row
func (r *SubscriptionRepository) InsertPlaceholder(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, stripe_customer_id, status, subscription_type, max_boosted_listings)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (user_id, subscription_type) DO NOTHING`

	_, err := r.db.Exec(ctx, query, sub.UserID, sub.StripeCustomerID, sub.Status, sub.SubscriptionType)
	if err != nil {
		if isNoConflictTarget(err) {
			return xerrors.ErrNoConflictTarget
		}
		return fmt.Errorf("failed to insert placeholder subscription: %w", err)
	}
	return nil
}

// Upsert writes the row keyed by (user_id, subscription_type)
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			status, subscription_type, current_period_start, current_period_end,
			cancel_at_period_end, max_boosted_listings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, subscription_type) DO UPDATE SET
			stripe_customer_id     = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id        = EXCLUDED.stripe_price_id,
			status                 = EXCLUDED.status,
			current_period_start   = EXCLUDED.current_period_start,
			current_period_end     = EXCLUDED.current_period_end,
			cancel_at_period_end   = EXCLUDED.cancel_at_period_end,
			max_boosted_listings   = EXCLUDED.max_boosted_listings,
			updated_at = CASE WHEN ` + subscriptionChanged + ` THEN NOW() ELSE subscriptions.updated_at END
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.StripePriceID,
		sub.Status, sub.SubscriptionType, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.MaxBoostedListings,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isNoConflictTarget(err) {
			return xerrors.ErrNoConflictTarget
		}
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// Insert creates a new row
func (r *SubscriptionRepository) Insert(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			status, subscription_type, current_period_start, current_period_end,
			cancel_at_period_end, max_boosted_listings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.StripePriceID,
		sub.Status, sub.SubscriptionType, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.MaxBoostedListings,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// Update overwrites the row for (user_id, subscription_type)
func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			stripe_customer_id     = $3,
			stripe_subscription_id = $4,
			stripe_price_id        = $5,
			status                 = $6,
			current_period_start   = $7,
			current_period_end     = $8,
			cancel_at_period_end   = $9,
			max_boosted_listings   = $10,
			updated_at = CASE WHEN
				(stripe_customer_id, stripe_subscription_id, stripe_price_id, status,
				 current_period_start, current_period_end, cancel_at_period_end, max_boosted_listings)
				IS DISTINCT FROM
				($3::text, $4::text, $5::text, $6::text, $7::timestamptz, $8::timestamptz, $9::boolean, $10::integer)
			THEN NOW() ELSE updated_at END
		WHERE user_id = $1 AND subscription_type = $2
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		sub.UserID, sub.SubscriptionType,
		sub.StripeCustomerID, sub.StripeSubscriptionID, sub.StripePriceID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.MaxBoostedListings,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}
