// internal/service/subscription/reconciler.go
package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"vowlist-service/internal/domain/billing"
	"vowlist-service/internal/domain/subscription"
	"vowlist-service/internal/domain/user"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/lock"
	"vowlist-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// BillingProvider is the subset of the billing API the subscription service calls.
type BillingProvider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error)
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error)
	ListCheckoutSessions(ctx context.Context, customerID string) ([]billing.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
}

// Reconciler makes the local boost row match what the billing provider reports.
type Reconciler struct {
	subs    subscription.Repository
	users   user.Repository
	billing BillingProvider
	locker  *lock.Locker
	logger  *zap.Logger
}

func NewReconciler(
	subs subscription.Repository,
	users user.Repository,
	billingProvider BillingProvider,
	locker *lock.Locker,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		subs:    subs,
		users:   users,
		billing: billingProvider,
		locker:  locker,
		logger:  logger,
	}
}

func reconcileLockKey(userID int64) string {
	return fmt.Sprintf("lock:reconcile:%d", userID)
}

// Reconcile fetches billing truth for userID and writes it to the boost row.
// Running it twice against unchanged billing state leaves the row unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	lease, err := r.locker.Acquire(ctx, reconcileLockKey(userID))
	switch {
	case err == nil:
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release reconcile lock", zap.Int64("user_id", userID), zap.Error(err))
			}
		}()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case errors.Is(err, lock.ErrNotAcquired):
		r.logger.Debug("reconcile already running, proceeding without lock", zap.Int64("user_id", userID))
	default:
		r.logger.Warn("reconcile lock unavailable, proceeding without lock", zap.Int64("user_id", userID), zap.Error(err))
	}

	sub, err := r.reconcile(ctx, userID)
	metrics.ReconcileTotal.WithLabelValues(reconcileOutcome(sub, err)).Inc()
	if err != nil {
		r.logger.Warn("reconcile failed",
			zap.Int64("user_id", userID),
			zap.String("operation", "reconcile"),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Info("subscription reconciled",
		zap.Int64("user_id", userID),
		zap.String("status", string(sub.Status)),
		zap.Int("max_boosted_listings", sub.MaxBoostedListings),
	)
	return sub, nil
}

func reconcileOutcome(sub *subscription.Subscription, err error) string {
	switch {
	case errors.Is(err, xerrors.ErrNoBillingCustomer):
		return "no_customer"
	case errors.Is(err, xerrors.ErrReconciliationWriteFailed):
		return "write_failed"
	case err != nil:
		return "error"
	default:
		return string(sub.Status)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	customerID, err := r.resolveCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	// A listing failure must not read as zero subscriptions: that would cancel
	// a paying user's entitlement during a billing outage.
	subs, err := r.billing.ListCustomerSubscriptions(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing subscriptions: %w", err)
	}

	row := &subscription.Subscription{
		UserID:           userID,
		StripeCustomerID: customerID,
		SubscriptionType: subscription.ProductLineBoost,
	}

	chosen, ok, ambiguous := chooseSubscription(subs)
	if !ok {
		if len(subs) > 0 {
			r.logger.Info("customer has no boost subscription, only other product lines",
				zap.Int64("user_id", userID),
				zap.Int("subscriptions", len(subs)),
			)
		}
		return r.persistCanceled(ctx, row)
	}

	if ambiguous {
		metrics.ReconcileAmbiguous.Inc()
		r.logger.Warn("ambiguous billing subscriptions, using most recent",
			zap.Int64("user_id", userID),
			zap.String("customer_id", customerID),
			zap.String("subscription_id", chosen.ID),
			zap.Int("candidates", len(subs)),
		)
	}

	quantity, ok := parseQuantity(chosen.Metadata)
	if !ok {
		quantity = r.quantityFromSessions(ctx, customerID, chosen.ID)
	}

	row.StripeSubscriptionID = stringPtr(chosen.ID)
	row.StripePriceID = stringPtr(chosen.PriceID)
	row.Status = normalizeStatus(chosen.Status)
	if row.Status != subscription.SubscriptionStatus(chosen.Status) {
		r.logger.Warn("unknown billing status, treating as incomplete",
			zap.Int64("user_id", userID),
			zap.String("status", chosen.Status),
		)
	}
	row.CurrentPeriodStart = billing.EpochToTime(chosen.CurrentPeriodStart)
	row.CurrentPeriodEnd = billing.EpochToTime(chosen.CurrentPeriodEnd)
	row.CancelAtPeriodEnd = chosen.CancelAtPeriodEnd
	row.MaxBoostedListings = quantity

	return r.persist(ctx, row)
}

// persistCanceled records that the customer holds no boost subscription,
// keeping the last known price and period for display.
func (r *Reconciler) persistCanceled(ctx context.Context, row *subscription.Subscription) (*subscription.Subscription, error) {
	if existing, err := r.subs.FindByUserAndType(ctx, row.UserID, subscription.ProductLineBoost); err == nil {
		row.StripePriceID = existing.StripePriceID
		row.CurrentPeriodStart = existing.CurrentPeriodStart
		row.CurrentPeriodEnd = existing.CurrentPeriodEnd
		row.MaxBoostedListings = existing.MaxBoostedListings
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to read boost subscription: %w", err)
	}
	row.Status = subscription.SubscriptionStatusCanceled
	return r.persist(ctx, row)
}

// resolveCustomer finds the billing customer for userID, creating the
// placeholder row the first time a customer is discovered by email.
func (r *Reconciler) resolveCustomer(ctx context.Context, userID int64) (string, error) {
	existing, err := r.subs.FindAnyByUser(ctx, userID)
	if err == nil && existing.StripeCustomerID != "" {
		return existing.StripeCustomerID, nil
	}
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return "", fmt.Errorf("failed to read subscriptions: %w", err)
	}

	u, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	customer, err := r.billing.FindCustomerByEmail(ctx, u.Email)
	if err != nil {
		r.logger.Warn("customer lookup failed, treating as not found",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		customer = nil
	}
	if customer == nil {
		return "", xerrors.ErrNoBillingCustomer
	}

	placeholder := &subscription.Subscription{
		UserID:           userID,
		StripeCustomerID: customer.ID,
		Status:           subscription.SubscriptionStatusIncomplete,
		SubscriptionType: subscription.ProductLineBoost,
	}
	err = r.subs.InsertPlaceholder(ctx, placeholder)
	if errors.Is(err, xerrors.ErrNoConflictTarget) {
		err = r.insertIfMissing(ctx, placeholder)
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert placeholder subscription: %w", err)
	}

	return customer.ID, nil
}

func (r *Reconciler) insertIfMissing(ctx context.Context, sub *subscription.Subscription) error {
	_, err := r.subs.FindByUserAndType(ctx, sub.UserID, sub.SubscriptionType)
	if err == nil {
		return nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	if err := r.subs.Insert(ctx, sub); err != nil && !errors.Is(err, xerrors.ErrDuplicateEntry) {
		return err
	}
	return nil
}

// quantityFromSessions reads the entitlement from the checkout session that
// created subscriptionID. Lookup failures count as not found.
func (r *Reconciler) quantityFromSessions(ctx context.Context, customerID, subscriptionID string) int {
	sessions, err := r.billing.ListCheckoutSessions(ctx, customerID)
	if err != nil {
		r.logger.Warn("checkout session lookup failed, treating as not found",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return 0
	}

	for _, s := range sessions {
		if s.SubscriptionID != subscriptionID {
			continue
		}
		if n, ok := parseQuantity(s.Metadata); ok {
			return n
		}
	}
	return 0
}

// persist upserts row keyed by (user, product line), falling back to
// read-then-write when the store has no matching unique constraint.
func (r *Reconciler) persist(ctx context.Context, row *subscription.Subscription) (*subscription.Subscription, error) {
	err := r.subs.Upsert(ctx, row)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, xerrors.ErrNoConflictTarget) {
		return nil, &xerrors.ReconciliationWriteError{UserID: row.UserID, Err: err}
	}

	r.logger.Warn("subscriptions table has no (user_id, subscription_type) constraint, using read-then-write",
		zap.Int64("user_id", row.UserID),
	)

	existing, err := r.subs.FindByUserAndType(ctx, row.UserID, row.SubscriptionType)
	switch {
	case err == nil:
		row.ID = existing.ID
		err = r.subs.Update(ctx, row)
	case errors.Is(err, xerrors.ErrNotFound):
		err = r.subs.Insert(ctx, row)
	}
	if err != nil {
		return nil, &xerrors.ReconciliationWriteError{UserID: row.UserID, Err: err}
	}
	return row, nil
}

// chooseSubscription picks the authoritative boost subscription. Tagged
// subscriptions win; otherwise the most recent untagged one is used and
// ambiguous reports whether more than one untagged candidate existed.
// Subscriptions tagged for another product line are never chosen.
func chooseSubscription(subs []billing.Subscription) (chosen billing.Subscription, ok, ambiguous bool) {
	var typed, quantified, untagged []billing.Subscription
	for _, s := range subs {
		switch t, hasType := s.Metadata[subscription.MetaSubscriptionType]; {
		case t == string(subscription.ProductLineBoost):
			typed = append(typed, s)
		case hasMetaKey(s.Metadata, subscription.MetaMaxBoostedListings):
			quantified = append(quantified, s)
		case !hasType:
			untagged = append(untagged, s)
		}
	}

	switch {
	case len(typed) > 0:
		return mostRecent(typed), true, false
	case len(quantified) > 0:
		return mostRecent(quantified), true, false
	case len(untagged) > 0:
		return mostRecent(untagged), true, len(untagged) > 1
	default:
		return billing.Subscription{}, false, false
	}
}

// mostRecent orders by creation time descending, ties broken by lowest id.
func mostRecent(subs []billing.Subscription) billing.Subscription {
	return slices.MinFunc(subs, func(a, b billing.Subscription) int {
		if c := cmp.Compare(b.Created, a.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// parseQuantity reads max_boosted_listings; unparseable or negative values count as missing.
func parseQuantity(meta map[string]string) (int, bool) {
	raw, ok := meta[subscription.MetaMaxBoostedListings]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func hasMetaKey(meta map[string]string, key string) bool {
	_, ok := meta[key]
	return ok
}

func normalizeStatus(status string) subscription.SubscriptionStatus {
	s := subscription.SubscriptionStatus(status)
	if !s.Valid() {
		return subscription.SubscriptionStatusIncomplete
	}
	return s
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
