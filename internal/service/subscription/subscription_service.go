// internal/service/subscription/subscription_service.go
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
	wstypes "vowlist-service/internal/domain/websocket"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/lock"
	"vowlist-service/internal/pkg/session"

	"go.uber.org/zap"
)

const syncRateLimitAction = "subscription_sync"

// BoostCounter reports how many listings an owner currently has boosted.
type BoostCounter interface {
	CountBoostedByOwner(ctx context.Context, ownerID int64) (int, error)
}

type Notifier interface {
	NotifySubscriptionUpdated(identityID int64, data wstypes.SubscriptionUpdatedData)
}

type Mailer interface {
	SendCancellationScheduled(ctx context.Context, to, fullName string, periodEnd *time.Time)
}

type Config struct {
	// Plans maps a boost price id to the listings it entitles.
	Plans            map[string]int
	SuccessURL       string
	CancelURL        string
	SyncLimit        int64
	SyncWindow       time.Duration
	WebhookDedupeTTL time.Duration
}

type SubscriptionService struct {
	reconciler *Reconciler
	subs       subscription.Repository
	users      user.Repository
	listings   BoostCounter
	billing    BillingProvider
	limiter    *session.RateLimiter
	locker     *lock.Locker
	notifier   Notifier
	mailer     Mailer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewSubscriptionService(
	reconciler *Reconciler,
	subs subscription.Repository,
	users user.Repository,
	listings BoostCounter,
	billingProvider BillingProvider,
	limiter *session.RateLimiter,
	locker *lock.Locker,
	notifier Notifier,
	mailer Mailer,
	cfg Config,
	logger *zap.Logger,
) *SubscriptionService {
	if cfg.SyncLimit <= 0 {
		cfg.SyncLimit = 5
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = 10 * time.Minute
	}
	if cfg.WebhookDedupeTTL <= 0 {
		cfg.WebhookDedupeTTL = 48 * time.Hour
	}
	return &SubscriptionService{
		reconciler: reconciler,
		subs:       subs,
		users:      users,
		listings:   listings,
		billing:    billingProvider,
		limiter:    limiter,
		locker:     locker,
		notifier:   notifier,
		mailer:     mailer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Plans lists the configured boost plans
func (s *SubscriptionService) Plans() []subscription.BoostPlan {
	plans := make([]subscription.BoostPlan, 0, len(s.cfg.Plans))
	for priceID, qty := range s.cfg.Plans {
		plans = append(plans, subscription.BoostPlan{PriceID: priceID, MaxBoostedListings: qty})
	}
	slices.SortFunc(plans, func(a, b subscription.BoostPlan) int {
		if c := cmp.Compare(a.MaxBoostedListings, b.MaxBoostedListings); c != 0 {
			return c
		}
		return strings.Compare(a.PriceID, b.PriceID)
	})
	return plans
}

// GetBoostSubscription returns the stored boost row and the entitlement derived from it
func (s *SubscriptionService) GetBoostSubscription(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error) {
	sub, err := s.subs.FindByUserAndType(ctx, userID, subscription.ProductLineBoost)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to get boost subscription: %w", err)
	}
	if errors.Is(err, xerrors.ErrNotFound) {
		sub = nil
	}

	return s.summarize(ctx, userID, sub)
}

func (s *SubscriptionService) summarize(ctx context.Context, userID int64, sub *subscription.Subscription) (*subscription.BoostSubscriptionResponse, error) {
	used, err := s.listings.CountBoostedByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count boosted listings: %w", err)
	}

	return &subscription.BoostSubscriptionResponse{
		Subscription: sub,
		Entitlement:  subscription.Summarize(sub, used, s.now()),
	}, nil
}

// Reconcile syncs userID against billing and pushes the result to their dashboard
func (s *SubscriptionService) Reconcile(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error) {
	sub, err := s.reconciler.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := s.summarize(ctx, userID, sub)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifySubscriptionUpdated(userID, wstypes.SubscriptionUpdatedData{
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		Entitlement:       wstypes.EntitlementData(resp.Entitlement),
	})

	return resp, nil
}

// SyncNow is the user-triggered reconcile, rate limited per user
func (s *SubscriptionService) SyncNow(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error) {
	allowed, err := s.limiter.Allow(ctx, userID, syncRateLimitAction, s.cfg.SyncLimit, s.cfg.SyncWindow)
	if err != nil {
		s.logger.Warn("sync rate limiter unavailable, allowing request",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		allowed = true
	}
	if !allowed {
		return nil, xerrors.ErrRateLimited
	}

	return s.Reconcile(ctx, userID)
}

// CreateBoostCheckout starts a checkout for a configured boost plan. The
// session and the subscription it creates are tagged so later reconciles
// pick the right subscription without guessing.
func (s *SubscriptionService) CreateBoostCheckout(ctx context.Context, userID int64, priceID string) (*subscription.CheckoutResponse, error) {
	quantity, ok := s.cfg.Plans[priceID]
	if !ok {
		return nil, fmt.Errorf("unknown boost plan %q: %w", priceID, xerrors.ErrInvalidInput)
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	params := billing.CheckoutParams{
		CustomerEmail: u.Email,
		PriceID:       priceID,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata: map[string]string{
			subscription.MetaUserID:             strconv.FormatInt(userID, 10),
			subscription.MetaSubscriptionType:   string(subscription.ProductLineBoost),
			subscription.MetaMaxBoostedListings: strconv.Itoa(quantity),
		},
	}

	existing, err := s.subs.FindAnyByUser(ctx, userID)
	switch {
	case err == nil:
		params.CustomerID = existing.StripeCustomerID
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}

	sess, err := s.billing.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error("failed to create checkout session",
			zap.Int64("user_id", userID),
			zap.String("price_id", priceID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("boost checkout created",
		zap.Int64("user_id", userID),
		zap.String("price_id", priceID),
		zap.String("session_id", sess.ID),
	)

	return &subscription.CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// CancelAtPeriodEnd schedules cancellation; entitlement drops to zero immediately
func (s *SubscriptionService) CancelAtPeriodEnd(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error) {
	resp, err := s.setCancelAtPeriodEnd(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	if u, err := s.users.FindByID(ctx, userID); err == nil {
		var periodEnd *time.Time
		if resp.Subscription != nil {
			periodEnd = resp.Subscription.CurrentPeriodEnd
		}
		s.mailer.SendCancellationScheduled(ctx, u.Email, u.FullName, periodEnd)
	} else {
		s.logger.Warn("failed to load user for cancellation email", zap.Int64("user_id", userID), zap.Error(err))
	}

	return resp, nil
}

// Resume clears a scheduled cancellation
func (s *SubscriptionService) Resume(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, false)
}

func (s *SubscriptionService) setCancelAtPeriodEnd(ctx context.Context, userID int64, cancel bool) (*subscription.BoostSubscriptionResponse, error) {
	sub, err := s.subs.FindByUserAndType(ctx, userID, subscription.ProductLineBoost)
	if err != nil {
		return nil, err
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return nil, fmt.Errorf("no billing subscription to update: %w", xerrors.ErrNotFound)
	}

	if err := s.billing.SetCancelAtPeriodEnd(ctx, *sub.StripeSubscriptionID, cancel); err != nil {
		s.logger.Error("failed to update cancel_at_period_end",
			zap.Int64("user_id", userID),
			zap.Bool("cancel", cancel),
			zap.Error(err),
		)
		return nil, err
	}

	return s.Reconcile(ctx, userID)
}
