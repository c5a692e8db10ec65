// internal/service/subscription/webhook.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"vowlist-service/internal/domain/billing"
	"vowlist-service/internal/domain/subscription"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// reconcileEvents are the billing events that can change a boost entitlement.
var reconcileEvents = map[string]bool{
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
	"checkout.session.completed":    true,
}

func webhookDedupeKey(eventID string) string {
	return "webhook:stripe:" + eventID
}

// HandleWebhookEvent reconciles the user an event belongs to. Each event id
// is processed at most once; failed events are forgotten so a retry runs again.
func (s *SubscriptionService) HandleWebhookEvent(ctx context.Context, event *billing.Event) error {
	if !reconcileEvents[event.Type] {
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}

	first, err := s.locker.Once(ctx, webhookDedupeKey(event.ID), s.cfg.WebhookDedupeTTL)
	if err != nil {
		s.logger.Warn("webhook dedupe unavailable, processing anyway",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		first = true
	}
	if !first {
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		s.logger.Debug("duplicate webhook event", zap.String("event_id", event.ID))
		return nil
	}

	if err := s.handleReconcileEvent(ctx, event); err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		if ferr := s.locker.Forget(context.WithoutCancel(ctx), webhookDedupeKey(event.ID)); ferr != nil {
			s.logger.Warn("failed to clear webhook dedupe key", zap.String("event_id", event.ID), zap.Error(ferr))
		}
		return err
	}

	metrics.WebhookEvents.WithLabelValues(event.Type, "processed").Inc()
	return nil
}

func (s *SubscriptionService) handleReconcileEvent(ctx context.Context, event *billing.Event) error {
	userID, err := s.resolveEventUser(ctx, event)
	if err != nil {
		return err
	}
	if userID == 0 {
		s.logger.Info("webhook event for unknown customer, ignoring",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.String("customer_id", event.CustomerID),
		)
		return nil
	}

	_, err = s.Reconcile(ctx, userID)
	if errors.Is(err, xerrors.ErrNoBillingCustomer) {
		s.logger.Warn("webhook user has no billing customer",
			zap.String("event_id", event.ID),
			zap.Int64("user_id", userID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reconcile user %d for event %s: %w", userID, event.ID, err)
	}
	return nil
}

// resolveEventUser prefers the user id tagged at checkout, then the local
// row holding the event's customer id. Zero means no matching user.
func (s *SubscriptionService) resolveEventUser(ctx context.Context, event *billing.Event) (int64, error) {
	if raw, ok := event.Metadata[subscription.MetaUserID]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id, nil
		}
		s.logger.Warn("invalid user_id metadata on webhook event",
			zap.String("event_id", event.ID),
			zap.String("user_id", raw),
		)
	}

	if event.CustomerID == "" {
		return 0, nil
	}

	sub, err := s.subs.FindByCustomerID(ctx, event.CustomerID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find subscription by customer: %w", err)
	}
	return sub.UserID, nil
}
