// internal/billing/stripe/client.go
package stripe

import (
	"context"
	"encoding/json"
	"fmt"

	"vowlist-service/internal/domain/billing"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

// recentSessionLimit bounds how many checkout sessions are scanned when
// looking for entitlement metadata.
const recentSessionLimit = 20

// Client adapts the Stripe SDK to the billing contracts used by the
// subscription service.
type Client struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewClient builds a client against the live Stripe API. backends may be nil.
func NewClient(secretKey, webhookSecret string, backends *stripeapi.Backends, logger *zap.Logger) *Client {
	return &Client{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// FindCustomerByEmail returns the first customer with the given email, or nil.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(1)

	iter := c.api.Customers.List(params)
	if iter.Next() {
		cust := iter.Customer()
		return &billing.Customer{ID: cust.ID, Email: cust.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return nil, nil
}

// ListCustomerSubscriptions returns every subscription of the customer, any status.
func (c *Client) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	params := &stripeapi.SubscriptionListParams{
		Customer: stripeapi.String(customerID),
		Status:   stripeapi.String("all"),
	}
	params.Context = ctx

	subs := []billing.Subscription{}
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, toSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// ListCheckoutSessions returns the customer's most recent checkout sessions.
func (c *Client) ListCheckoutSessions(ctx context.Context, customerID string) ([]billing.CheckoutSession, error) {
	params := &stripeapi.CheckoutSessionListParams{Customer: stripeapi.String(customerID)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(recentSessionLimit)

	sessions := []billing.CheckoutSession{}
	iter := c.api.CheckoutSessions.List(params)
	for iter.Next() && len(sessions) < recentSessionLimit {
		sessions = append(sessions, toCheckoutSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	return sessions, nil
}

// CreateCheckoutSession starts a subscription checkout. The metadata is
// attached to the session and to the subscription it creates.
func (c *Client) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode: stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(p.PriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(p.SuccessURL),
		CancelURL:  stripeapi.String(p.CancelURL),
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripeapi.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	out := toCheckoutSession(sess)
	return &out, nil
}

// SetCancelAtPeriodEnd flips the cancel-at-period-end flag on a subscription.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	params := &stripeapi.SubscriptionParams{CancelAtPeriodEnd: stripeapi.Bool(cancel)}
	params.Context = ctx

	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// ParseWebhook verifies the signature header and decodes the fields the
// reconciler needs from the event object.
func (c *Client) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook: %w", err)
	}

	out := &billing.Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeapi.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription event: %w", err)
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.Metadata = sub.Metadata
	case "checkout.session.completed":
		var sess stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout event: %w", err)
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		out.Metadata = sess.Metadata
	default:
		c.logger.Debug("unhandled webhook type", zap.String("type", out.Type), zap.String("event_id", out.ID))
	}

	return out, nil
}

func toSubscription(s *stripeapi.Subscription) billing.Subscription {
	out := billing.Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		Created:            s.Created,
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	return out
}

func toCheckoutSession(s *stripeapi.CheckoutSession) billing.CheckoutSession {
	out := billing.CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Metadata: s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}
