// internal/websocket/handler/entitlement.go
package handler

import (
	"context"
	"fmt"

	"vowlist-service/internal/domain/subscription"
	wstypes "vowlist-service/internal/domain/websocket"
	ws "vowlist-service/internal/websocket"
)

type EntitlementReader interface {
	GetBoostSubscription(ctx context.Context, userID int64) (*subscription.BoostSubscriptionResponse, error)
}

// EntitlementHandler answers dashboard requests for the current boost entitlement.
type EntitlementHandler struct {
	reader EntitlementReader
}

func NewEntitlementHandler(reader EntitlementReader) *EntitlementHandler {
	return &EntitlementHandler{reader: reader}
}

// SupportedEvents returns events this handler supports
func (h *EntitlementHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeEntitlementGet}
}

// HandleMessage processes entitlement messages
func (h *EntitlementHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	if msg.Type != wstypes.EventTypeEntitlementGet {
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}

	resp, err := h.reader.GetBoostSubscription(ctx, client.GetIdentityID())
	if err != nil {
		return fmt.Errorf("failed to load entitlement: %w", err)
	}

	data := map[string]interface{}{
		"entitlement": wstypes.EntitlementData(resp.Entitlement),
	}
	if resp.Subscription != nil {
		data["status"] = resp.Subscription.Status
		data["cancel_at_period_end"] = resp.Subscription.CancelAtPeriodEnd
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeEntitlementSummary, data))
	return nil
}
