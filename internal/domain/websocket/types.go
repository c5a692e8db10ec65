// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Channel management
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"

	// Billing (server -> client)
	EventTypeSubscriptionUpdated EventType = "subscription:updated"

	// Entitlement request (client -> server) and its reply
	EventTypeEntitlementGet     EventType = "entitlement:get"
	EventTypeEntitlementSummary EventType = "entitlement:summary"

	// Listings
	EventTypeBoostChanged EventType = "boost:changed"

	// Claims
	EventTypeClaimDecided EventType = "claim:decided"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// ChannelType groups server pushes a client can opt out of
type ChannelType string

const (
	ChannelBilling  ChannelType = "billing"
	ChannelListings ChannelType = "listings"
	ChannelClaims   ChannelType = "claims"
	ChannelSystem   ChannelType = "system"
)

// DefaultChannels are subscribed for every client on connect.
var DefaultChannels = []ChannelType{ChannelBilling, ChannelListings, ChannelClaims, ChannelSystem}

// ChannelRequest is the payload of subscribe and unsubscribe messages.
type ChannelRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// EntitlementData mirrors subscription.EntitlementSummary on the wire
type EntitlementData struct {
	Active    bool `json:"active"`
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}

type SubscriptionUpdatedData struct {
	Status            string          `json:"status"`
	CancelAtPeriodEnd bool            `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time      `json:"current_period_end,omitempty"`
	Entitlement       EntitlementData `json:"entitlement"`
}

type BoostChangedData struct {
	ListingID int64 `json:"listing_id"`
	Boosted   bool  `json:"boosted"`
	Used      int   `json:"used"`
	Limit     int   `json:"limit"`
}

type ClaimDecidedData struct {
	ClaimID    int64   `json:"claim_id"`
	ProviderID int64   `json:"provider_id"`
	Status     string  `json:"status"`
	AdminNotes *string `json:"admin_notes,omitempty"`
}

// NewMessage creates a message stamped with a fresh id
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
