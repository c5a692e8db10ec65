// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "vowlist-service/internal/domain/websocket"
	"vowlist-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Authenticator validates the bearer token presented on connect
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	// done is closed when Run returns
	done chan struct{}

	handlerRegistry *HandlerRegistry

	auth   Authenticator
	logger *zap.Logger
}

type BroadcastMessage struct {
	IdentityIDs []int64
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(auth Authenticator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[int64]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		done:            make(chan struct{}),
		handlerRegistry: NewHandlerRegistry(),
		auth:            auth,
		logger:          logger,
	}
}

// AuthenticateClient validates the JWT token and returns the client identity
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	claims, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &ClientAuth{
		IdentityID: claims.IdentityID,
		SessionID:  claims.ID,
		Roles:      claims.Roles,
		Email:      claims.Email,
	}, nil
}

// RegisterHandler registers a message handler
func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage processes a message from a client using registered handlers
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return nil // Will be handled by client's default handler
	}
	return handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	for _, channel := range wstypes.DefaultChannels {
		client.Subscribe(channel)
	}

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"session_id":  client.sessionID,
		"channels":    wstypes.DefaultChannels,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("identity_id", client.identityID),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, identityID := range msg.IdentityIDs {
		for client := range h.clients[identityID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

func (h *Hub) GetConnectedClients(identityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identityID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(identityID int64) bool {
	return h.GetConnectedClients(identityID) > 0
}

// Public methods for pushing domain events. They never block the caller.

func (h *Hub) NotifySubscriptionUpdated(identityID int64, data wstypes.SubscriptionUpdatedData) {
	h.publish(identityID, wstypes.ChannelBilling, wstypes.NewMessage(wstypes.EventTypeSubscriptionUpdated, data))
}

func (h *Hub) NotifyBoostChanged(identityID int64, data wstypes.BoostChangedData) {
	h.publish(identityID, wstypes.ChannelListings, wstypes.NewMessage(wstypes.EventTypeBoostChanged, data))
}

func (h *Hub) NotifyClaimDecided(identityID int64, data wstypes.ClaimDecidedData) {
	h.publish(identityID, wstypes.ChannelClaims, wstypes.NewMessage(wstypes.EventTypeClaimDecided, data))
}

func (h *Hub) publish(identityID int64, channel wstypes.ChannelType, msg *wstypes.WSMessage) {
	select {
	case h.broadcast <- &BroadcastMessage{
		IdentityIDs: []int64{identityID},
		Channel:     channel,
		Message:     msg,
	}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.Int64("identity_id", identityID),
			zap.String("type", string(msg.Type)),
		)
	}
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
