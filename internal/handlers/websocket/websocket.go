// internal/handlers/websocket/websocket.go
package handlers

import (
	"net/http"
	"slices"
	"time"

	"vowlist-service/internal/middleware"
	"vowlist-service/internal/pkg/response"
	ws "vowlist-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigins only; "*" allows any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	allowAll := slices.Contains(allowedOrigins, "*")

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				if origin == "" || allowAll {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// HandleConnection authenticates the dashboard and upgrades to a push connection
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authentication token", nil)
		return
	}

	auth, err := h.hub.AuthenticateClient(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		response.Error(c, http.StatusUnauthorized, "authentication failed", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	h.hub.Register <- client

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", auth.IdentityID),
		zap.String("session_id", auth.SessionID),
	)

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns websocket connection statistics (admin only)
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now(),
	}

	response.Success(c, http.StatusOK, "websocket stats", stats)
}
