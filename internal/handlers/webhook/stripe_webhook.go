// internal/handlers/webhook/stripe_webhook.go
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"vowlist-service/internal/domain/billing"
	"vowlist-service/internal/pkg/metrics"
	"vowlist-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxBodyBytes caps webhook payloads. Oversized bodies get 413, not a
// signature failure, so they show up distinctly in Stripe's delivery log.
const maxBodyBytes = 512 << 10

type EventParser interface {
	ParseWebhook(payload []byte, signature string) (*billing.Event, error)
}

type EventHandler interface {
	HandleWebhookEvent(ctx context.Context, event *billing.Event) error
}

type StripeWebhookHandler struct {
	parser  EventParser
	handler EventHandler
	logger  *zap.Logger
}

func NewStripeWebhookHandler(parser EventParser, handler EventHandler, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		parser:  parser,
		handler: handler,
		logger:  logger,
	}
}

// Handle verifies the Stripe signature and reconciles the affected user. A
// non-2xx reply makes Stripe redeliver the event.
func (h *StripeWebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhookEvents.WithLabelValues("unknown", "too_large").Inc()
			h.logger.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			response.Error(c, http.StatusRequestEntityTooLarge, "webhook payload too large", nil)
			return
		}
		response.Error(c, http.StatusBadRequest, "failed to read body", err)
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		h.logger.Warn("rejected webhook", zap.String("ip", c.ClientIP()), zap.Error(err))
		response.Error(c, http.StatusBadRequest, "invalid webhook signature", nil)
		return
	}

	if err := h.handler.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		response.FromError(c, "webhook processing failed", err)
		return
	}

	response.Success(c, http.StatusOK, "received", nil)
}
