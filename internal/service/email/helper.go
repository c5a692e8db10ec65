// internal/service/email/helper.go
package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(to, subject, bodyHTML string) error
}

// Helper renders the vendor-facing emails and sends them off the request path.
type Helper struct {
	sender  Sender
	logger  *zap.Logger
	baseURL string
}

func NewHelper(sender Sender, logger *zap.Logger, baseURL string) *Helper {
	return &Helper{
		sender:  sender,
		logger:  logger,
		baseURL: baseURL,
	}
}

// ========== Claims ==========

// ClaimDecisionEmail builds the email sent to a requester once an admin decides their claim
func (h *Helper) ClaimDecisionEmail(fullName, listingName string, approved bool, notes string) (string, string) {
	name := html.EscapeString(fullName)
	listing := html.EscapeString(listingName)

	var subject, verdict string
	if approved {
		subject = fmt.Sprintf("Your claim for %s was approved", listingName)
		verdict = fmt.Sprintf(`<p>Good news: you are now the owner of <strong>%s</strong>.</p>
			<p>You can edit the listing and boost it from your dashboard.</p>
			<p><a class="button" href="%s/dashboard/listings">Open dashboard</a></p>`, listing, h.baseURL)
	} else {
		subject = fmt.Sprintf("Your claim for %s was not approved", listingName)
		verdict = fmt.Sprintf(`<p>We could not verify your claim for <strong>%s</strong>.</p>
			<p>If you believe this is a mistake, reply with documents that show you run this business.</p>`, listing)
	}

	body := fmt.Sprintf(`<p>Hello %s,</p>%s`, name, verdict)
	if notes != "" {
		body += fmt.Sprintf(`<p><em>Reviewer notes:</em> %s</p>`, html.EscapeString(notes))
	}

	return subject, body
}

// SendClaimDecision sends the claim decision email asynchronously
func (h *Helper) SendClaimDecision(ctx context.Context, to, fullName, listingName string, approved bool, notes string) {
	subject, body := h.ClaimDecisionEmail(fullName, listingName, approved, notes)
	h.sendAsync(to, subject, body, "claim_decision")
}

// ========== Boost subscription ==========

// CancellationScheduledEmail confirms that boosts stop at the end of the period
func (h *Helper) CancellationScheduledEmail(fullName string, periodEnd *time.Time) (string, string) {
	when := "at the end of the current billing period"
	if periodEnd != nil {
		when = "on " + periodEnd.Format("2 January 2006")
	}

	subject := "Your boost subscription will end"
	body := fmt.Sprintf(`<p>Hello %s,</p>
		<p>Your boost subscription is set to cancel. Boosted listings stop being featured as soon as the
		cancellation is scheduled, and billing ends %s.</p>
		<p>Changed your mind? <a class="button" href="%s/dashboard/billing">Resume subscription</a></p>`,
		html.EscapeString(fullName), when, h.baseURL)

	return subject, body
}

// SendCancellationScheduled sends the cancellation confirmation asynchronously
func (h *Helper) SendCancellationScheduled(ctx context.Context, to, fullName string, periodEnd *time.Time) {
	subject, body := h.CancellationScheduledEmail(fullName, periodEnd)
	h.sendAsync(to, subject, body, "cancellation_scheduled")
}

func (h *Helper) sendAsync(to, subject, body, kind string) {
	if to == "" {
		return
	}
	go func() {
		if err := h.sender.Send(to, subject, body); err != nil {
			h.logger.Error("failed to send email",
				zap.String("kind", kind),
				zap.String("email", to),
				zap.Error(err),
			)
			return
		}
		h.logger.Info("email sent",
			zap.String("kind", kind),
			zap.String("email", to),
		)
	}()
}
