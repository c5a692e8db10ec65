// internal/service/claim/claim_service.go
package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"vowlist-service/internal/domain/claim"
	"vowlist-service/internal/domain/provider"
	"vowlist-service/internal/domain/user"
	wstypes "vowlist-service/internal/domain/websocket"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

const (
	minJustification = 10
	maxJustification = 2000
)

// ListingReader is the read side of the listing store used for ownership checks
type ListingReader interface {
	FindByID(ctx context.Context, id int64) (*provider.Provider, error)
}

type Notifier interface {
	NotifyClaimDecided(identityID int64, data wstypes.ClaimDecidedData)
}

type Mailer interface {
	SendClaimDecision(ctx context.Context, to, fullName, listingName string, approved bool, notes string)
}

type ClaimService struct {
	claims    claim.Repository
	providers ListingReader
	users     user.Repository
	notifier  Notifier
	mailer    Mailer
	logger    *zap.Logger
}

func NewClaimService(
	claims claim.Repository,
	providers ListingReader,
	users user.Repository,
	notifier Notifier,
	mailer Mailer,
	logger *zap.Logger,
) *ClaimService {
	return &ClaimService{
		claims:    claims,
		providers: providers,
		users:     users,
		notifier:  notifier,
		mailer:    mailer,
		logger:    logger,
	}
}

// SubmitClaim files a pending ownership claim for listingID on behalf of userID
func (s *ClaimService) SubmitClaim(ctx context.Context, listingID, userID int64, justification string) (*claim.Claim, error) {
	c, err := s.submit(ctx, listingID, userID, justification)
	metrics.ClaimsSubmitted.WithLabelValues(submitResult(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("claim submitted",
		zap.Int64("claim_id", c.ID),
		zap.Int64("provider_id", listingID),
		zap.Int64("user_id", userID),
	)
	return c, nil
}

func (s *ClaimService) submit(ctx context.Context, listingID, userID int64, justification string) (*claim.Claim, error) {
	justification = strings.TrimSpace(justification)
	if n := utf8.RuneCountInString(justification); n < minJustification || n > maxJustification {
		return nil, fmt.Errorf("%w: justification must be between %d and %d characters",
			xerrors.ErrInvalidInput, minJustification, maxJustification)
	}

	listing, err := s.providers.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.IsOwnedBy(userID) {
		return nil, xerrors.ErrAlreadyOwned
	}
	if listing.UserID != nil {
		return nil, xerrors.ErrOwnedByOther
	}

	if err := s.checkPending(ctx, listingID, userID); err != nil {
		return nil, err
	}

	c := &claim.Claim{
		ProviderID:    listingID,
		UserID:        userID,
		Justification: justification,
	}
	err = s.claims.Create(ctx, c)
	if errors.Is(err, xerrors.ErrDuplicateEntry) {
		// lost a race with another submission; re-read to report which one
		if perr := s.checkPending(ctx, listingID, userID); perr != nil {
			return nil, perr
		}
		return nil, xerrors.ErrContestedPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}
	return c, nil
}

func (s *ClaimService) checkPending(ctx context.Context, listingID, userID int64) error {
	pending, err := s.claims.ListPendingByProvider(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to check pending claims: %w", err)
	}
	for _, p := range pending {
		if p.UserID == userID {
			return xerrors.ErrDuplicatePending
		}
	}
	if len(pending) > 0 {
		return xerrors.ErrContestedPending
	}
	return nil
}

func submitResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, xerrors.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, xerrors.ErrAlreadyOwned), errors.Is(err, xerrors.ErrOwnedByOther):
		return "owned"
	case errors.Is(err, xerrors.ErrDuplicatePending):
		return "duplicate"
	case errors.Is(err, xerrors.ErrContestedPending):
		return "contested"
	case errors.Is(err, xerrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Decide applies an admin verdict to a pending claim and returns the stored result
func (s *ClaimService) Decide(ctx context.Context, claimID, reviewerID int64, outcome claim.ClaimStatus, notes string) (*claim.Claim, error) {
	if outcome != claim.ClaimStatusApproved && outcome != claim.ClaimStatusRejected {
		return nil, fmt.Errorf("%w: outcome must be approved or rejected", xerrors.ErrInvalidInput)
	}

	decided, err := s.claims.Decide(ctx, claim.Decision{
		ClaimID:    claimID,
		ReviewerID: reviewerID,
		Outcome:    outcome,
		Notes:      strings.TrimSpace(notes),
	})
	if err != nil {
		if errors.Is(err, xerrors.ErrClaimNotPending) {
			s.logger.Error("decision on non-pending claim",
				zap.Int64("claim_id", claimID),
				zap.Int64("reviewer_id", reviewerID),
				zap.String("outcome", string(outcome)),
			)
		}
		return nil, err
	}

	metrics.ClaimsDecided.WithLabelValues(string(outcome)).Inc()
	s.logger.Info("claim decided",
		zap.Int64("claim_id", claimID),
		zap.Int64("reviewer_id", reviewerID),
		zap.Int64("user_id", decided.UserID),
		zap.String("outcome", string(outcome)),
	)

	s.notifier.NotifyClaimDecided(decided.UserID, wstypes.ClaimDecidedData{
		ClaimID:    decided.ID,
		ProviderID: decided.ProviderID,
		Status:     string(decided.Status),
		AdminNotes: decided.AdminNotes,
	})
	s.emailDecision(ctx, decided)

	return decided, nil
}

func (s *ClaimService) emailDecision(ctx context.Context, c *claim.Claim) {
	requester, err := s.users.FindByID(ctx, c.UserID)
	if err != nil {
		s.logger.Warn("skipping claim decision email", zap.Int64("user_id", c.UserID), zap.Error(err))
		return
	}

	listingName := fmt.Sprintf("listing #%d", c.ProviderID)
	if listing, err := s.providers.FindByID(ctx, c.ProviderID); err == nil {
		listingName = listing.Name
	}

	notes := ""
	if c.AdminNotes != nil {
		notes = *c.AdminNotes
	}
	s.mailer.SendClaimDecision(ctx, requester.Email, requester.FullName, listingName,
		c.Status == claim.ClaimStatusApproved, notes)
}

// ListPending returns the review queue, oldest first
func (s *ClaimService) ListPending(ctx context.Context, filters *claim.PendingFilters) (*claim.ClaimListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	claims, total, err := s.claims.ListPending(ctx, filters.PageSize, (filters.Page-1)*filters.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &claim.ClaimListResponse{
		Claims:     claims,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *ClaimService) ListMine(ctx context.Context, userID int64) ([]claim.Claim, error) {
	claims, err := s.claims.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

func (s *ClaimService) GetClaim(ctx context.Context, id int64) (*claim.Claim, error) {
	return s.claims.FindByID(ctx, id)
}
