// internal/service/boost/boost_service.go
package boost

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vowlist-service/internal/domain/provider"
	"vowlist-service/internal/domain/subscription"
	wstypes "vowlist-service/internal/domain/websocket"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

type Notifier interface {
	NotifyBoostChanged(identityID int64, data wstypes.BoostChangedData)
}

// BoostService enforces the boost entitlement on listing toggles. It reads the
// last reconciled subscription row and never calls billing.
type BoostService struct {
	providers provider.Repository
	subs      subscription.Repository
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewBoostService(
	providers provider.Repository,
	subs subscription.Repository,
	notifier Notifier,
	logger *zap.Logger,
) *BoostService {
	return &BoostService{
		providers: providers,
		subs:      subs,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Entitlement returns how many listings ownerID may currently have boosted
func (s *BoostService) Entitlement(ctx context.Context, ownerID int64) (int, error) {
	sub, err := s.subs.FindByUserAndType(ctx, ownerID, subscription.ProductLineBoost)
	if errors.Is(err, xerrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get boost subscription: %w", err)
	}
	return subscription.UsableEntitlement(sub, s.now()), nil
}

// ToggleBoost sets or clears a listing's boosted flag. Turning a boost on is
// refused with ErrEntitlementExceeded when the owner is at capacity.
func (s *BoostService) ToggleBoost(ctx context.Context, listingID, ownerID int64, desired bool) (*provider.BoostResult, error) {
	var (
		limit int
		err   error
	)
	if desired {
		limit, err = s.Entitlement(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		err = s.boost(ctx, listingID, ownerID, limit)
	} else {
		// clearing never depends on the subscription store
		err = s.providers.ClearBoost(ctx, listingID, ownerID)
		if err == nil {
			limit = s.reportedLimit(ctx, ownerID)
		}
	}
	metrics.BoostToggles.WithLabelValues(strconv.FormatBool(desired), toggleResult(err)).Inc()
	if err != nil {
		if !errors.Is(err, xerrors.ErrEntitlementExceeded) {
			s.logger.Warn("boost toggle failed",
				zap.Int64("listing_id", listingID),
				zap.Int64("user_id", ownerID),
				zap.Bool("desired", desired),
				zap.Error(err),
			)
		}
		return nil, err
	}

	used, err := s.providers.CountBoostedByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count boosted listings: %w", err)
	}

	result := &provider.BoostResult{
		ListingID: listingID,
		Boosted:   desired,
		Used:      used,
		Limit:     limit,
	}

	s.logger.Info("listing boost updated",
		zap.Int64("listing_id", listingID),
		zap.Int64("user_id", ownerID),
		zap.Bool("boosted", desired),
		zap.Int("used", used),
		zap.Int("limit", limit),
	)

	s.notifier.NotifyBoostChanged(ownerID, wstypes.BoostChangedData(*result))

	return result, nil
}

// reportedLimit is a best-effort entitlement read for the toggle result.
func (s *BoostService) reportedLimit(ctx context.Context, ownerID int64) int {
	limit, err := s.Entitlement(ctx, ownerID)
	if err != nil {
		s.logger.Warn("could not read entitlement after unboost",
			zap.Int64("user_id", ownerID),
			zap.Error(err),
		)
		return 0
	}
	return limit
}

func (s *BoostService) boost(ctx context.Context, listingID, ownerID int64, limit int) error {
	ok, err := s.providers.BoostIfUnderLimit(ctx, listingID, ownerID, limit)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrEntitlementExceeded
	}
	return nil
}

func toggleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xerrors.ErrEntitlementExceeded):
		return "exceeded"
	case errors.Is(err, xerrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, xerrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// ListMyListings returns the listings owned by ownerID
func (s *BoostService) ListMyListings(ctx context.Context, ownerID int64) ([]provider.Provider, error) {
	providers, err := s.providers.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return providers, nil
}

// ListDirectory returns the public directory with featured listings first
func (s *BoostService) ListDirectory(ctx context.Context, filters *provider.ListFilters) (*provider.ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	providers, total, err := s.providers.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &provider.ListResponse{
		Providers:  providers,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}
