package boost

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"vowlist-service/internal/domain/provider"
	"vowlist-service/internal/domain/subscription"
	wstypes "vowlist-service/internal/domain/websocket"
	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memProviders serializes boosts with a mutex standing in for the advisory lock.
type memProviders struct {
	mu       sync.Mutex
	listings map[int64]*provider.Provider
}

func newMemProviders(listings ...provider.Provider) *memProviders {
	m := &memProviders{listings: make(map[int64]*provider.Provider)}
	for i := range listings {
		l := listings[i]
		m.listings[l.ID] = &l
	}
	return m
}

func (m *memProviders) FindByID(ctx context.Context, id int64) (*provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memProviders) ListByOwner(ctx context.Context, ownerID int64) ([]provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []provider.Provider
	for _, l := range m.listings {
		if l.IsOwnedBy(ownerID) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProviders) List(ctx context.Context, filters *provider.ListFilters) ([]provider.Provider, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []provider.Provider
	for _, l := range m.listings {
		all = append(all, *l)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].IsBoosted != all[j].IsBoosted {
			return all[i].IsBoosted
		}
		return all[i].Name < all[j].Name
	})
	start := (filters.Page - 1) * filters.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + filters.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memProviders) CountBoostedByOwner(ctx context.Context, ownerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(ownerID), nil
}

func (m *memProviders) countLocked(ownerID int64) int {
	n := 0
	for _, l := range m.listings {
		if l.IsOwnedBy(ownerID) && l.IsBoosted {
			n++
		}
	}
	return n
}

func (m *memProviders) BoostIfUnderLimit(ctx context.Context, listingID, ownerID int64, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return false, xerrors.ErrNotFound
	}
	if !l.IsOwnedBy(ownerID) {
		return false, xerrors.ErrForbidden
	}
	if l.IsBoosted {
		return true, nil
	}
	if m.countLocked(ownerID) >= limit {
		return false, nil
	}
	now := time.Now()
	l.IsBoosted = true
	l.BoostedAt = &now
	return true, nil
}

func (m *memProviders) ClearBoost(ctx context.Context, listingID, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !l.IsOwnedBy(ownerID) {
		return xerrors.ErrForbidden
	}
	l.IsBoosted = false
	l.BoostedAt = nil
	return nil
}

type stubSubscriptions struct {
	subscription.Repository
	sub *subscription.Subscription
	err error
}

func (s *stubSubscriptions) FindByUserAndType(ctx context.Context, userID int64, subType subscription.ProductLine) (*subscription.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sub == nil || s.sub.UserID != userID || s.sub.SubscriptionType != subType {
		return nil, xerrors.ErrNotFound
	}
	return s.sub, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []wstypes.BoostChangedData
}

func (n *recordingNotifier) NotifyBoostChanged(identityID int64, data wstypes.BoostChangedData) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, data)
}

func ownedBy(id int64) *int64 { return &id }

const ownerID int64 = 7

func listings(n int) []provider.Provider {
	out := make([]provider.Provider, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, provider.Provider{
			ID:     int64(i),
			UserID: ownedBy(ownerID),
			Name:   string(rune('a' + i - 1)),
		})
	}
	return out
}

func boostSub(quantity int, status subscription.SubscriptionStatus, cancelAtEnd bool) *subscription.Subscription {
	end := time.Now().Add(72 * time.Hour)
	return &subscription.Subscription{
		UserID:             ownerID,
		SubscriptionType:   subscription.ProductLineBoost,
		Status:             status,
		CurrentPeriodEnd:   &end,
		CancelAtPeriodEnd:  cancelAtEnd,
		MaxBoostedListings: quantity,
	}
}

func newService(providers *memProviders, sub *subscription.Subscription) (*BoostService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return NewBoostService(providers, &stubSubscriptions{sub: sub}, notifier, zap.NewNop()), notifier
}

func TestToggleBoost_WithinEntitlement(t *testing.T) {
	providers := newMemProviders(listings(2)...)
	svc, notifier := newService(providers, boostSub(2, subscription.SubscriptionStatusActive, false))

	result, err := svc.ToggleBoost(context.Background(), 1, ownerID, true)
	require.NoError(t, err)
	assert.Equal(t, provider.BoostResult{ListingID: 1, Boosted: true, Used: 1, Limit: 2}, *result)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, int64(1), notifier.events[0].ListingID)
}

func TestToggleBoost_AtCapacity(t *testing.T) {
	providers := newMemProviders(listings(3)...)
	svc, notifier := newService(providers, boostSub(2, subscription.SubscriptionStatusActive, false))
	ctx := context.Background()

	_, err := svc.ToggleBoost(ctx, 1, ownerID, true)
	require.NoError(t, err)
	_, err = svc.ToggleBoost(ctx, 2, ownerID, true)
	require.NoError(t, err)

	_, err = svc.ToggleBoost(ctx, 3, ownerID, true)
	assert.ErrorIs(t, err, xerrors.ErrEntitlementExceeded)

	l, _ := providers.FindByID(ctx, 3)
	assert.False(t, l.IsBoosted)
	assert.Len(t, notifier.events, 2)
}

func TestToggleBoost_AlreadyBoostedIsNoop(t *testing.T) {
	ls := listings(1)
	ls[0].IsBoosted = true
	providers := newMemProviders(ls...)
	svc, _ := newService(providers, nil)

	result, err := svc.ToggleBoost(context.Background(), 1, ownerID, true)
	require.NoError(t, err)
	assert.True(t, result.Boosted)
	assert.Equal(t, 0, result.Limit)
	assert.Equal(t, 1, result.Used)
}

func TestToggleBoost_NoEntitlement(t *testing.T) {
	cases := map[string]*subscription.Subscription{
		"no subscription":      nil,
		"canceled":             boostSub(3, subscription.SubscriptionStatusCanceled, false),
		"past due":             boostSub(3, subscription.SubscriptionStatusPastDue, false),
		"cancel at period end": boostSub(3, subscription.SubscriptionStatusActive, true),
	}

	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			providers := newMemProviders(listings(1)...)
			svc, _ := newService(providers, sub)

			_, err := svc.ToggleBoost(context.Background(), 1, ownerID, true)
			assert.ErrorIs(t, err, xerrors.ErrEntitlementExceeded)
		})
	}
}

func TestToggleBoost_ExpiredPeriod(t *testing.T) {
	sub := boostSub(3, subscription.SubscriptionStatusActive, false)
	past := time.Now().Add(-time.Hour)
	sub.CurrentPeriodEnd = &past

	svc, _ := newService(newMemProviders(listings(1)...), sub)
	_, err := svc.ToggleBoost(context.Background(), 1, ownerID, true)
	assert.ErrorIs(t, err, xerrors.ErrEntitlementExceeded)
}

func TestToggleBoost_Unboost(t *testing.T) {
	ls := listings(2)
	ls[0].IsBoosted = true
	ls[1].IsBoosted = true
	providers := newMemProviders(ls...)
	// unboost is always allowed, even with no entitlement
	svc, _ := newService(providers, nil)

	result, err := svc.ToggleBoost(context.Background(), 2, ownerID, false)
	require.NoError(t, err)
	assert.False(t, result.Boosted)
	assert.Equal(t, 1, result.Used)
}

func TestToggleBoost_UnboostWhenSubscriptionStoreFails(t *testing.T) {
	ls := listings(1)
	ls[0].IsBoosted = true
	providers := newMemProviders(ls...)
	subs := &stubSubscriptions{err: errors.New("connection refused")}
	svc := NewBoostService(providers, subs, &recordingNotifier{}, zap.NewNop())
	ctx := context.Background()

	result, err := svc.ToggleBoost(ctx, 1, ownerID, false)
	require.NoError(t, err)
	assert.False(t, result.Boosted)
	assert.Equal(t, 0, result.Used)
	assert.Equal(t, 0, result.Limit)

	l, _ := providers.FindByID(ctx, 1)
	assert.False(t, l.IsBoosted)

	_, err = svc.ToggleBoost(ctx, 1, ownerID, true)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrEntitlementExceeded)
}

func TestToggleBoost_OwnershipAndMissing(t *testing.T) {
	providers := newMemProviders(listings(1)...)
	svc, notifier := newService(providers, boostSub(1, subscription.SubscriptionStatusActive, false))
	ctx := context.Background()

	_, err := svc.ToggleBoost(ctx, 1, 99, true)
	assert.ErrorIs(t, err, xerrors.ErrForbidden)

	_, err = svc.ToggleBoost(ctx, 1, 99, false)
	assert.ErrorIs(t, err, xerrors.ErrForbidden)

	_, err = svc.ToggleBoost(ctx, 42, ownerID, true)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	assert.Empty(t, notifier.events)
}

func TestToggleBoost_ConcurrentRequestsRespectCap(t *testing.T) {
	providers := newMemProviders(listings(6)...)
	svc, _ := newService(providers, boostSub(2, subscription.SubscriptionStatusActive, false))

	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = svc.ToggleBoost(context.Background(), id, ownerID, true)
		}(int64(i))
	}
	wg.Wait()

	used, err := providers.CountBoostedByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
}

func TestListDirectory_Pagination(t *testing.T) {
	ls := listings(5)
	ls[3].IsBoosted = true
	svc, _ := newService(newMemProviders(ls...), nil)

	resp, err := svc.ListDirectory(context.Background(), &provider.ListFilters{PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(5), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 3, resp.TotalPages)
	require.Len(t, resp.Providers, 2)
	assert.Equal(t, int64(4), resp.Providers[0].ID)
}

func TestListMyListings(t *testing.T) {
	ls := listings(2)
	ls = append(ls, provider.Provider{ID: 3, UserID: ownedBy(99), Name: "other"})
	svc, _ := newService(newMemProviders(ls...), nil)

	mine, err := svc.ListMyListings(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
