package subscription

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"vowlist-service/internal/domain/billing"
	"vowlist-service/internal/domain/subscription"
	"vowlist-service/internal/domain/user"
	wstypes "vowlist-service/internal/domain/websocket"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/lock"
	"vowlist-service/internal/pkg/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type subKey struct {
	userID  int64
	subType subscription.ProductLine
}

// memSubscriptions enforces one row per (user, type) like the real table.
type memSubscriptions struct {
	mu     sync.Mutex
	rows   map[subKey]subscription.Subscription
	nextID int64

	noConflictTarget bool
	writeErr         error
	writes           int
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{rows: map[subKey]subscription.Subscription{}}
}

func (m *memSubscriptions) put(sub subscription.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = m.nextID
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	m.rows[subKey{sub.UserID, sub.SubscriptionType}] = sub
}

func (m *memSubscriptions) get(userID int64, subType subscription.ProductLine) (subscription.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[subKey{userID, subType}]
	return row, ok
}

func (m *memSubscriptions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memSubscriptions) FindByUserAndType(ctx context.Context, userID int64, subType subscription.ProductLine) (*subscription.Subscription, error) {
	row, ok := m.get(userID, subType)
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &row, nil
}

func (m *memSubscriptions) FindAnyByUser(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *subscription.Subscription
	for k, row := range m.rows {
		if k.userID != userID || row.StripeCustomerID == "" {
			continue
		}
		if best == nil || row.UpdatedAt.After(best.UpdatedAt) {
			r := row
			best = &r
		}
	}
	if best == nil {
		return nil, xerrors.ErrNotFound
	}
	return best, nil
}

func (m *memSubscriptions) FindByCustomerID(ctx context.Context, customerID string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.StripeCustomerID == customerID {
			r := row
			return &r, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (m *memSubscriptions) InsertPlaceholder(ctx context.Context, sub *subscription.Subscription) error {
	if m.noConflictTarget {
		return xerrors.ErrNoConflictTarget
	}
	if _, ok := m.get(sub.UserID, sub.SubscriptionType); ok {
		return nil
	}
	m.put(*sub)
	return nil
}

func (m *memSubscriptions) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	if m.noConflictTarget {
		return xerrors.ErrNoConflictTarget
	}
	return m.write(sub, true)
}

func (m *memSubscriptions) Insert(ctx context.Context, sub *subscription.Subscription) error {
	if _, ok := m.get(sub.UserID, sub.SubscriptionType); ok {
		return xerrors.ErrDuplicateEntry
	}
	return m.write(sub, true)
}

func (m *memSubscriptions) Update(ctx context.Context, sub *subscription.Subscription) error {
	if _, ok := m.get(sub.UserID, sub.SubscriptionType); !ok {
		return xerrors.ErrNotFound
	}
	return m.write(sub, false)
}

func (m *memSubscriptions) write(sub *subscription.Subscription, allowInsert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++

	key := subKey{sub.UserID, sub.SubscriptionType}
	existing, ok := m.rows[key]
	if !ok {
		if !allowInsert {
			return xerrors.ErrNotFound
		}
		m.nextID++
		row := *sub
		row.ID = m.nextID
		row.CreatedAt = time.Now()
		row.UpdatedAt = row.CreatedAt
		m.rows[key] = row
		sub.ID, sub.CreatedAt, sub.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
		return nil
	}

	row := *sub
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = existing.UpdatedAt
	if !sameBillingState(existing, row) {
		row.UpdatedAt = time.Now()
	}
	m.rows[key] = row
	sub.ID, sub.CreatedAt, sub.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func sameBillingState(a, b subscription.Subscription) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

type memUsers struct {
	users map[int64]*user.User
}

func (m *memUsers) FindByID(ctx context.Context, id int64) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return u, nil
}

type fakeBilling struct {
	mu sync.Mutex

	customers   map[string]*billing.Customer
	customerErr error
	subs        map[string][]billing.Subscription
	listErr     error
	sessions    map[string][]billing.CheckoutSession
	sessionErr  error
	checkoutErr error

	checkouts  []billing.CheckoutParams
	cancels    map[string]bool
	listCalls  int
	cancelHook func(subID string, cancel bool)
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		customers: map[string]*billing.Customer{},
		subs:      map[string][]billing.Subscription{},
		sessions:  map[string][]billing.CheckoutSession{},
		cancels:   map[string]bool{},
	}
}

func (f *fakeBilling) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	return f.customers[email], nil
}

func (f *fakeBilling) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs[customerID], nil
}

func (f *fakeBilling) ListCheckoutSessions(ctx context.Context, customerID string) ([]billing.CheckoutSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.sessions[customerID], nil
}

func (f *fakeBilling) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkouts = append(f.checkouts, p)
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func (f *fakeBilling) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	f.cancels[subscriptionID] = cancel
	if f.cancelHook != nil {
		f.cancelHook(subscriptionID, cancel)
	}
	return nil
}

type fakeCounter struct {
	boosted map[int64]int
}

func (f *fakeCounter) CountBoostedByOwner(ctx context.Context, ownerID int64) (int, error) {
	return f.boosted[ownerID], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events map[int64][]wstypes.SubscriptionUpdatedData
}

func (f *fakeNotifier) NotifySubscriptionUpdated(identityID int64, data wstypes.SubscriptionUpdatedData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = map[int64][]wstypes.SubscriptionUpdatedData{}
	}
	f.events[identityID] = append(f.events[identityID], data)
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) SendCancellationScheduled(ctx context.Context, to, fullName string, periodEnd *time.Time) {
	f.sent = append(f.sent, to)
}

type fixture struct {
	mr       *miniredis.Miniredis
	subs     *memSubscriptions
	users    *memUsers
	billing  *fakeBilling
	counter  *fakeCounter
	notifier *fakeNotifier
	mailer   *fakeMailer
	locker   *lock.Locker
	rec      *Reconciler
	svc      *SubscriptionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		mr:   mr,
		subs: newMemSubscriptions(),
		users: &memUsers{users: map[int64]*user.User{
			1: {ID: 1, Email: "ana@example.com", FullName: "Ana"},
			2: {ID: 2, Email: "ben@example.com", FullName: "Ben"},
		}},
		billing:  newFakeBilling(),
		counter:  &fakeCounter{boosted: map[int64]int{}},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		locker:   lock.NewLocker(client, 5*time.Second, 20*time.Millisecond),
	}
	logger := zap.NewNop()

	f.rec = NewReconciler(f.subs, f.users, f.billing, f.locker, logger)
	f.svc = NewSubscriptionService(
		f.rec, f.subs, f.users, f.counter, f.billing,
		session.NewRateLimiter(client), f.locker,
		f.notifier, f.mailer,
		Config{
			Plans:      map[string]int{"price_boost_3": 3, "price_boost_10": 10},
			SuccessURL: "https://vowlist.test/billing/success",
			CancelURL:  "https://vowlist.test/billing/cancel",
		},
		logger,
	)
	return f
}

var (
	periodStart = time.Now().Add(-24 * time.Hour).Unix()
	periodEnd   = time.Now().Add(30 * 24 * time.Hour).Unix()
)

func activeSub(id string, created int64, meta map[string]string) billing.Subscription {
	return billing.Subscription{
		ID:                 id,
		CustomerID:         "cus_ana",
		Status:             "active",
		PriceID:            "price_boost_3",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		Created:            created,
		Metadata:           meta,
	}
}
