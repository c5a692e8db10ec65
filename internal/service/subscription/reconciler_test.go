package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"vowlist-service/internal/domain/billing"
	"vowlist-service/internal/domain/subscription"
	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_FreshCustomerFoundByEmail(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana", Email: "ana@example.com"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_1", 100, map[string]string{"subscription_type": "boost", "max_boosted_listings": "3"}),
	}

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "cus_ana", sub.StripeCustomerID)
	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *sub.StripeSubscriptionID)
	require.NotNil(t, sub.StripePriceID)
	assert.Equal(t, "price_boost_3", *sub.StripePriceID)
	assert.Equal(t, subscription.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 3, sub.MaxBoostedListings)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(periodEnd, 0).UTC(), *sub.CurrentPeriodEnd)
	assert.Equal(t, 3, subscription.UsableEntitlement(sub, time.Now()))

	assert.Equal(t, 1, f.subs.count())
}

func TestReconcile_NoBillingCustomerWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.Reconcile(context.Background(), 1)
	assert.ErrorIs(t, err, xerrors.ErrNoBillingCustomer)
	assert.Equal(t, 0, f.subs.count())
	assert.Equal(t, 0, f.billing.listCalls)
}

func TestReconcile_CustomerLookupFailureDegradesToNotFound(t *testing.T) {
	f := newFixture(t)
	f.billing.customerErr = errors.New("stripe unavailable")

	_, err := f.rec.Reconcile(context.Background(), 1)
	assert.ErrorIs(t, err, xerrors.ErrNoBillingCustomer)
	assert.Equal(t, 0, f.subs.count())
}

func TestReconcile_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.Reconcile(context.Background(), 99)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestReconcile_UsesCustomerFromAnyExistingRow(t *testing.T) {
	f := newFixture(t)
	f.subs.put(subscription.Subscription{
		UserID:           1,
		StripeCustomerID: "cus_ana",
		Status:           subscription.SubscriptionStatusActive,
		SubscriptionType: subscription.ProductLineListing,
	})
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_1", 100, map[string]string{"max_boosted_listings": "2"}),
	}

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.ProductLineBoost, sub.SubscriptionType)
	assert.Equal(t, 2, sub.MaxBoostedListings)

	// the listing row is untouched, a boost row was added
	assert.Equal(t, 2, f.subs.count())
	listing, ok := f.subs.get(1, subscription.ProductLineListing)
	require.True(t, ok)
	assert.Nil(t, listing.StripeSubscriptionID)
}

func TestReconcile_ZeroSubscriptionsCancelsRow(t *testing.T) {
	f := newFixture(t)
	subID := "sub_old"
	f.subs.put(subscription.Subscription{
		UserID:               1,
		StripeCustomerID:     "cus_ana",
		StripeSubscriptionID: &subID,
		Status:               subscription.SubscriptionStatusActive,
		SubscriptionType:     subscription.ProductLineBoost,
		MaxBoostedListings:   5,
	})

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, subscription.SubscriptionStatusCanceled, sub.Status)
	assert.Nil(t, sub.StripeSubscriptionID)
	assert.Equal(t, 0, subscription.UsableEntitlement(sub, time.Now()))

	stored, ok := f.subs.get(1, subscription.ProductLineBoost)
	require.True(t, ok)
	assert.Equal(t, subscription.SubscriptionStatusCanceled, stored.Status)
	assert.Nil(t, stored.StripeSubscriptionID)
	assert.Equal(t, 1, f.subs.count())
}

func TestReconcile_OtherProductLineOnlyCancelsBoostRow(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_listing", 100, map[string]string{"subscription_type": "listing"}),
	}

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, subscription.SubscriptionStatusCanceled, sub.Status)
	assert.Nil(t, sub.StripeSubscriptionID)
	assert.Equal(t, 0, subscription.UsableEntitlement(sub, time.Now()))

	stored, ok := f.subs.get(1, subscription.ProductLineBoost)
	require.True(t, ok)
	assert.Nil(t, stored.StripeSubscriptionID)
}

func TestReconcile_AmbiguousPicksMostRecentAndCounts(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_old", 100, nil),
		activeSub("sub_new", 200, nil),
	}
	f.billing.sessions["cus_ana"] = []billing.CheckoutSession{
		{ID: "cs_old", SubscriptionID: "sub_old", Metadata: map[string]string{"max_boosted_listings": "1"}},
		{ID: "cs_new", SubscriptionID: "sub_new", Metadata: map[string]string{"max_boosted_listings": "4"}},
	}

	before := testutil.ToFloat64(metrics.ReconcileAmbiguous)

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)

	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_new", *sub.StripeSubscriptionID)
	assert.Equal(t, 4, sub.MaxBoostedListings)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ReconcileAmbiguous))
}

func TestReconcile_TaggedSubscriptionBeatsNewerUntagged(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_listing", 300, nil),
		activeSub("sub_boost", 100, map[string]string{"subscription_type": "boost", "max_boosted_listings": "2"}),
	}

	before := testutil.ToFloat64(metrics.ReconcileAmbiguous)

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "sub_boost", *sub.StripeSubscriptionID)
	assert.Equal(t, 2, sub.MaxBoostedListings)
	assert.Equal(t, before, testutil.ToFloat64(metrics.ReconcileAmbiguous))
}

func TestChooseSubscription(t *testing.T) {
	tests := []struct {
		name      string
		subs      []billing.Subscription
		want      string
		ambiguous bool
	}{
		{
			name: "single untagged is not ambiguous",
			subs: []billing.Subscription{{ID: "sub_a", Created: 1}},
			want: "sub_a",
		},
		{
			name:      "tie on created picks lowest id",
			subs:      []billing.Subscription{{ID: "sub_b", Created: 5}, {ID: "sub_a", Created: 5}},
			want:      "sub_a",
			ambiguous: true,
		},
		{
			name: "quantity metadata counts as tagged",
			subs: []billing.Subscription{
				{ID: "sub_new", Created: 9},
				{ID: "sub_qty", Created: 1, Metadata: map[string]string{"max_boosted_listings": "1"}},
			},
			want: "sub_qty",
		},
		{
			name: "type tag beats quantity tag",
			subs: []billing.Subscription{
				{ID: "sub_qty", Created: 9, Metadata: map[string]string{"max_boosted_listings": "1"}},
				{ID: "sub_typed", Created: 1, Metadata: map[string]string{"subscription_type": "boost"}},
			},
			want: "sub_typed",
		},
		{
			name: "other product lines are skipped when untagged candidates exist",
			subs: []billing.Subscription{
				{ID: "sub_listing", Created: 9, Metadata: map[string]string{"subscription_type": "listing"}},
				{ID: "sub_plain", Created: 1},
			},
			want: "sub_plain",
		},
		{
			name: "only other product lines yields nothing",
			subs: []billing.Subscription{
				{ID: "sub_listing", Created: 9, Metadata: map[string]string{"subscription_type": "listing"}},
				{ID: "sub_featured", Created: 3, Metadata: map[string]string{"subscription_type": "featured"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, ambiguous := chooseSubscription(tt.subs)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got.ID)
			assert.Equal(t, tt.ambiguous, ambiguous)
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := map[string]struct {
		meta map[string]string
		want int
		ok   bool
	}{
		"missing":    {meta: nil, ok: false},
		"valid":      {meta: map[string]string{"max_boosted_listings": "7"}, want: 7, ok: true},
		"padded":     {meta: map[string]string{"max_boosted_listings": " 2 "}, want: 2, ok: true},
		"zero":       {meta: map[string]string{"max_boosted_listings": "0"}, want: 0, ok: true},
		"negative":   {meta: map[string]string{"max_boosted_listings": "-2"}, ok: false},
		"not number": {meta: map[string]string{"max_boosted_listings": "lots"}, ok: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := parseQuantity(tt.meta)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcile_MissingQuantityIsZeroNotUnlimited(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_1", 100, map[string]string{"subscription_type": "boost", "max_boosted_listings": "-1"}),
	}

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.MaxBoostedListings)
	assert.Equal(t, 0, subscription.UsableEntitlement(sub, time.Now()))
}

func TestReconcile_SessionLookupFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{activeSub("sub_1", 100, nil)}
	f.billing.sessionErr = errors.New("timeout")

	sub, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.MaxBoostedListings)
	assert.Equal(t, subscription.SubscriptionStatusActive, sub.Status)
}

func TestReconcile_SubscriptionListingFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.subs.put(subscription.Subscription{
		UserID:             1,
		StripeCustomerID:   "cus_ana",
		Status:             subscription.SubscriptionStatusActive,
		SubscriptionType:   subscription.ProductLineBoost,
		MaxBoostedListings: 3,
	})
	f.billing.listErr = errors.New("stripe 500")

	_, err := f.rec.Reconcile(context.Background(), 1)
	require.Error(t, err)

	stored, _ := f.subs.get(1, subscription.ProductLineBoost)
	assert.Equal(t, subscription.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, 3, stored.MaxBoostedListings)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_1", 100, map[string]string{"subscription_type": "boost", "max_boosted_listings": "3"}),
	}
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, 1)
	require.NoError(t, err)
	first, _ := f.subs.get(1, subscription.ProductLineBoost)

	_, err = f.rec.Reconcile(ctx, 1)
	require.NoError(t, err)
	second, _ := f.subs.get(1, subscription.ProductLineBoost)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.subs.count())
}

func TestReconcile_FallsBackWithoutConflictTarget(t *testing.T) {
	f := newFixture(t)
	f.subs.noConflictTarget = true
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{
		activeSub("sub_1", 100, map[string]string{"max_boosted_listings": "2"}),
	}
	ctx := context.Background()

	sub, err := f.rec.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.MaxBoostedListings)

	// second pass goes through the update branch
	f.billing.subs["cus_ana"][0].Metadata["max_boosted_listings"] = "6"
	sub, err = f.rec.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, sub.MaxBoostedListings)
	assert.Equal(t, 1, f.subs.count())
}

func TestReconcile_WriteFailureIsTyped(t *testing.T) {
	f := newFixture(t)
	f.subs.put(subscription.Subscription{
		UserID:           1,
		StripeCustomerID: "cus_ana",
		Status:           subscription.SubscriptionStatusIncomplete,
		SubscriptionType: subscription.ProductLineBoost,
	})
	f.billing.subs["cus_ana"] = []billing.Subscription{activeSub("sub_1", 100, nil)}
	storeErr := errors.New("connection reset")
	f.subs.writeErr = storeErr

	_, err := f.rec.Reconcile(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrReconciliationWriteFailed)
	assert.ErrorIs(t, err, storeErr)

	var writeErr *xerrors.ReconciliationWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, int64(1), writeErr.UserID)
}

func TestReconcile_ProceedsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set(reconcileLockKey(1), "other-holder"))
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	f.billing.subs["cus_ana"] = []billing.Subscription{activeSub("sub_1", 100, nil)}

	_, err := f.rec.Reconcile(context.Background(), 1)
	require.NoError(t, err)

	holder, err := f.mr.Get(reconcileLockKey(1))
	require.NoError(t, err)
	assert.Equal(t, "other-holder", holder)
}

func TestReconcile_EntitlementFollowsBillingState(t *testing.T) {
	f := newFixture(t)
	f.billing.customers["ana@example.com"] = &billing.Customer{ID: "cus_ana"}
	meta := map[string]string{"subscription_type": "boost", "max_boosted_listings": "3"}
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(s *billing.Subscription)
		want   int
	}{
		{name: "active", mutate: func(s *billing.Subscription) {}, want: 3},
		{name: "cancel at period end", mutate: func(s *billing.Subscription) { s.CancelAtPeriodEnd = true }, want: 0},
		{name: "past due", mutate: func(s *billing.Subscription) { s.Status = "past_due" }, want: 0},
		{name: "period over", mutate: func(s *billing.Subscription) { s.CurrentPeriodEnd = time.Now().Add(-time.Hour).Unix() }, want: 0},
		{name: "unknown status", mutate: func(s *billing.Subscription) { s.Status = "paused" }, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeSub("sub_1", 100, meta)
			tt.mutate(&s)
			f.billing.subs["cus_ana"] = []billing.Subscription{s}

			sub, err := f.rec.Reconcile(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, subscription.UsableEntitlement(sub, time.Now()))
			assert.True(t, sub.Status.Valid())
		})
	}
}
