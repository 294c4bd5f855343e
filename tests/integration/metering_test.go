//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplist-app/snaplist/internal/billing"
	"github.com/snaplist-app/snaplist/internal/config"
	"github.com/snaplist-app/snaplist/internal/quota"
	"github.com/snaplist-app/snaplist/internal/ratelimit"
)

func TestCounterStore_AtomicCeiling(t *testing.T) {
	pool := SetupPool(t)
	store := ratelimit.NewPostgresStore(pool)
	ctx := context.Background()

	windowStart := time.Now().UTC().Truncate(time.Minute)
	const limit = 10
	const attempts = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.IncrementWithCeiling(ctx, "ip:203.0.113.1", "generate", windowStart, 1, limit)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, applied, "exactly limit increments must be applied")

	count, err := store.Count(ctx, "ip:203.0.113.1", "generate", windowStart)
	require.NoError(t, err)
	assert.Equal(t, limit, count, "denied attempts must not mutate the counter")
}

func TestCounterStore_PruneBefore(t *testing.T) {
	pool := SetupPool(t)
	store := ratelimit.NewPostgresStore(pool)
	ctx := context.Background()

	oldWindow := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Minute)
	freshWindow := time.Now().UTC().Truncate(time.Minute)

	_, _, err := store.IncrementWithCeiling(ctx, "ip:198.51.100.1", "generate", oldWindow, 1, 5)
	require.NoError(t, err)
	_, _, err = store.IncrementWithCeiling(ctx, "ip:198.51.100.1", "generate", freshWindow, 1, 5)
	require.NoError(t, err)

	deleted, err := store.PruneBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := store.Count(ctx, "ip:198.51.100.1", "generate", freshWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQuotaRepository_DecrementLifecycle(t *testing.T) {
	pool := SetupPool(t)
	repo := quota.NewRepository(pool)
	svc := quota.NewService(repo, config.LimitsConfig{DailyAllowance: 3, ProDailyAllowance: 100})
	ctx := context.Background()

	userID := CreateUser(t, pool, "quota@test.com")

	// Fresh user: the lazy reset fills the daily pool on first use.
	for i := 0; i < 3; i++ {
		ok, err := svc.Decrement(ctx, userID, 1)
		require.NoError(t, err)
		assert.True(t, ok, "decrement %d should succeed", i+1)
	}

	ok, err := svc.Decrement(ctx, userID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "daily pool exhausted with no bonus")

	// Bonus credits extend the allowance.
	require.NoError(t, svc.Grant(ctx, userID, 2))

	ok, err = svc.Decrement(ctx, userID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	snap, err := svc.GetQuota(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.RemainingToday)
	assert.Equal(t, 1, snap.BonusRemaining)
}

func TestQuotaRepository_ConcurrentLastUnit(t *testing.T) {
	pool := SetupPool(t)
	repo := quota.NewRepository(pool)
	svc := quota.NewService(repo, config.LimitsConfig{DailyAllowance: 1, ProDailyAllowance: 100})
	ctx := context.Background()

	userID := CreateUser(t, pool, "race@test.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Decrement(ctx, userID, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "only one caller may take the last unit")
}

func TestBilling_ReconcileIdempotent(t *testing.T) {
	pool := SetupPool(t)
	payments := billing.NewRepository(pool)
	pricing := billing.Pricing{CreditsPerDollar: 100}
	reconciler := billing.NewReconciler(payments, pricing)
	quotaRepo := quota.NewRepository(pool)
	ctx := context.Background()

	userID := CreateUser(t, pool, "buyer@test.com")

	require.NoError(t, payments.Insert(ctx, &billing.Payment{
		SessionID:   "cs_test_123",
		UserID:      userID,
		AmountCents: 500,
	}))

	result := reconciler.ReconcilePayment(ctx, "cs_test_123", nil)
	require.True(t, result.Success, "first reconcile: %s", result.Error)
	assert.Equal(t, 500, result.CreditsAdded)

	// Replaying grants nothing extra.
	result = reconciler.ReconcilePayment(ctx, "cs_test_123", nil)
	require.True(t, result.Success)
	assert.Equal(t, 0, result.CreditsAdded)

	q, err := quotaRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 500, q.BonusRemaining)
}

func TestBilling_ConcurrentReconcileGrantsOnce(t *testing.T) {
	pool := SetupPool(t)
	payments := billing.NewRepository(pool)
	reconciler := billing.NewReconciler(payments, billing.Pricing{CreditsPerDollar: 100})
	quotaRepo := quota.NewRepository(pool)
	ctx := context.Background()

	userID := CreateUser(t, pool, "concurrent@test.com")

	require.NoError(t, payments.Insert(ctx, &billing.Payment{
		SessionID:   "cs_test_race",
		UserID:      userID,
		AmountCents: 1000,
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	totalAdded := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := reconciler.ReconcilePayment(ctx, "cs_test_race", nil)
			assert.True(t, res.Success)
			mu.Lock()
			totalAdded += res.CreditsAdded
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, totalAdded, "row lock must serialize the grant")

	q, err := quotaRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1000, q.BonusRemaining)
}
