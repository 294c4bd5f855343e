package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePaymentRepo keeps payments and bonus balances in memory with the
// same claim-once semantics as the transactional Postgres repository.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*Payment
	bonuses  map[uuid.UUID]int
	listErr  error
	claimErr map[string]error
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: make(map[string]*Payment),
		bonuses:  make(map[uuid.UUID]int),
		claimErr: make(map[string]error),
	}
}

func (r *fakePaymentRepo) Insert(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.SessionID]; exists {
		return nil
	}
	cp := *p
	r.payments[p.SessionID] = &cp
	return nil
}

func (r *fakePaymentRepo) GetBySession(_ context.Context, sessionID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[sessionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) ListUndercredited(_ context.Context, creditsPerDollar int) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []Payment
	for _, p := range r.payments {
		if p.CreditsGranted < p.AmountCents*creditsPerDollar/100 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ClaimShortfall(_ context.Context, sessionID string, owed int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimErr[sessionID]; err != nil {
		return 0, err
	}
	p, ok := r.payments[sessionID]
	if !ok {
		return 0, ErrPaymentNotFound
	}
	delta := owed - p.CreditsGranted
	if delta <= 0 {
		return 0, nil
	}
	p.CreditsGranted += delta
	r.bonuses[p.UserID] += delta
	return delta, nil
}

func (r *fakePaymentRepo) bonus(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bonuses[userID]
}

var testPricing = Pricing{CreditsPerDollar: 100}

func TestReconcilePayment_GrantsShortfall(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	userID := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_1", UserID: userID, AmountCents: 500,
	}))

	result := rec.ReconcilePayment(context.Background(), "cs_1", nil)
	assert.True(t, result.Success)
	assert.Equal(t, 500, result.CreditsAdded)
	assert.Equal(t, 500, repo.bonus(userID))
}

func TestReconcilePayment_IdempotentOnRerun(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	userID := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_1", UserID: userID, AmountCents: 1000,
	}))

	first := rec.ReconcilePayment(context.Background(), "cs_1", nil)
	require.True(t, first.Success)
	assert.Equal(t, 1000, first.CreditsAdded)

	second := rec.ReconcilePayment(context.Background(), "cs_1", nil)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.CreditsAdded, "second run must grant nothing")
	assert.Equal(t, 1000, repo.bonus(userID), "total granted equals owed, not double")
}

func TestReconcilePayment_PartialGrantTopsUp(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	userID := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_1", UserID: userID, AmountCents: 1000,
	}))
	// Simulate a webhook that died after a partial grant.
	repo.payments["cs_1"].CreditsGranted = 300
	repo.bonuses[userID] = 300

	result := rec.ReconcilePayment(context.Background(), "cs_1", nil)
	assert.True(t, result.Success)
	assert.Equal(t, 700, result.CreditsAdded)
	assert.Equal(t, 1000, repo.bonus(userID))
}

func TestReconcilePayment_Override(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	userID := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_1", UserID: userID, AmountCents: 500,
	}))

	override := 750
	result := rec.ReconcilePayment(context.Background(), "cs_1", &override)
	assert.True(t, result.Success)
	assert.Equal(t, 750, result.CreditsAdded)
}

func TestReconcilePayment_UnknownSession(t *testing.T) {
	rec := NewReconciler(newFakePaymentRepo(), testPricing)

	result := rec.ReconcilePayment(context.Background(), "cs_missing", nil)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.CreditsAdded)
	assert.Contains(t, result.Error, "payment not found")
}

func TestReconcilePayment_EmptySession(t *testing.T) {
	rec := NewReconciler(newFakePaymentRepo(), testPricing)

	result := rec.ReconcilePayment(context.Background(), "", nil)
	assert.False(t, result.Success)
}

func TestReconcilePayment_MalformedAmount(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_bad", UserID: uuid.New(), AmountCents: 0,
	}))

	result := rec.ReconcilePayment(context.Background(), "cs_bad", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "credits owed")
}

func TestReconcilePayment_ConcurrentClaimsGrantOnce(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	userID := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Payment{
		SessionID: "cs_1", UserID: userID, AmountCents: 500,
	}))

	var wg sync.WaitGroup
	added := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := rec.ReconcilePayment(context.Background(), "cs_1", nil)
			assert.True(t, res.Success)
			added <- res.CreditsAdded
		}()
	}
	wg.Wait()
	close(added)

	total := 0
	for n := range added {
		total += n
	}
	assert.Equal(t, 500, total, "concurrent reconciles must grant the shortfall exactly once")
	assert.Equal(t, 500, repo.bonus(userID))
}

func TestReconcileAllPending_MixedBatch(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	ctx := context.Background()

	// Two already fully credited.
	for _, id := range []string{"cs_done_1", "cs_done_2"} {
		require.NoError(t, repo.Insert(ctx, &Payment{SessionID: id, UserID: uuid.New(), AmountCents: 200}))
		repo.payments[id].CreditsGranted = 200
	}
	// Two underpaid by 500 each.
	uA, uB := uuid.New(), uuid.New()
	require.NoError(t, repo.Insert(ctx, &Payment{SessionID: "cs_short_1", UserID: uA, AmountCents: 500}))
	require.NoError(t, repo.Insert(ctx, &Payment{SessionID: "cs_short_2", UserID: uB, AmountCents: 500}))
	// One that fails at claim time.
	require.NoError(t, repo.Insert(ctx, &Payment{SessionID: "cs_broken", UserID: uuid.New(), AmountCents: 300}))
	repo.claimErr["cs_broken"] = errors.New("deadlock detected")

	// The scan races live processing: include the credited pair by
	// pretending they were pending when the scan ran.
	repo.payments["cs_done_1"].CreditsGranted = 0
	repo.payments["cs_done_2"].CreditsGranted = 0
	pendingBefore, err := repo.ListUndercredited(ctx, testPricing.CreditsPerDollar)
	require.NoError(t, err)
	require.Len(t, pendingBefore, 5)
	repo.payments["cs_done_1"].CreditsGranted = 200
	repo.payments["cs_done_2"].CreditsGranted = 200

	// Bulk run over the full set.
	summary := &ReconcileSummary{}
	for _, p := range pendingBefore {
		res := rec.ReconcilePayment(ctx, p.SessionID, nil)
		summary.Processed++
		if res.Success {
			summary.Successful++
			summary.TotalCreditsAdded += res.CreditsAdded
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Successful, "already-credited payments are no-op successes")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1000, summary.TotalCreditsAdded)
	assert.Equal(t, 500, repo.bonus(uA))
	assert.Equal(t, 500, repo.bonus(uB))
}

func TestReconcileAllPending_ScanErrorAbortsWithError(t *testing.T) {
	repo := newFakePaymentRepo()
	repo.listErr = errors.New("connection refused")
	rec := NewReconciler(repo, testPricing)

	_, err := rec.ReconcileAllPending(context.Background())
	assert.Error(t, err)
}

func TestReconcileAllPending_FailureDoesNotAbortBatch(t *testing.T) {
	repo := newFakePaymentRepo()
	rec := NewReconciler(repo, testPricing)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &Payment{SessionID: "cs_ok", UserID: uuid.New(), AmountCents: 500}))
	require.NoError(t, repo.Insert(ctx, &Payment{SessionID: "cs_broken", UserID: uuid.New(), AmountCents: 500}))
	repo.claimErr["cs_broken"] = errors.New("deadlock detected")

	summary, err := rec.ReconcileAllPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 500, summary.TotalCreditsAdded)
}

func TestPricing_CreditsOwed(t *testing.T) {
	p := Pricing{CreditsPerDollar: 100}
	assert.Equal(t, 500, p.CreditsOwed(500))
	assert.Equal(t, 0, p.CreditsOwed(0))
	assert.Equal(t, 0, p.CreditsOwed(-100))

	half := Pricing{CreditsPerDollar: 50}
	assert.Equal(t, 250, half.CreditsOwed(500))
	// Fractions round down.
	assert.Equal(t, 0, half.CreditsOwed(1))
}
