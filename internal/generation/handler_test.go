package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplist-app/snaplist/internal/auth"
	"github.com/snaplist-app/snaplist/internal/config"
	"github.com/snaplist-app/snaplist/internal/governance"
	"github.com/snaplist-app/snaplist/internal/quota"
	"github.com/snaplist-app/snaplist/internal/ratelimit"
)

type memCounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counts: make(map[string]int)}
}

func (s *memCounterStore) key(identifier, action string, windowStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", identifier, action, windowStart.UnixNano())
}

func (s *memCounterStore) IncrementWithCeiling(_ context.Context, identifier, action string, windowStart time.Time, _, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(identifier, action, windowStart)
	if s.counts[k] >= limit {
		return 0, false, nil
	}
	s.counts[k]++
	return s.counts[k], true, nil
}

func (s *memCounterStore) Count(_ context.Context, identifier, action string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[s.key(identifier, action, windowStart)], nil
}

type memQuotaRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*quota.UserQuota
}

func newMemQuotaRepo() *memQuotaRepo {
	return &memQuotaRepo{rows: make(map[uuid.UUID]*quota.UserQuota)}
}

func (r *memQuotaRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*quota.UserQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[userID]
	if !ok {
		q = &quota.UserQuota{UserID: userID, LastReset: time.Unix(0, 0).UTC()}
		r.rows[userID] = q
	}
	cp := *q
	return &cp, nil
}

func (r *memQuotaRepo) Decrement(_ context.Context, userID uuid.UUID, amount int, today time.Time, baseAllowance, proAllowance int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[userID]
	if !ok {
		return false, nil
	}

	allowance := baseAllowance
	if q.IsPro {
		allowance = proAllowance
	}

	daily := q.RemainingToday
	if q.LastReset.Before(today) {
		daily = allowance
	}
	if daily+q.BonusRemaining < amount {
		return false, nil
	}

	fromDaily := min(daily, amount)
	q.RemainingToday = daily - fromDaily
	q.BonusRemaining -= amount - fromDaily
	if q.LastReset.Before(today) {
		q.LastReset = today
	}
	return true, nil
}

func (r *memQuotaRepo) Refund(_ context.Context, userID uuid.UUID, amount int, baseAllowance, proAllowance int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[userID]
	if !ok {
		return nil
	}
	allowance := baseAllowance
	if q.IsPro {
		allowance = proAllowance
	}
	total := q.RemainingToday + amount
	if total > allowance {
		q.BonusRemaining += total - allowance
		total = allowance
	}
	q.RemainingToday = total
	return nil
}

func (r *memQuotaRepo) AddBonus(_ context.Context, userID uuid.UUID, credits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[userID]
	if !ok {
		q = &quota.UserQuota{UserID: userID, LastReset: time.Unix(0, 0).UTC()}
		r.rows[userID] = q
	}
	q.BonusRemaining += credits
	return nil
}

func (r *memQuotaRepo) SetPlan(_ context.Context, userID uuid.UUID, isPro bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[userID]
	if !ok {
		q = &quota.UserQuota{UserID: userID, LastReset: time.Unix(0, 0).UTC()}
		r.rows[userID] = q
	}
	q.IsPro = isPro
	return nil
}

func newTestHandler(t *testing.T, limits config.LimitsConfig) *Handler {
	t.Helper()

	limiter := ratelimit.NewLimiter(newMemCounterStore())
	quotaSvc := quota.NewService(newMemQuotaRepo(), limits)
	anon := quota.NewAnonymousLimiter(limiter, limits.AnonymousDailyLimit)
	gov := governance.NewService(limiter, anon, quotaSvc, limits)

	return NewHandler(gov, NewStubGenerator(), nil, nil)
}

func generateRequest(body string, remoteAddr string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/generate", bytes.NewBufferString(body))
	req.RemoteAddr = remoteAddr
	return req
}

func withClaims(req *http.Request, userID uuid.UUID) *http.Request {
	claims := &auth.AccessClaims{UserID: userID.String()}
	return req.WithContext(context.WithValue(req.Context(), auth.UserClaimsKey, claims))
}

var testLimits = config.LimitsConfig{
	DailyAllowance:        2,
	ProDailyAllowance:     100,
	AnonymousDailyLimit:   2,
	GenerateLimit:         100,
	GenerateWindowMinutes: 1,
}

func TestGenerate_AnonymousAllowed(t *testing.T) {
	h := newTestHandler(t, testLimits)

	rec := httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{"title":"Vintage Chair"}`, "203.0.113.9:1234"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data GenerateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Copy)
	assert.Equal(t, "Vintage Chair", resp.Data.Copy.Title)
	require.NotNil(t, resp.Data.Anonymous)
	assert.Equal(t, 1, resp.Data.Anonymous.RemainingToday)
	assert.Nil(t, resp.Data.Quota)
}

func TestGenerate_AnonymousDailyLimitExceeded(t *testing.T) {
	h := newTestHandler(t, testLimits)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Generate(rec, generateRequest(`{"title":"Vintage Chair"}`, "203.0.113.9:1234"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{"title":"Vintage Chair"}`, "203.0.113.9:1234"))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var appErr struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
	assert.Equal(t, "ANONYMOUS_DAILY_LIMIT_EXCEEDED", appErr.Code)
}

func TestGenerate_AuthenticatedConsumesQuota(t *testing.T) {
	h := newTestHandler(t, testLimits)
	userID := uuid.New()

	rec := httptest.NewRecorder()
	h.Generate(rec, withClaims(generateRequest(`{"title":"Road Bike"}`, "198.51.100.4:9"), userID))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data GenerateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Quota)
	assert.Equal(t, 1, resp.Data.Quota.RemainingToday)
	assert.Nil(t, resp.Data.Anonymous)
}

func TestGenerate_QuotaExceeded(t *testing.T) {
	h := newTestHandler(t, testLimits)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Generate(rec, withClaims(generateRequest(`{"title":"Road Bike"}`, "198.51.100.4:9"), userID))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.Generate(rec, withClaims(generateRequest(`{"title":"Road Bike"}`, "198.51.100.4:9"), userID))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var appErr struct {
		Code    string `json:"code"`
		Details struct {
			Quota *quota.Snapshot `json:"quota"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
	assert.Equal(t, "QUOTA_EXCEEDED", appErr.Code)
	require.NotNil(t, appErr.Details.Quota)
	assert.Equal(t, 0, appErr.Details.Quota.RemainingToday)
}

func TestGenerate_RateLimited(t *testing.T) {
	limits := testLimits
	limits.GenerateLimit = 1
	limits.AnonymousDailyLimit = 100
	h := newTestHandler(t, limits)

	rec := httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{"title":"Lamp"}`, "192.0.2.8:1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{"title":"Lamp"}`, "192.0.2.8:1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var appErr struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
}

func TestGenerate_InvalidBody(t *testing.T) {
	h := newTestHandler(t, testLimits)

	rec := httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{not json`, "192.0.2.8:1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Generate(rec, generateRequest(`{"title":""}`, "192.0.2.8:1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
