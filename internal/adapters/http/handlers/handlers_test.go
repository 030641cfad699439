package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
)

type stubQuota struct {
	recordErr  error
	summary    domain.UsageSummary
	summaryErr error

	subject string
	plan    domain.Plan
}

func (s *stubQuota) RecordUsage(_ context.Context, subjectID string, plan domain.Plan) error {
	s.subject, s.plan = subjectID, plan
	return s.recordErr
}

func (s *stubQuota) UsageSummary(_ context.Context, subjectID string, plan domain.Plan) (domain.UsageSummary, error) {
	s.subject, s.plan = subjectID, plan
	return s.summary, s.summaryErr
}

// stubLimiter libera tudo, exceto os escopos marcados em deny.
type stubLimiter struct {
	mu       sync.Mutex
	requests []domain.RateLimitRequest
	deny     map[string]bool
}

func (s *stubLimiter) Enforce(_ context.Context, req domain.RateLimitRequest) domain.RateLimitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.deny[req.Scope] {
		return domain.RateLimitResult{Success: false, ResetAt: time.Now().Add(req.Window)}
	}
	return domain.RateLimitResult{Success: true, Remaining: req.Limit - 1}
}

func (s *stubLimiter) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		keys = append(keys, req.Key)
	}
	return keys
}

type stubResets struct {
	issued   []string
	issueErr error
	valid    map[string]bool
}

func (s *stubResets) Issue(_ context.Context, email string) (string, error) {
	s.issued = append(s.issued, email)
	return "token", s.issueErr
}

func (s *stubResets) Consume(_ context.Context, token, _ string) (bool, error) {
	return s.valid[token], nil
}

var testRules = ResetRules{
	ForgotIP:     domain.RateLimitRule{Scope: domain.ScopePasswordResetIP, Limit: 20, Window: time.Hour},
	ResetIP:      domain.RateLimitRule{Scope: domain.ScopeResetAttemptIP, Limit: 30, Window: time.Hour},
	Account:      domain.RateLimitRule{Scope: domain.ScopePasswordResetAccount, Limit: 5, Window: time.Hour},
	InvalidToken: domain.RateLimitRule{Scope: domain.ScopeInvalidResetToken, Limit: 5, Window: time.Hour},
}

func newRequest(method, path, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestUsageHandler_Chat(t *testing.T) {
	t.Parallel()

	t.Run("missing subject is unauthorized", func(t *testing.T) {
		t.Parallel()

		quota := &stubQuota{}
		rec := httptest.NewRecorder()
		NewUsageHandler(quota, logrus.New()).Chat(rec, newRequest(http.MethodPost, "/api/chat", `{}`, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, quota.subject)
	})

	t.Run("records usage with plan", func(t *testing.T) {
		t.Parallel()

		quota := &stubQuota{}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{
			"X-User-ID":   "user-1",
			"X-User-Plan": "PRO",
		})
		NewUsageHandler(quota, logrus.New()).Chat(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", quota.subject)
		assert.Equal(t, domain.PlanPro, quota.plan)
		assert.JSONEq(t, `{"reply":"Received: hi"}`, rec.Body.String())
	})

	t.Run("quota exceeded is 429", func(t *testing.T) {
		t.Parallel()

		quota := &stubQuota{recordErr: &domain.QuotaExceededError{Plan: domain.PlanFree, Limit: 50, Count: 51}}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/chat", "", map[string]string{"X-User-ID": "user-1"})
		NewUsageHandler(quota, logrus.New()).Chat(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"error":"Daily usage limit reached"}`, rec.Body.String())
	})

	t.Run("other errors are logged and the request proceeds", func(t *testing.T) {
		t.Parallel()

		logger, hook := test.NewNullLogger()
		quota := &stubQuota{recordErr: errors.New("boom")}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/chat", "", map[string]string{"X-User-ID": "user-1"})
		NewUsageHandler(quota, logger).Chat(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		t.Parallel()

		quota := &stubQuota{}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/chat", "{", map[string]string{"X-User-ID": "user-1"})
		NewUsageHandler(quota, logrus.New()).Chat(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, quota.subject)
	})
}

func TestUsageHandler_Usage(t *testing.T) {
	t.Parallel()

	quota := &stubQuota{summary: domain.UsageSummary{Plan: domain.PlanFree, UsedToday: 3, DailyLimit: 50}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/usage", "", map[string]string{"X-User-ID": "user-9"})
	NewUsageHandler(quota, logrus.New()).Usage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.JSONEq(t, `{"plan":"free","usedToday":3,"dailyLimit":50}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewUsageHandler(quota, logrus.New()).Usage(rec, newRequest(http.MethodGet, "/api/usage", "", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageHandler_UsageUnavailable(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	quota := &stubQuota{summaryErr: errors.New("store down")}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/usage", "", map[string]string{"X-User-ID": "user-9"})
	NewUsageHandler(quota, logger).Usage(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Usage data unavailable"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestPasswordResetHandler_ForgotPassword(t *testing.T) {
	t.Parallel()

	ipKey := "ratelimit:password-reset:ip:198.51.100.1"
	accountKey := "ratelimit:password-reset:user:ana@example.com"

	tests := []struct {
		name       string
		body       string
		deny       string
		wantStatus int
		wantIssued []string
		wantKeys   []string
	}{
		{name: "issues when allowed", body: `{"email":" Ana@Example.com "}`, wantStatus: http.StatusAccepted, wantIssued: []string{"ana@example.com"}, wantKeys: []string{ipKey, accountKey}},
		{name: "account limit is silent", body: `{"email":"ana@example.com"}`, deny: domain.ScopePasswordResetAccount, wantStatus: http.StatusAccepted, wantKeys: []string{ipKey, accountKey}},
		{name: "ip limit rejects before the account check", body: `{"email":"ana@example.com"}`, deny: domain.ScopePasswordResetIP, wantStatus: http.StatusTooManyRequests, wantKeys: []string{ipKey}},
		{name: "invalid email does not charge the ip", body: `{"email":"nope"}`, wantStatus: http.StatusBadRequest, wantKeys: []string{}},
		{name: "invalid json does not charge the ip", body: `{`, wantStatus: http.StatusBadRequest, wantKeys: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := &stubLimiter{deny: map[string]bool{tt.deny: true}}
			resets := &stubResets{}
			h := NewPasswordResetHandler(limiter, resets, resets, testRules, logrus.New())

			rec := httptest.NewRecorder()
			req := newRequest(http.MethodPost, "/api/auth/forgot-password", tt.body, map[string]string{"X-Forwarded-For": "198.51.100.1"})
			h.ForgotPassword(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantIssued, resets.issued)
			assert.Equal(t, tt.wantKeys, limiter.keys())
			switch tt.wantStatus {
			case http.StatusAccepted:
				assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
			case http.StatusTooManyRequests:
				assert.Equal(t, "20", rec.Header().Get("X-RateLimit-Limit"))
				assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
				assert.NotEmpty(t, rec.Header().Get("Retry-After"))
				assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
			}
		})
	}
}

func TestPasswordResetHandler_ResetPassword(t *testing.T) {
	t.Parallel()

	ipKey := "ratelimit:password-reset:reset:ip:198.51.100.2"
	headers := map[string]string{"X-Forwarded-For": "198.51.100.2"}

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{}
		resets := &stubResets{valid: map[string]bool{"good": true}}
		h := NewPasswordResetHandler(limiter, resets, resets, testRules, logrus.New())

		rec := httptest.NewRecorder()
		h.ResetPassword(rec, newRequest(http.MethodPost, "/api/auth/reset-password", `{"token":"good","password":"long-enough"}`, headers))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{ipKey}, limiter.keys())
	})

	t.Run("invalid token charges hashed key", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{}
		resets := &stubResets{}
		h := NewPasswordResetHandler(limiter, resets, resets, testRules, logrus.New())

		rec := httptest.NewRecorder()
		h.ResetPassword(rec, newRequest(http.MethodPost, "/api/auth/reset-password", `{"token":"bad","password":"long-enough"}`, headers))

		assert.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, []string{ipKey, "ratelimit:password-reset:invalid-token:" + domain.HashToken("bad")}, limiter.keys())
	})

	t.Run("ip limit rejects before consuming", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{deny: map[string]bool{domain.ScopeResetAttemptIP: true}}
		resets := &stubResets{valid: map[string]bool{"good": true}}
		h := NewPasswordResetHandler(limiter, resets, resets, testRules, logrus.New())

		rec := httptest.NewRecorder()
		h.ResetPassword(rec, newRequest(http.MethodPost, "/api/auth/reset-password", `{"token":"good","password":"long-enough"}`, headers))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("invalid bodies do not charge the ip", func(t *testing.T) {
		t.Parallel()

		limiter := &stubLimiter{}
		resets := &stubResets{valid: map[string]bool{"good": true}}
		h := NewPasswordResetHandler(limiter, resets, resets, testRules, logrus.New())

		for _, body := range []string{`{`, `{"token":"good","password":"short"}`, `{"password":"long-enough"}`} {
			rec := httptest.NewRecorder()
			h.ResetPassword(rec, newRequest(http.MethodPost, "/api/auth/reset-password", body, headers))
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
		assert.Empty(t, limiter.keys())
	})
}
