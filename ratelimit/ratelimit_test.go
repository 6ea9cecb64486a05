package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Unix(1_800_000_000, 0)
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRedisLimiter(client, 2, time.Minute)
	limiter.now = fixedClock
	key := limiter.windowKey("verify:1.2.3.4")

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	ctx := context.Background()
	for _, want := range []bool{true, true, false} {
		allowed, err := limiter.Allow(ctx, "verify:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, allowed)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_ErrorIsReturned(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRedisLimiter(client, 2, time.Minute)
	limiter.now = fixedClock

	mock.ExpectIncr(limiter.windowKey("k")).SetErr(errors.New("connection refused"))

	_, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestLocalLimiter_BurstThenReject(t *testing.T) {
	limiter := NewLocalLimiter(3, time.Minute)
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := limiter.Allow(ctx, "a")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow(ctx, "b")
	assert.True(t, allowed)
}

func TestLocalLimiter_SweepForgetsIdleKeys(t *testing.T) {
	limiter := NewLocalLimiter(3, time.Minute)
	defer limiter.Close()

	limiter.Allow(context.Background(), "a")
	require.Equal(t, 1, limiter.size())

	limiter.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, limiter.size())
	assert.NoError(t, limiter.Close())
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) {
	return s.allowed, s.err
}

func serve(limiter Limiter) *httptest.ResponseRecorder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Middleware(limiter, "verify", ClientIP, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/verify", nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(stubLimiter{allowed: true}).Code)

	rejected := serve(stubLimiter{allowed: false})
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Contains(t, rejected.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusNoContent, serve(stubLimiter{err: errors.New("redis down")}).Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", ClientIP(req))

	req.RemoteAddr = "10.0.0.8"
	assert.Equal(t, "10.0.0.8", ClientIP(req))
}
