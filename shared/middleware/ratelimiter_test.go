package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/middleware/ratelimiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("allows request within rate limit", func(t *testing.T) {
		rl := ratelimiter.New(0.001, 1, time.Minute)
		defer rl.Stop()
		handler := RateLimit(rl, func(r *http.Request) (string, error) { return "user1", nil })(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("error getting identity", func(t *testing.T) {
		rl := ratelimiter.New(0.001, 1, time.Minute)
		defer rl.Stop()
		handler := RateLimit(rl, func(r *http.Request) (string, error) { return "", errors.New("Test error") })(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("blocks request exceeding rate limit", func(t *testing.T) {
		rl := ratelimiter.New(0.001, 1, time.Minute)
		defer rl.Stop()
		handler := RateLimit(rl, func(r *http.Request) (string, error) { return "user1", nil })(okHandler())

		w1 := httptest.NewRecorder()
		handler.ServeHTTP(w1, httptest.NewRequest("POST", "/", nil))
		assert.Equal(t, http.StatusOK, w1.Code)

		w2 := httptest.NewRecorder()
		handler.ServeHTTP(w2, httptest.NewRequest("POST", "/", nil))
		assert.Equal(t, http.StatusTooManyRequests, w2.Code)
		assert.Equal(t, "1000", w2.Header().Get("Retry-After"))
	})

	t.Run("admins bypass the limit", func(t *testing.T) {
		rl := ratelimiter.New(0.001, 1, time.Minute)
		defer rl.Stop()
		handler := RateLimit(rl, GetUserIDFromContext)(okHandler())
		admin := &domain.User{Id: 1, Admin: true}

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("POST", "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserClaimsKey, admin))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(ratelimiter.Decision{RetryAfter: 0}))
	assert.Equal(t, 1, retryAfterSeconds(ratelimiter.Decision{RetryAfter: 300 * time.Millisecond}))
	assert.Equal(t, 3, retryAfterSeconds(ratelimiter.Decision{RetryAfter: 2100 * time.Millisecond}))
}

func TestGetUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	_, err := GetUserIDFromContext(req)
	assert.Error(t, err)

	req = req.WithContext(context.WithValue(req.Context(), UserClaimsKey, &domain.User{Id: 7}))
	id, err := GetUserIDFromContext(req)
	require.NoError(t, err)
	assert.Equal(t, "user_7", id)
}
