package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/blogmedia/blogmedia/shared/middleware/ratelimiter"
	"github.com/blogmedia/blogmedia/shared/utils"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected by the per-author rate limiter",
})

// RateLimit rejects requests once the identity's bucket is empty. Admins are
// never limited.
func RateLimit(rl *ratelimiter.Limiter, getIdentity func(r *http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := GetUserFromContext(r); user != nil && user.Admin {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := getIdentity(r)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, err)
				return
			}

			decision := rl.Take(identity)
			if !decision.Allowed {
				rateLimitedTotal.Inc()
				logger.Log.Debug("rate limited", "identity", identity, "retry_after", decision.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d ratelimiter.Decision) int {
	return max(1, int(math.Ceil(d.RetryAfter.Seconds())))
}

// GetUserIDFromContext needs Auth earlier in the chain.
func GetUserIDFromContext(r *http.Request) (string, error) {
	user := GetUserFromContext(r)
	if user == nil {
		return "", errors.New("Can't get user id")
	}
	return fmt.Sprintf("user_%d", user.Id), nil
}
