package httpapi

import (
	"net/http"
	"strconv"

	"geometa.org/internal/auth"
	"geometa.org/internal/obs"
	"geometa.org/internal/rate"
)

// classify maps a path to its rate limit policy class. Auth-sensitive
// routes get tighter budgets because credential-guessing and account
// enumeration concentrate on them.
func (a *API) classify(path string) rate.Class {
	switch path {
	case "/v1/auth/login":
		return a.limits.login
	case "/v1/auth/register":
		return a.limits.register
	case "/v1/auth/forgot-password", "/v1/auth/reset-password":
		return a.limits.reset
	default:
		return a.limits.standard
	}
}

// withRateLimit enforces the fixed-window budget per client IP and
// route class. Headers are set on every response regardless of outcome.
// A counting-store failure resolves fail-open through the policy table.
func (a *API) withRateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := a.classify(r.URL.Path)
		result, err := a.limiter.Allow(r.Context(), clientIP(r), class)
		if err != nil {
			if auth.PolicyFor(auth.FailureRateLimitStore) == auth.Allow {
				logFailOpen("ratelimit", err)
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusServiceUnavailable, "rate limiter unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			obs.CountRateLimited(class.Name)
			retry := int(result.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, r, http.StatusTooManyRequests,
				"rate limit exceeded, retry in "+strconv.Itoa(retry)+"s")
			return
		}
		next.ServeHTTP(w, r)
	})
}
