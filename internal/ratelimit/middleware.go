package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/httputil"
	"accman/pkg/requestcontext"
)

// Middleware limits requests per client IP under scope. Store failures let the
// request through.
func Middleware(store Store, scope string, policy Policy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := store.Allow(ctx, scope+":"+ip, policy.Limit, policy.Window)
			if err != nil {
				logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := int(math.Ceil(result.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				logger.WarnContext(ctx, "rate limit exceeded",
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
