package middleware

import (
	"context"
	"log/slog"
	"net/http"

	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/httputil"
	"accman/pkg/requestcontext"
)

// SessionResolver maps a session cookie value to the user it belongs to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (id.UserID, error)
}

// LoadUser attaches the session user to the request context when the
// session cookie is present and valid. Requests without a usable session
// continue anonymously; use RequireUser to reject them.
func LoadUser(resolver SessionResolver, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, err := resolver.ResolveSession(ctx, cookie.Value)
			if err != nil {
				level := slog.LevelDebug
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					level = slog.LevelWarn
				}
				logger.Log(ctx, level, "session not resolved",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.UserID(ctx).IsNil() {
				logger.WarnContext(ctx, "unauthorized access - no session",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RejectUser rejects requests that already carry a session with 403.
func RejectUser(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := requestcontext.UserID(ctx); !userID.IsNil() {
				logger.InfoContext(ctx, "request rejected - already signed in",
					"user_id", userID.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "already signed in"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
