package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accman/internal/auth/models"
	"accman/internal/auth/service"
	"accman/internal/platform/middleware"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/httputil"
	"accman/pkg/requestcontext"
)

// Service defines the sign-in operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*service.Session, error)
	Login(ctx context.Context, req *models.LoginRequest) (*service.Session, error)
	Logout(ctx context.Context, token string) error
	Check(ctx context.Context, req *models.CheckRequest) (*models.CheckResult, error)
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler serves registration, login, logout and availability checks.
type Handler struct {
	auth      Service
	logger    *slog.Logger
	cookie    CookieConfig
	rateLimit func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit throttles the anonymous sign-in routes.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

func New(auth Service, logger *slog.Logger, cookie CookieConfig, opts ...Option) *Handler {
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	h := &Handler{auth: auth, logger: logger, cookie: cookie}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the auth routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/check", h.handleCheck)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RejectUser(h.logger))
		if h.rateLimit != nil {
			r.Use(h.rateLimit)
		}
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(h.logger))
		r.Post("/logout", h.handleLogout)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	sess, err := h.auth.Register(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "registration failed")
		return
	}
	h.startSession(w, r, sess)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	sess, err := h.auth.Login(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "login failed")
		return
	}
	h.startSession(w, r, sess)
}

// handleLogout revokes the session token. The cookie is cleared even when
// revocation fails so the browser stops presenting it.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		if err := h.auth.Logout(ctx, c.Value); err != nil {
			h.logger.ErrorContext(ctx, "failed to revoke session",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CheckRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	result, err := h.auth.Check(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "availability check failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, sess *service.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	de, ok := dErrors.From(err)
	if !ok || de.Code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
