package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"accman/internal/auth/models"
	jwttoken "accman/internal/jwt_token"
	"accman/internal/platform/metrics"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/audit"
	"accman/pkg/platform/sentinel"
	"accman/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	SetActive(ctx context.Context, userID id.UserID, active bool) error
}

type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, username string, now time.Time) (*jwttoken.IssuedToken, error)
	ValidateToken(token string) (*jwttoken.Claims, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Session is the outcome of a successful register or login.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

var errBadCredentials = dErrors.New(dErrors.CodeValidation, "invalid username or password").At("username", "password")

// Service owns user registration and cookie sessions.
type Service struct {
	users          UserStore
	revocations    TokenRevocationList
	tokens         TokenIssuer
	policy         models.PasswordPolicy
	bcryptCost     int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithPasswordPolicy(policy models.PasswordPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(users UserStore, revocations TokenRevocationList, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:       users,
		revocations: revocations,
		tokens:      tokens,
		policy:      models.PasswordPolicy{MinLength: 6, MinLowercase: 1, MinUppercase: 1, MinDigits: 1, MinSpecial: 1},
		bcryptCost:  bcrypt.DefaultCost,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user and signs them in.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*Session, error) {
	if err := s.ensureFree(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}
	if err := s.policy.Check(req.Password, req.PasswordCheck); err != nil {
		return nil, err
	}

	hash, err := models.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user, err := models.NewUser(id.UserID(uuid.New()), req.Username, req.Email, hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error()).At("username")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeValidation, "username or email already in use").At("username", "email")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.metrics.IncrementUsersCreated()
	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: audit.EventUserRegistered, UserID: user.ID})
	return s.issue(ctx, user)
}

func (s *Service) ensureFree(ctx context.Context, username, email string) error {
	taken, err := s.exists(s.users.FindByUsername(ctx, username))
	if err != nil {
		return err
	}
	if taken {
		return dErrors.New(dErrors.CodeValidation, "username already taken").At("username")
	}
	if email == "" {
		return nil
	}
	taken, err = s.exists(s.users.FindByEmail(ctx, email))
	if err != nil {
		return err
	}
	if taken {
		return dErrors.New(dErrors.CodeValidation, "email already in use").At("email")
	}
	return nil
}

func (s *Service) exists(_ *models.User, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
}

// Login signs in by username or email. Unknown users and wrong passwords get
// the same error.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*Session, error) {
	user, err := s.users.FindByLogin(ctx, req.Username)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if user == nil || !models.VerifyPassword(user.PasswordHash, req.Password) {
		s.metrics.IncrementLogin("failed")
		s.emit(ctx, audit.Event{Action: audit.EventLoginFailed, Subject: req.Username, Reason: "bad_credentials"})
		return nil, errBadCredentials
	}
	if !user.IsActive {
		s.metrics.IncrementLogin("blocked")
		s.emit(ctx, audit.Event{Action: audit.EventLoginFailed, UserID: user.ID, Reason: "user_blocked"})
		return nil, dErrors.New(dErrors.CodeForbidden, "user is blocked").At("username")
	}

	s.metrics.IncrementLogin("success")
	s.emit(ctx, audit.Event{Action: audit.EventLoginSucceeded, UserID: user.ID})
	return s.issue(ctx, user)
}

// Logout revokes the session token for the rest of its lifetime. Tokens that
// no longer validate need no revocation.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	userID, _ := id.ParseUserID(claims.UserID)
	s.emit(ctx, audit.Event{Action: audit.EventLoggedOut, UserID: userID})
	return nil
}

// Check reports whether the given username and/or email are taken.
func (s *Service) Check(ctx context.Context, req *models.CheckRequest) (*models.CheckResult, error) {
	var result models.CheckResult
	if req.Username != "" {
		taken, err := s.exists(s.users.FindByUsername(ctx, req.Username))
		if err != nil {
			return nil, err
		}
		result.Username = availability(taken)
	}
	if req.Email != "" {
		taken, err := s.exists(s.users.FindByEmail(ctx, req.Email))
		if err != nil {
			return nil, err
		}
		result.Email = availability(taken)
	}
	return &result, nil
}

func availability(taken bool) models.Availability {
	if taken {
		return models.AvailabilityExists
	}
	return models.AvailabilityFree
}

// ResolveSession maps a session token to an active user.
func (s *Service) ResolveSession(ctx context.Context, token string) (id.UserID, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return id.UserID{}, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check session")
	}
	if revoked {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "session has been revoked")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
		}
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.IsActive {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "user is blocked")
	}
	return user.ID, nil
}

// SetActive blocks or unblocks a user by username. Blocked users cannot sign
// in and their existing sessions stop resolving.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found").At("username")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if err := s.users.SetActive(ctx, user.ID, active); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}

	reason := "blocked"
	if active {
		reason = "unblocked"
	}
	s.emit(ctx, audit.Event{Action: audit.EventUserStatusSet, UserID: user.ID, Reason: reason})
	return nil
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Session, error) {
	issued, err := s.tokens.GenerateAccessToken(user.ID, user.Username, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session")
	}
	return &Session{User: user, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event = audit.Prepare(ctx, event)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
