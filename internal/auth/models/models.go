package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
)

const (
	MaxUsernameLength = 300
	MaxEmailLength    = 300
)

var usernamePattern = regexp.MustCompile(`^\S+$`)

// User is a registered owner of accounts.
//
// Invariants:
//   - Username is non-empty and contains no whitespace
//   - Email, when set, is a well-formed address
//   - PasswordHash is a bcrypt hash and never leaves the service
type User struct {
	ID           id.UserID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewUser(userID id.UserID, username, email, passwordHash string, now time.Time) (*User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty or contain spaces")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash required")
	}
	return &User{
		ID:           userID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
	}, nil
}

type RegisterRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	PasswordCheck string `json:"password_check"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// Validate checks the request shape. Password strength is checked by the
// service against the configured policy.
func (r *RegisterRequest) Validate() error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	if r.Email != "" {
		if err := ValidateEmail(r.Email); err != nil {
			return err
		}
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required").At("password")
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return dErrors.New(dErrors.CodeValidation, "invalid username format").At("username")
	}
	if !govalidator.StringLength(username, "1", "300") {
		return dErrors.New(dErrors.CodeValidation, "username is too long").At("username")
	}
	return nil
}

func ValidateEmail(email string) error {
	if !govalidator.StringLength(email, "3", "300") || !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeValidation, "invalid email format").At("email")
	}
	return nil
}

// LoginRequest accepts either the username or the email in Username.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "invalid username or password").At("username", "password")
	}
	return nil
}

// Availability reports whether a username or email is taken.
type Availability string

const (
	AvailabilityExists Availability = "exists"
	AvailabilityFree   Availability = "free"
)

type CheckRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (r *CheckRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *CheckRequest) Validate() error {
	if r.Username == "" && r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "one of username or email is required").At("username", "email")
	}
	return nil
}

// CheckResult echoes only the fields that were asked about.
type CheckResult struct {
	Username Availability `json:"username,omitempty"`
	Email    Availability `json:"email,omitempty"`
}
