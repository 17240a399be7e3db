package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
)

var defaultPolicy = PasswordPolicy{MinLength: 6, MinLowercase: 1, MinUppercase: 1, MinDigits: 1, MinSpecial: 1}

func TestPasswordPolicy_Check(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		location string
	}{
		{name: "strong", password: "Abc1!x", confirm: "Abc1!x"},
		{name: "too short", password: "A1!a", confirm: "A1!a", location: "password"},
		{name: "mismatch", password: "Abc1!xyz", confirm: "Abc1!xyZ", location: "password_check"},
		{name: "no digit", password: "Abcdef!", confirm: "Abcdef!", location: "password"},
		{name: "no upper", password: "abcde1!", confirm: "abcde1!", location: "password"},
		{name: "no special", password: "Abcde12", confirm: "Abcde12", location: "password"},
		{name: "non ascii letters do not count", password: "Пароль1!", confirm: "Пароль1!", location: "password"},
		{name: "symbol class includes backtick", password: "Abc12`", confirm: "Abc12`"},
		{name: "over bcrypt limit", password: "Aa1!" + strings.Repeat("x", 70), confirm: "Aa1!" + strings.Repeat("x", 70), location: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := defaultPolicy.Check(tt.password, tt.confirm)
			if tt.location == "" {
				require.NoError(t, err)
				return
			}
			de, ok := dErrors.From(err)
			require.True(t, ok)
			assert.Equal(t, dErrors.CodeValidation, de.Code)
			assert.Equal(t, []string{tt.location}, de.Locations)
		})
	}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("Secret1!", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "Secret1!", hash)

	assert.True(t, VerifyPassword(hash, "Secret1!"))
	assert.False(t, VerifyPassword(hash, "secret1!"))
	assert.False(t, VerifyPassword(hash, ""))
	assert.False(t, VerifyPassword("", "Secret1!"))
}

func TestNewUser(t *testing.T) {
	now := time.Now()
	u, err := NewUser(id.UserID(uuid.New()), "alice", "", "hash", now)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.Equal(t, now, u.CreatedAt)

	_, err = NewUser(id.UserID(uuid.New()), "al ice", "", "hash", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewUser(id.UserID(uuid.New()), "alice", "", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestRegisterRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      RegisterRequest
		location string
	}{
		{name: "valid without email", req: RegisterRequest{Username: " alice ", Password: "x"}},
		{name: "valid with email", req: RegisterRequest{Username: "alice", Email: " Alice@Example.com ", Password: "x"}},
		{name: "username with space", req: RegisterRequest{Username: "al ice", Password: "x"}, location: "username"},
		{name: "empty username", req: RegisterRequest{Username: "  ", Password: "x"}, location: "username"},
		{name: "bad email", req: RegisterRequest{Username: "alice", Email: "not-an-email", Password: "x"}, location: "email"},
		{name: "no password", req: RegisterRequest{Username: "alice"}, location: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			if tt.location == "" {
				require.NoError(t, err)
				return
			}
			de, ok := dErrors.From(err)
			require.True(t, ok)
			assert.Equal(t, []string{tt.location}, de.Locations)
		})
	}
}

func TestRegisterRequest_NormalizeEmail(t *testing.T) {
	req := RegisterRequest{Username: "alice", Email: " Alice@Example.com "}
	req.Normalize()
	assert.Equal(t, "alice@example.com", req.Email)
}

func TestCheckRequest_Validate(t *testing.T) {
	empty := CheckRequest{Username: " "}
	empty.Normalize()
	de, ok := dErrors.From(empty.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"username", "email"}, de.Locations)

	req := CheckRequest{Email: "a@b.co"}
	assert.NoError(t, req.Validate())
}

func TestLoginRequest_Validate(t *testing.T) {
	req := LoginRequest{Username: "alice"}
	de, ok := dErrors.From(req.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"username", "password"}, de.Locations)
}
