package models

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "accman/pkg/domain-errors"
)

// asciiPunctuation is the set of characters counted as special symbols.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// PasswordPolicy sets the minimum length and per-class character counts of
// new passwords. Only ASCII letters and digits count towards their classes.
type PasswordPolicy struct {
	MinLength    int
	MinLowercase int
	MinUppercase int
	MinDigits    int
	MinSpecial   int
}

// Check validates a new password and its confirmation. Length is checked
// first, then the confirmation, then character classes.
func (p PasswordPolicy) Check(password, confirm string) error {
	if len([]rune(password)) < p.MinLength {
		return dErrors.New(dErrors.CodeValidation, "password is too short").At("password")
	}
	if len(password) > maxPasswordBytes {
		return dErrors.New(dErrors.CodeValidation, "password is too long").At("password")
	}
	if password != confirm {
		return dErrors.New(dErrors.CodeValidation, "passwords do not match").At("password_check")
	}

	var lower, upper, digits, special int
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower++
		case r >= 'A' && r <= 'Z':
			upper++
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(asciiPunctuation, r):
			special++
		}
	}
	if lower < p.MinLowercase || upper < p.MinUppercase || digits < p.MinDigits || special < p.MinSpecial {
		return dErrors.New(dErrors.CodeValidation, "password does not meet the requirements").At("password")
	}
	return nil
}

// HashPassword returns a bcrypt hash of password at cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. An empty password
// never matches.
func VerifyPassword(hash, password string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
