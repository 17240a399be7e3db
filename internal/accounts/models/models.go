package models

import (
	"time"
	"unicode/utf8"

	"accman/internal/accounts/codec"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
)

// MaxNameLength bounds Account.Name in characters.
const MaxNameLength = 100

// Status is the lifecycle state of an account. Soft deletion moves an
// account to deleted; it is never moved back.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Account is one stored credential record owned by a user.
//
// Invariants:
//   - Name is non-empty and at most MaxNameLength characters
//   - Data is never nil
//   - CreatedAt is immutable after construction
type Account struct {
	ID        id.AccountID  `json:"id"`
	UserID    id.UserID     `json:"user_id"`
	Name      string        `json:"name"`
	Data      *codec.Fields `json:"data"`
	Status    Status        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewAccount(accountID id.AccountID, userID id.UserID, name string, data *codec.Fields, now time.Time) (*Account, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if data == nil {
		data = &codec.Fields{}
	}
	return &Account{
		ID:        accountID,
		UserID:    userID,
		Name:      name,
		Data:      data,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func checkName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "account name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "account name must be 100 characters or less")
	}
	return nil
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Replace overwrites name and data, as an update request does.
func (a *Account) Replace(name string, data *codec.Fields, now time.Time) error {
	if err := checkName(name); err != nil {
		return err
	}
	if data == nil {
		data = &codec.Fields{}
	}
	a.Name = name
	a.Data = data
	a.UpdatedAt = now
	return nil
}

func (a *Account) MarkDeleted(now time.Time) {
	a.Status = StatusDeleted
	a.UpdatedAt = now
}

// Record converts the account to its transfer form.
func (a *Account) Record() codec.Record {
	return codec.Record{Name: a.Name, Fields: a.Data.Clone()}
}

// Records converts accounts in order.
func Records(accounts []*Account) []codec.Record {
	out := make([]codec.Record, len(accounts))
	for i, a := range accounts {
		out[i] = a.Record()
	}
	return out
}
