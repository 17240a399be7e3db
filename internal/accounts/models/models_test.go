package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"accman/internal/accounts/codec"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newAccount(t *testing.T, name string, kv ...string) *Account {
	t.Helper()
	a, err := NewAccount(id.AccountID(uuid.New()), id.UserID(uuid.New()), name, codec.NewFields(kv...), now)
	require.NoError(t, err)
	return a
}

func TestNewAccount_Invariants(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		_, err := NewAccount(id.AccountID(uuid.New()), id.UserID(uuid.New()), "", nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("name counted in characters", func(t *testing.T) {
		_, err := NewAccount(id.AccountID(uuid.New()), id.UserID(uuid.New()), strings.Repeat("я", MaxNameLength), nil, now)
		require.NoError(t, err)
		_, err = NewAccount(id.AccountID(uuid.New()), id.UserID(uuid.New()), strings.Repeat("я", MaxNameLength+1), nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("nil data becomes empty", func(t *testing.T) {
		a, err := NewAccount(id.AccountID(uuid.New()), id.UserID(uuid.New()), "A", nil, now)
		require.NoError(t, err)
		assert.NotNil(t, a.Data)
		assert.Equal(t, StatusActive, a.Status)
	})
}

func TestAccount_RecordIsDetached(t *testing.T) {
	a := newAccount(t, "Mail", "Login", "me")
	rec := a.Record()
	rec.Fields.Set("Login", "changed")

	v, _ := a.Data.Get("Login")
	assert.Equal(t, "me", v)
}

type SearchQuerySuite struct {
	suite.Suite
	mail    *Account
	gmail   *Account
	deleted *Account
}

func TestSearchQuerySuite(t *testing.T) {
	suite.Run(t, new(SearchQuerySuite))
}

func (s *SearchQuerySuite) SetupTest() {
	s.mail = newAccount(s.T(), "Mail", "Login", "me@mail.example")
	s.gmail = newAccount(s.T(), "GMail", "Recovery", "phone")
	s.deleted = newAccount(s.T(), "Mail old", "Login", "old")
	s.deleted.MarkDeleted(now)
}

func (s *SearchQuerySuite) match(q SearchQuery) []string {
	q.Normalize()
	var names []string
	for _, a := range []*Account{s.mail, s.gmail, s.deleted} {
		if q.Matches(a) {
			names = append(names, a.Name)
		}
	}
	return names
}

func (s *SearchQuerySuite) TestMatches() {
	s.Run("star matches all active", func() {
		s.Equal([]string{"Mail", "GMail"}, s.match(SearchQuery{Name: "*"}))
	})
	s.Run("substring is case sensitive", func() {
		s.Equal([]string{"GMail"}, s.match(SearchQuery{Name: "GM"}))
		s.Empty(s.match(SearchQuery{Name: "gm"}))
	})
	s.Run("exact match", func() {
		s.Equal([]string{"Mail"}, s.match(SearchQuery{Name: "Mail", ExactMatch: true}))
	})
	s.Run("details over keys and values", func() {
		s.Equal([]string{"GMail"}, s.match(SearchQuery{Details: "phone"}))
		s.Equal([]string{"GMail"}, s.match(SearchQuery{Details: "Recov"}))
	})
	s.Run("details never spans key and value", func() {
		s.Empty(s.match(SearchQuery{Details: "Recoveryphone"}))
		s.Empty(s.match(SearchQuery{Details: `"Recovery":"phone"`}))
		s.Empty(s.match(SearchQuery{Details: "{"}))
	})
	s.Run("deleted only on request", func() {
		s.Equal([]string{"Mail", "GMail"}, s.match(SearchQuery{Name: "Mail"}))
		s.Equal([]string{"Mail", "GMail", "Mail old"}, s.match(SearchQuery{Name: "Mail", IncludeDeleted: true}))
	})
	s.Run("id filter", func() {
		s.Equal([]string{"GMail"}, s.match(SearchQuery{AccountIDs: []id.AccountID{s.gmail.ID}}))
	})
}

func TestExportRequest(t *testing.T) {
	t.Run("defaults to txt", func(t *testing.T) {
		r := &ExportRequest{}
		r.Normalize()
		require.NoError(t, r.Validate())
		assert.Equal(t, codec.FormatText, r.Format())
		assert.Empty(t, r.IDs())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		r := &ExportRequest{ExportType: "csv"}
		r.Normalize()
		err := r.Validate()
		de, ok := dErrors.From(err)
		require.True(t, ok)
		assert.Equal(t, dErrors.CodeValidation, de.Code)
		assert.Equal(t, []string{"export_type"}, de.Locations)
	})

	t.Run("rejects bad ids", func(t *testing.T) {
		r := &ExportRequest{AccountIDs: []string{"1"}, ExportType: "json"}
		r.Normalize()
		assert.True(t, dErrors.HasCode(r.Validate(), dErrors.CodeValidation))
	})
}

func TestUpdateAccountRequest(t *testing.T) {
	r := &UpdateAccountRequest{ID: " " + uuid.NewString() + " ", Name: " Mail ", Data: codec.NewFields()}
	r.Normalize()
	require.NoError(t, r.Validate())
	assert.False(t, r.AccountID().IsNil())
	assert.Equal(t, "Mail", r.Name)

	missing := &UpdateAccountRequest{ID: uuid.NewString(), Name: "Mail"}
	err := missing.Validate()
	de, ok := dErrors.From(err)
	require.True(t, ok)
	assert.Equal(t, []string{"data"}, de.Locations)
}
