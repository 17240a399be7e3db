//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"accman/internal/accounts/codec"
	"accman/internal/accounts/models"
	"accman/internal/accounts/store"
	id "accman/pkg/domain"
	"accman/pkg/platform/sentinel"
	"accman/pkg/platform/tx"
	"accman/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	owner    id.UserID
	other    id.UserID
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "accounts", "users"))

	s.owner = id.UserID(uuid.New())
	s.other = id.UserID(uuid.New())
	s.now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, u := range []id.UserID{s.owner, s.other} {
		_, err := s.postgres.Exec(ctx, `
			INSERT INTO users (id, username, password_hash, created_at)
			VALUES ($1, $2, 'x', $3)
		`, uuid.UUID(u), []string{"owner", "other"}[i], s.now)
		s.Require().NoError(err)
	}
}

func (s *PostgresStoreSuite) account(owner id.UserID, name string, kv ...string) *models.Account {
	a, err := models.NewAccount(id.AccountID(uuid.New()), owner, name, codec.NewFields(kv...), s.now)
	s.Require().NoError(err)
	return a
}

func names(accounts []*models.Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Name
	}
	return out
}

func (s *PostgresStoreSuite) TestFieldOrderSurvivesStorage() {
	ctx := context.Background()
	a := s.account(s.owner, "Mail", "Zeta", "1", "Alpha", "2", "Mid", "3")
	s.Require().NoError(s.store.Create(ctx, a))

	got, err := s.store.FindByID(ctx, s.owner, a.ID)
	s.Require().NoError(err)
	s.Equal([]string{"Zeta", "Alpha", "Mid"}, got.Data.Keys())
	s.Equal(models.StatusActive, got.Status)
	s.True(got.CreatedAt.Equal(s.now))
}

func (s *PostgresStoreSuite) TestCreateManyAndConflict() {
	ctx := context.Background()
	a := s.account(s.owner, "A")
	b := s.account(s.owner, "B")
	s.Require().NoError(s.store.CreateMany(ctx, []*models.Account{a, b}))

	err := s.store.CreateMany(ctx, []*models.Account{s.account(s.owner, "C"), a})
	s.ErrorIs(err, sentinel.ErrConflict)

	all, err := s.store.Search(ctx, s.owner, models.SearchQuery{}, models.Page{})
	s.Require().NoError(err)
	s.Equal([]string{"A", "B"}, names(all), "failed batch inserts nothing")
}

func (s *PostgresStoreSuite) TestCreateManyRollsBackWithTransaction() {
	ctx := context.Background()
	runner := tx.NewPostgres(s.postgres.DB)

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateMany(txCtx, []*models.Account{s.account(s.owner, "A")}); err != nil {
			return err
		}
		return sentinel.ErrUnavailable
	})
	s.ErrorIs(err, sentinel.ErrUnavailable)

	all, err := s.store.Search(ctx, s.owner, models.SearchQuery{}, models.Page{})
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *PostgresStoreSuite) manyAccounts(n int) []*models.Account {
	out := make([]*models.Account, n)
	for i := range out {
		out[i] = s.account(s.owner, fmt.Sprintf("acct-%05d", i), "Login", "user")
	}
	return out
}

func (s *PostgresStoreSuite) countOwned() int {
	var n int
	row := s.postgres.DB.QueryRowContext(context.Background(), `SELECT count(*) FROM accounts WHERE user_id = $1`, uuid.UUID(s.owner))
	s.Require().NoError(row.Scan(&n))
	return n
}

func (s *PostgresStoreSuite) TestCreateManyLargeBatch() {
	ctx := context.Background()

	s.Run("inside a transaction", func() {
		s.Require().NoError(s.postgres.TruncateTables(ctx, "accounts"))
		runner := tx.NewPostgres(s.postgres.DB)
		err := runner.RunInTx(ctx, func(txCtx context.Context) error {
			return s.store.CreateMany(txCtx, s.manyAccounts(10000))
		})
		s.Require().NoError(err)
		s.Equal(10000, s.countOwned())
	})

	s.Run("without a transaction", func() {
		s.Require().NoError(s.postgres.TruncateTables(ctx, "accounts"))
		s.Require().NoError(s.store.CreateMany(ctx, s.manyAccounts(10000)))
		s.Equal(10000, s.countOwned())
	})

	s.Run("conflict in a later statement inserts nothing", func() {
		s.Require().NoError(s.postgres.TruncateTables(ctx, "accounts"))
		existing := s.account(s.owner, "existing")
		s.Require().NoError(s.store.Create(ctx, existing))

		batch := append(s.manyAccounts(10000), existing)
		s.ErrorIs(s.store.CreateMany(ctx, batch), sentinel.ErrConflict)
		s.Equal(1, s.countOwned())
	})
}

func (s *PostgresStoreSuite) TestSearch() {
	ctx := context.Background()
	deleted := s.account(s.owner, "Mail old", "Login", "old")
	s.Require().NoError(s.store.CreateMany(ctx, []*models.Account{
		s.account(s.owner, "Mail", "Login", "me@mail.example"),
		s.account(s.owner, "GMail", "Recovery", "phone"),
		s.account(s.owner, "Bank", "PIN", "0000"),
		s.account(s.other, "Mail", "Login", "someone"),
		deleted,
	}))
	_, err := s.store.SoftDelete(ctx, s.owner, []id.AccountID{deleted.ID}, s.now)
	s.Require().NoError(err)

	cases := []struct {
		name  string
		query models.SearchQuery
		want  []string
	}{
		{"all active ordered", models.SearchQuery{}, []string{"Bank", "GMail", "Mail"}},
		{"substring is case sensitive", models.SearchQuery{Name: "Mail"}, []string{"GMail", "Mail"}},
		{"exact", models.SearchQuery{Name: "Mail", ExactMatch: true}, []string{"Mail"}},
		{"details in value", models.SearchQuery{Details: "phon"}, []string{"GMail"}},
		{"details in key", models.SearchQuery{Details: "PI"}, []string{"Bank"}},
		{"details never spans key and value", models.SearchQuery{Details: `"PIN":"0000"`}, []string{}},
		{"details ignores json syntax", models.SearchQuery{Details: "{"}, []string{}},
		{"include deleted", models.SearchQuery{Name: "Mail", IncludeDeleted: true}, []string{"GMail", "Mail", "Mail old"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			got, err := s.store.Search(ctx, s.owner, tc.query, models.Page{})
			s.Require().NoError(err)
			s.Equal(tc.want, names(got))
		})
	}

	s.Run("pages", func() {
		got, err := s.store.Search(ctx, s.owner, models.SearchQuery{}, models.Page{Number: 2, Size: 2})
		s.Require().NoError(err)
		s.Equal([]string{"Mail"}, names(got))
	})
}

func (s *PostgresStoreSuite) TestUpdateAndDelete() {
	ctx := context.Background()
	a := s.account(s.owner, "A", "k", "v")
	b := s.account(s.owner, "B")
	s.Require().NoError(s.store.CreateMany(ctx, []*models.Account{a, b}))

	s.Require().NoError(a.Replace("A2", codec.NewFields("x", "y"), s.now.Add(time.Minute)))
	s.Require().NoError(s.store.Update(ctx, a))
	got, err := s.store.FindByID(ctx, s.owner, a.ID)
	s.Require().NoError(err)
	s.Equal("A2", got.Name)
	s.Equal([]string{"x"}, got.Data.Keys())

	foreign := *a
	foreign.UserID = s.other
	s.ErrorIs(s.store.Update(ctx, &foreign), sentinel.ErrNotFound)

	n, err := s.store.SoftDelete(ctx, s.owner, []id.AccountID{a.ID, b.ID}, s.now)
	s.Require().NoError(err)
	s.Equal(2, n)
	n, err = s.store.SoftDelete(ctx, s.owner, []id.AccountID{a.ID}, s.now)
	s.Require().NoError(err)
	s.Zero(n)

	found, err := s.store.FindByIDs(ctx, s.owner, []id.AccountID{a.ID, b.ID})
	s.Require().NoError(err)
	s.Empty(found)

	n, err = s.store.HardDelete(ctx, s.owner, []id.AccountID{a.ID})
	s.Require().NoError(err)
	s.Equal(1, n)
	_, err = s.store.FindByID(ctx, s.owner, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
