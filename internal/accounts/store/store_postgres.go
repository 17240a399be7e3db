package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"accman/internal/accounts/codec"
	"accman/internal/accounts/models"
	id "accman/pkg/domain"
	"accman/pkg/platform/sentinel"
	"accman/pkg/platform/tx"
)

// PostgresStore persists accounts in PostgreSQL. Field data lives in a json
// column, which keeps key order as written.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	accountColumns     = `id, user_id, name, data, status, created_at, updated_at`
	accountColumnCount = 7
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	return s.CreateMany(ctx, []*models.Account{account})
}

// insertBatchRows keeps one INSERT under PostgreSQL's 65535 bind parameter limit.
const insertBatchRows = 65535 / accountColumnCount

// CreateMany inserts accounts in multi-row statements of at most
// insertBatchRows rows. The batch is all-or-nothing: it joins the transaction
// in ctx, or opens its own when more than one statement is needed.
func (s *PostgresStore) CreateMany(ctx context.Context, accounts []*models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	if _, ok := tx.From(ctx); ok || len(accounts) <= insertBatchRows {
		return s.insertChunks(ctx, tx.Use(ctx, s.db), accounts)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert accounts: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()
	if err := s.insertChunks(ctx, sqlTx, accounts); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit insert accounts: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertChunks(ctx context.Context, q tx.Querier, accounts []*models.Account) error {
	for start := 0; start < len(accounts); start += insertBatchRows {
		end := min(start+insertBatchRows, len(accounts))
		query, args := insertAccountsQuery(accounts[start:end])
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert accounts: %w", sentinel.ErrConflict)
			}
			return fmt.Errorf("insert accounts: %w", err)
		}
	}
	return nil
}

func insertAccountsQuery(accounts []*models.Account) (string, []any) {
	var (
		sb   strings.Builder
		args = make([]any, 0, len(accounts)*accountColumnCount)
	)
	sb.WriteString(`INSERT INTO accounts (` + accountColumns + `) VALUES `)
	for i, a := range accounts {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * accountColumnCount
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, uuid.UUID(a.ID), uuid.UUID(a.UserID), a.Name, a.Data, string(a.Status), a.CreatedAt, a.UpdatedAt)
	}
	return sb.String(), args
}

func (s *PostgresStore) Update(ctx context.Context, account *models.Account) error {
	res, err := tx.Use(ctx, s.db).ExecContext(ctx, `
		UPDATE accounts SET name = $3, data = $4, status = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`, uuid.UUID(account.ID), uuid.UUID(account.UserID), account.Name, account.Data, string(account.Status), account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID, accountID id.AccountID) (*models.Account, error) {
	row := tx.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`,
		uuid.UUID(accountID), uuid.UUID(userID))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// Search mirrors models.SearchQuery.Matches in SQL.
func (s *PostgresStore) Search(ctx context.Context, userID id.UserID, query models.SearchQuery, page models.Page) ([]*models.Account, error) {
	where := []string{"user_id = $1"}
	args := []any{uuid.UUID(userID)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !query.IncludeDeleted {
		where = append(where, "status = "+arg(string(models.StatusActive)))
	}
	if len(query.AccountIDs) > 0 {
		where = append(where, "id = ANY("+arg(pq.Array(idStrings(query.AccountIDs)))+"::uuid[])")
	}
	if query.Name != "" {
		if query.ExactMatch {
			where = append(where, "name = "+arg(query.Name))
		} else {
			where = append(where, "strpos(name, "+arg(query.Name)+") > 0")
		}
	}
	if query.Details != "" {
		p := arg(query.Details)
		where = append(where, `EXISTS (SELECT 1 FROM json_each_text(data) f WHERE strpos(f.key, `+p+`) > 0 OR strpos(f.value, `+p+`) > 0)`)
	}

	stmt := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name, id`
	if page.Size > 0 {
		stmt += " LIMIT " + arg(page.Size) + " OFFSET " + arg(page.Offset())
	}

	rows, err := tx.Use(ctx, s.db).QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, userID id.UserID, ids []id.AccountID) ([]*models.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Search(ctx, userID, models.SearchQuery{AccountIDs: ids}, models.Page{})
}

func (s *PostgresStore) SoftDelete(ctx context.Context, userID id.UserID, ids []id.AccountID, now time.Time) (int, error) {
	res, err := tx.Use(ctx, s.db).ExecContext(ctx, `
		UPDATE accounts SET status = $3, updated_at = $4
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND status = $5
	`, uuid.UUID(userID), pq.Array(idStrings(ids)), string(models.StatusDeleted), now, string(models.StatusActive))
	if err != nil {
		return 0, fmt.Errorf("soft delete accounts: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) HardDelete(ctx context.Context, userID id.UserID, ids []id.AccountID) (int, error) {
	res, err := tx.Use(ctx, s.db).ExecContext(ctx,
		`DELETE FROM accounts WHERE user_id = $1 AND id = ANY($2::uuid[])`,
		uuid.UUID(userID), pq.Array(idStrings(ids)))
	if err != nil {
		return 0, fmt.Errorf("delete accounts: %w", err)
	}
	return affected(res)
}

func idStrings(ids []id.AccountID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a              models.Account
		accountID, uid uuid.UUID
		status         string
		data           codec.Fields
	)
	if err := row.Scan(&accountID, &uid, &a.Name, &data, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AccountID(accountID)
	a.UserID = id.UserID(uid)
	a.Status = models.Status(status)
	a.Data = &data
	return &a, nil
}
