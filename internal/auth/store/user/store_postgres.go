package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"accman/internal/auth/models"
	id "accman/pkg/domain"
	"accman/pkg/platform/sentinel"
	"accman/pkg/platform/tx"
)

// PostgresUserStore persists users in PostgreSQL. An empty email is stored as
// NULL so the unique constraint only applies to real addresses.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, username, email, password_hash, is_active, is_superuser, is_verified, created_at`

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	_, err := tx.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(user.ID), user.Username, sql.NullString{String: user.Email, Valid: user.Email != ""},
		user.PasswordHash, user.IsActive, user.IsSuperuser, user.IsVerified, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(userID))
}

func (s *PostgresUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, `WHERE username = $1`, username)
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

// FindByLogin matches login against the username first, then the email.
func (s *PostgresUserStore) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.findOne(ctx, `WHERE username = $1::text OR lower(email) = lower($1::text) ORDER BY (username = $1::text) DESC LIMIT 1`, login)
}

func (s *PostgresUserStore) SetActive(ctx context.Context, userID id.UserID, active bool) error {
	res, err := tx.Use(ctx, s.db).ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, uuid.UUID(userID), active)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresUserStore) findOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	var (
		u     models.User
		uid   uuid.UUID
		email sql.NullString
	)
	err := tx.Use(ctx, s.db).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, args...).
		Scan(&uid, &u.Username, &email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser, &u.IsVerified, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID = id.UserID(uid)
	u.Email = email.String
	return &u, nil
}
