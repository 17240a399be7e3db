package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"accman/internal/accounts/service"
	accountstore "accman/internal/accounts/store"
	authservice "accman/internal/auth/service"
	"accman/internal/auth/store/revocation"
	userstore "accman/internal/auth/store/user"
	"accman/internal/platform/config"
	"accman/internal/platform/postgres"
	"accman/internal/platform/redis"
	"accman/pkg/platform/tx"
)

// revocationList is a TokenRevocationList that can drop expired entries.
type revocationList interface {
	authservice.TokenRevocationList
	PurgeExpired(ctx context.Context) (int64, error)
}

// stores holds the storage backends picked from config. PostgreSQL backs
// users and accounts when DATABASE_URL is set; the revocation list prefers
// Redis, then PostgreSQL, then memory.
type stores struct {
	db          *sql.DB
	redis       *redis.Client
	accounts    service.AccountStore
	users       authservice.UserStore
	revocations revocationList
	tx          tx.Runner
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		s.accounts = accountstore.NewPostgres(db)
		s.users = userstore.NewPostgres(db)
		s.tx = tx.NewPostgres(db)
		logger.InfoContext(ctx, "using postgres storage")
	} else {
		s.accounts = accountstore.NewInMemory()
		s.users = userstore.New()
		s.tx = tx.NewMemory()
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory storage")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	switch {
	case client != nil:
		s.redis = client
		s.revocations = revocation.NewRedisTRL(client.Client)
	case db != nil:
		s.revocations = revocation.NewPostgresTRL(db)
	default:
		s.revocations = revocation.NewInMemoryTRL(time.Now)
	}
	return s, nil
}

// purgeRevocations drops expired revocation entries every interval until ctx
// is done.
func (s *stores) purgeRevocations(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.revocations.PurgeExpired(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "purged revoked tokens", "count", n)
			}
		}
	}
}

func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
