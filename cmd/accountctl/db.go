package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	authservice "accman/internal/auth/service"
	"accman/internal/auth/store/revocation"
	"accman/internal/auth/store/user"
	jwttoken "accman/internal/jwt_token"
	"accman/internal/platform/config"
	"accman/internal/platform/postgres"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema at DATABASE_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func usersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users in the database at DATABASE_URL",
	}
	cmd.AddCommand(setActiveCommand("block", false), setActiveCommand("unblock", true))
	return cmd
}

// setActiveCommand blocks or unblocks a user. Blocked users cannot sign in
// and their open sessions stop resolving.
func setActiveCommand(name string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: name + " a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			cfg := config.FromEnv()
			svc := authservice.New(user.NewPostgres(db), revocation.NewPostgresTRL(db),
				jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL),
				authservice.WithLogger(slog.New(slog.DiscardHandler)),
			)
			if err := svc.SetActive(ctx, args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %sed\n", args[0], name)
			return nil
		},
	}
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	db, err := postgres.Open(ctx, config.FromEnv().Database)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return db, nil
}
