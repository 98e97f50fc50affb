package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/repository"
	"github.com/openpdv/pdvhost/migrations"
)

// store is the part of the repository the CLI writes to.
type store interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	ListAccounts(ctx context.Context) ([]*model.Account, error)
	RevokeAccount(ctx context.Context, identifier string) error
	PutSetting(ctx context.Context, key, value string) error
	DailyStats(ctx context.Context, since time.Time) ([]model.SyncDailyStat, error)
	Close()
}

// env holds the side-effecting dependencies of the commands.
type env struct {
	openStore    func(ctx context.Context, databaseURL string) (store, error)
	openMigrator func(databaseURL string) (migrations.Migrator, error)
	now          func() time.Time
}

func defaultEnv() env {
	return env{
		openStore: func(ctx context.Context, databaseURL string) (store, error) {
			return repository.New(ctx, databaseURL, repository.Options{MaxConns: 2, MinConns: 1})
		},
		openMigrator: migrations.New,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var errDatabaseURL = errors.New("database url is required (--database-url or DATABASE_URL)")

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:           "hostctl",
		Short:         "OpenPDV host administration",
		Long:          `hostctl manages the host database schema, the accounts terminals sync with, the fiscal sequence seed and reports the sync audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout for database operations")

	root.AddCommand(newMigrateCmd(e))
	root.AddCommand(newAccountCmd(e))
	root.AddCommand(newSeedCmd(e))
	root.AddCommand(newAuditCmd(e))
	return root
}

func databaseURL(cmd *cobra.Command) (string, error) {
	url, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", errDatabaseURL
	}
	return url, nil
}

// withStore opens the repository for the duration of fn.
func withStore(cmd *cobra.Command, e env, fn func(ctx context.Context, s store) error) error {
	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s, err := e.openStore(ctx, url)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer s.Close()

	return fn(ctx, s)
}
