package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/model"
)

// Account repository errors.
var (
	ErrAccountExists = errors.New("account identifier already registered")
)

const accountColumns = `id, identifier, secret_hash, role, device_serial, name, created_at, revoked_at`

// CreateAccount inserts a new sync account.
func (r *Repository) CreateAccount(ctx context.Context, a *model.Account) error {
	ctx, span := startSpan(ctx, r.tracer, "CreateAccount")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO sync_account (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		a.ID,
		a.Identifier,
		a.SecretHash,
		a.Role,
		a.DeviceSerial,
		a.Name,
		a.CreatedAt,
		a.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountExists
		}
		recordError(span, err)
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// FindAccount returns the account registered under identifier, revoked or
// not. Unknown identifiers yield auth.ErrAccountNotFound.
func (r *Repository) FindAccount(ctx context.Context, identifier string) (*model.Account, error) {
	ctx, span := startSpan(ctx, r.tracer, "FindAccount")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM sync_account WHERE identifier = $1`, identifier)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("find account: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Account])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		recordError(span, err)
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account ordered by creation.
func (r *Repository) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM sync_account ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Account])
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// RevokeAccount marks the account as revoked.
func (r *Repository) RevokeAccount(ctx context.Context, identifier string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE sync_account
		SET revoked_at = $2
		WHERE identifier = $1 AND revoked_at IS NULL
	`, identifier, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}
