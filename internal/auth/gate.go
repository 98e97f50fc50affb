package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openpdv/pdvhost/internal/model"
)

var (
	// ErrAccountNotFound is returned by an AccountStore for unknown identifiers.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnavailable means the account registry could not be consulted. It
	// says nothing about the credential.
	ErrUnavailable = errors.New("account registry unavailable")
)

// Kind classifies authorization failures.
type Kind int

const (
	// Unauthorized means the credential is missing or invalid.
	Unauthorized Kind = iota + 1
	// Forbidden means the identity is valid but lacks the required role.
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// AuthError is returned by Gate.Authorize. Reason is for logs only and is
// never sent to the client.
type AuthError struct {
	Kind   Kind
	Reason string
}

func (e *AuthError) Error() string {
	return e.Kind.String() + ": " + e.Reason
}

// IsKind reports whether err is an AuthError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == k
}

// AccountStore looks up accounts by identifier.
type AccountStore interface {
	FindAccount(ctx context.Context, identifier string) (*model.Account, error)
}

// Gate validates credentials against the account registry.
// It keeps no state between calls.
type Gate struct {
	store  AccountStore
	logger *slog.Logger
}

// NewGate creates a Gate backed by store.
func NewGate(store AccountStore, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// Authorize checks that cred identifies an active account whose secret
// matches and whose role satisfies required. Rejections are *AuthError; a
// failing store yields an error wrapping ErrUnavailable.
func (g *Gate) Authorize(ctx context.Context, cred model.Credential, required string) (*model.Principal, error) {
	if cred.IsEmpty() {
		return nil, &AuthError{Kind: Unauthorized, Reason: "missing credential"}
	}

	account, err := g.store.FindAccount(ctx, cred.Identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, &AuthError{Kind: Unauthorized, Reason: "unknown identifier"}
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if account == nil {
		return nil, &AuthError{Kind: Unauthorized, Reason: "unknown identifier"}
	}
	if account.IsRevoked() {
		return nil, &AuthError{Kind: Unauthorized, Reason: "account revoked"}
	}

	ok, err := VerifySecret(cred.Secret, account.SecretHash)
	if err != nil {
		g.logger.Error("stored secret hash is unusable",
			"account_id", account.ID,
			"error", err,
		)
		return nil, &AuthError{Kind: Unauthorized, Reason: "invalid stored hash"}
	}
	if !ok {
		return nil, &AuthError{Kind: Unauthorized, Reason: "secret mismatch"}
	}

	if !account.HasRole(required) {
		return nil, &AuthError{Kind: Forbidden, Reason: "role " + account.Role + " lacks " + required}
	}

	p := &model.Principal{
		AccountID:  account.ID,
		Identifier: account.Identifier,
		Role:       account.Role,
	}
	if account.DeviceSerial != nil {
		p.DeviceSerial = *account.DeviceSerial
	}
	return p, nil
}
