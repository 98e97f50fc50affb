package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// SecretBytes is the entropy of a generated terminal secret.
const SecretBytes = 20

// ErrInvalidSecretFormat indicates a secret that was not produced by GenerateSecret.
var ErrInvalidSecretFormat = errors.New("invalid secret format")

var secretFormat = regexp.MustCompile(`^pdv_[a-f0-9]{40}$`)

// GeneratedSecret holds a freshly generated account secret.
type GeneratedSecret struct {
	Plaintext string // shown once to the operator
	Hash      string // stored in sync_account.secret_hash
}

// GenerateSecret creates a random secret of the form pdv_<40 hex chars>
// together with its Argon2id hash.
func GenerateSecret() (*GeneratedSecret, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := "pdv_" + hex.EncodeToString(raw)

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	return &GeneratedSecret{Plaintext: plaintext, Hash: hash}, nil
}

// ValidateSecretFormat reports whether s looks like a generated secret.
// Accounts created with an operator supplied secret need not match it.
func ValidateSecretFormat(s string) bool {
	return secretFormat.MatchString(s)
}
