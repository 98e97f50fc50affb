package service

import (
	"errors"
	"fmt"

	"github.com/openpdv/pdvhost/internal/query"
)

// Service errors.
var (
	// ErrNotFound means a single-row lookup matched nothing.
	ErrNotFound = errors.New("record not found")
	// ErrIntegrity means a single-row lookup matched more than one row.
	ErrIntegrity = errors.New("integrity violation: more than one record")
)

// CollaboratorError wraps a failure of the persistence or configuration
// layer. The cause is kept for logging and errors.Is.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// classify maps dispatcher errors to service errors.
func classify(op string, err error) error {
	var ve *query.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, query.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, query.ErrNotUnique):
		return fmt.Errorf("%s: %w", op, ErrIntegrity)
	case errors.As(err, &ve):
		return err
	default:
		return &CollaboratorError{Op: op, Err: err}
	}
}
