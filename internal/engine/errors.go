package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned by Authenticate for a bad email/password
// pair. The caller must not learn which of the two was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError reports the first rejected field of a payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// AuthorizationError means the identity lacks the required relation to the
// entity. Distinct from repo.ErrNotFound: the entity exists.
type AuthorizationError struct {
	Action string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s this task", e.Action)
}

// ConflictError reports a uniqueness violation, e.g. a taken email.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

func validationErr(field, message string) error {
	return ValidationError{Field: field, Message: message}
}
