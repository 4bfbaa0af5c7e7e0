package logic

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateTransaction = errors.New("transaction hash already recorded")
	ErrIncompleteEvidence   = errors.New("evidence hash and verifier must be set together")
	ErrOverclaimDetected    = errors.New("claimed interest exceeds pending amount")
	ErrNotFound             = errors.New("record not found")
	ErrForbidden            = errors.New("operation not permitted for this user")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrAlreadyExists        = errors.New("record already exists")
)

// ValidationError 输入格式错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError 判断是否为输入格式错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
