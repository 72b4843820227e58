package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError lists the requested numbers that are no longer available.
type ConflictError struct {
	Numbers []int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("numbers no longer available: %v", e.Numbers)
}

type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// GatewayError wraps a failed call to the payment collaborator.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return "payment gateway: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// StateError reports an operation refused because of the target's current
// state.
type StateError struct {
	Resource string
	Status   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s", e.Resource, e.Status)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation recognises duplicate-key failures from postgres and
// from drivers that only report them textually.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint failed")
}
