// Package common holds the error values, logging setup, retry helper and
// address handling shared by every layer.
package common

import (
	"errors"
	"fmt"
)

// Storage errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// External source errors.
var (
	ErrExplorerUnavailable = errors.New("block explorer request failed")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrUnknownToken        = errors.New("token not recognized by price source")
)

// Pipeline input errors. Each marks a stage that has nothing to work on.
var (
	ErrNoTransactions = errors.New("no transactions stored")
	ErrNoAddresses    = errors.New("no owned addresses registered")
	ErrNoClassified   = errors.New("no classified transactions")
	ErrNoGains        = errors.New("no capital gains calculated")
	ErrNoGainsForYear = errors.New("no capital gains in requested year")
)

// ErrInvariantViolation marks corrupted lot state. It is never recovered from.
var ErrInvariantViolation = errors.New("invariant violation")

// Configuration errors.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError carries a message meant for the terminal alongside the cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.UserMessage
	}
	return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a message for the user.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}
