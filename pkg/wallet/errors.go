package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected     = errors.New("wallet not connected")
	ErrUserRejected     = errors.New("cancelled by user")
	ErrNoAccounts       = errors.New("wallet returned no accounts")
	ErrDuplicateAdapter = errors.New("adapter already registered")
	ErrUnknownAdapter   = errors.New("unknown wallet adapter")
)

// ConfigurationError reports a missing required setting.
type ConfigurationError struct {
	Adapter string
	Key     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s wallet: missing required configuration %s", e.Adapter, e.Key)
}

// InitializationError wraps an SDK failure during Initialize.
type InitializationError struct {
	Adapter string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s wallet initialization failed: %v", e.Adapter, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// NotConnectedError is returned by operations that need a live session.
type NotConnectedError struct {
	Adapter string
}

func (e *NotConnectedError) Error() string {
	if e.Adapter == "" {
		return ErrNotConnected.Error()
	}
	return fmt.Sprintf("%s: %s", e.Adapter, ErrNotConnected.Error())
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// UserRejectedError means the user declined a prompt in the wallet UI.
type UserRejectedError struct {
	Op  string
	Err error
}

func (e *UserRejectedError) Error() string { return ErrUserRejected.Error() }

func (e *UserRejectedError) Unwrap() error { return e.Err }

func (e *UserRejectedError) Is(target error) bool { return target == ErrUserRejected }

// SigningError is any non-rejection failure from a signing or sending call.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// NetworkMismatchError refuses a connection left on the wrong chain.
type NetworkMismatchError struct {
	Expected int64
	Actual   int64
	Err      error
}

func (e *NetworkMismatchError) Error() string {
	msg := fmt.Sprintf("wallet is on chain %d, expected chain %d", e.Actual, e.Expected)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkMismatchError) Unwrap() error { return e.Err }

var rejectionPatterns = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"denied by user",
	"user cancelled",
	"user canceled",
	"cancelled by user",
	"canceled by user",
	"request rejected",
	"user closed",
}

// IsRejection reports whether err carries the EIP-1193 4001 code or a
// message matching a known rejection phrase.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rejectionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Classify maps a raw wallet error to UserRejectedError or SigningError.
// Already classified errors and context errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		rejected *UserRejectedError
		signing  *SigningError
		mismatch *NetworkMismatchError
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &signing), errors.As(err, &mismatch),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case IsRejection(err):
		return &UserRejectedError{Op: op, Err: err}
	default:
		return &SigningError{Op: op, Err: err}
	}
}
