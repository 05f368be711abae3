// Package kvstore provides the string key/value port that backs the storefront's persisted records,
// with in-memory, Pebble, Firestore and DynamoDB implementations.
package kvstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kvstore: store is closed")

// Store persists opaque string values under string keys.
type Store interface {
	// Get returns the stored value and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Deleter is implemented by backends that can remove a key. Deleting a missing key is not an error.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can check connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Error classifies backend failures using repository semantics.
type Error struct {
	op          string
	key         string
	err         error
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.key != "" {
		return fmt.Sprintf("%s %q: %v", e.op, e.key, e.err)
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound is always false: missing keys are reported through Get's found flag.
func (e *Error) IsNotFound() bool { return false }

// IsConflict reports whether the error represents a conflicting update.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the backend could not serve the request.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{op: op, key: key, err: err, unavailable: true}
}

func validateKey(op, key string) error {
	if key == "" {
		return &Error{op: op, err: errors.New("key is required")}
	}
	return nil
}
