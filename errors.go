package timeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey rejects an insertion under a key that is already present.
	// The state of the list is unchanged.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound rejects an update or replace of a key that is not present.
	// The state of the list is unchanged. Note that Remove never returns this:
	// removal of an absent key is a successful no-op.
	ErrNotFound = errors.New("key not found")
)

// KeyError reports the operation and key a business-level failure concerns.
// Use errors.Is with ErrDuplicateKey or ErrNotFound to classify it.
type KeyError struct {
	Op  string
	Key any
	Err error
}

func keyErrf(op string, key any, err error) error {
	return &KeyError{Op: op, Key: key, Err: err}
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Op, e.Key, e.Err)
}
