package hotstorage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the point query has no matching record. It is a
	// normal negative result, not a fault.
	ErrNotFound = errors.New("hotstorage: record not found")
	// ErrMultipleRecords is returned by a backing store query matching more
	// than one record.
	ErrMultipleRecords = errors.New("hotstorage: query matched multiple records")
	// ErrListingUnsupported is returned by Warm when the backing store cannot
	// enumerate its records.
	ErrListingUnsupported = errors.New("hotstorage: backing store does not support listing")
)

// BackingStoreError wraps a failed authoritative operation. It is always
// returned to the caller and no cache operation follows it.
type BackingStoreError struct {
	Op  string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("hotstorage: backing store %s: %v", e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// OnErrorFunc receives cache failures that are not returned to the caller,
// such as a failed index reconciliation after a successful save.
type OnErrorFunc func(ctx context.Context, err error)
