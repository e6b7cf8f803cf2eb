// Package errs holds error shapes shared by batch operations.
package errs

import (
	"errors"
	"fmt"
)

// ItemError names the batch item that aborted an all-or-nothing operation.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func NewItemError(id fmt.Stringer, err error) error {
	return &ItemError{ID: id.String(), Err: err}
}

// AsItemError extracts the failing item, if any.
func AsItemError(err error) (*ItemError, bool) {
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr, true
	}
	return nil, false
}
