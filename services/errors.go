package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")

	// ErrStaleResponse is reported when a backend response arrives for an
	// entity that was deleted while the call was in flight.
	ErrStaleResponse = errors.New("entity deleted before backend response arrived")

	ErrInvalidTarget       = errors.New("invalid target")
	ErrEmptySelection      = errors.New("select at least one video and one target")
	ErrVideoNotProcessed   = errors.New("video has not been processed")
	ErrTargetNotRegistered = errors.New("target has not been registered")
	ErrDuplicateCrop       = errors.New("crop is a near duplicate of an existing crop")
)

// ReferenceError lists local ids that cannot be resolved to backend ids.
// It unwraps to ErrVideoNotProcessed or ErrTargetNotRegistered.
type ReferenceError struct {
	Kind error
	IDs  []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *ReferenceError) Unwrap() error {
	return e.Kind
}

// BackendError is returned for non-2xx responses of the re-identification
// service.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Op, e.Status, e.Body)
}
