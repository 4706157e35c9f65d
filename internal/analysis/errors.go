package analysis

import (
	"errors"
	"fmt"
)

// ErrRateLimited marks a throttled call. It is the only retryable condition.
var ErrRateLimited = errors.New("analysis rate limited")

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("analysis returned no content")

// Error is a failed call to the text-analysis capability.
type Error struct {
	Provider    string
	Status      int // HTTP status observed on the wire, 0 if none
	RateLimited bool
	Err         error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s analysis failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s analysis failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrRateLimited for throttled calls.
func (e *Error) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}

// IsRateLimited reports whether err signals throttling.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
