// Package persistence provides standardized error types for persistence operations.
package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates no template matched the given identifier
	// or (company, activity type) pair.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrRequestNotFound indicates an approval request was not found.
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrStepNotFound indicates a request step was not found.
	ErrStepNotFound = errors.New("request step not found")

	// ErrPendingRequestExists indicates a pending request already exists for
	// the activity. Starting a second workflow must fail, never replace it.
	ErrPendingRequestExists = errors.New("pending approval request already exists for activity")

	// ErrStepAlreadyActioned indicates the step compare-and-set lost to a
	// concurrent action on the same step.
	ErrStepAlreadyActioned = errors.New("step already actioned")

	// ErrRequestAlreadyCompleted indicates the request status compare-and-set
	// found the request already in a terminal state.
	ErrRequestAlreadyCompleted = errors.New("request already completed")
)

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsRequestNotFound checks if an error indicates a missing request.
func IsRequestNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// IsStepNotFound checks if an error indicates a missing step.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsPendingRequestExists checks if an error indicates the one-pending-request
// invariant was violated.
func IsPendingRequestExists(err error) bool {
	return errors.Is(err, ErrPendingRequestExists)
}

// IsStepAlreadyActioned checks if an error indicates a lost step race.
func IsStepAlreadyActioned(err error) bool {
	return errors.Is(err, ErrStepAlreadyActioned)
}

// IsRequestAlreadyCompleted checks if an error indicates the request already
// reached a terminal state.
func IsRequestAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrRequestAlreadyCompleted)
}
