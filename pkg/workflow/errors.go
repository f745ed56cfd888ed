// Package workflow provides standardized error types for engine operations.
package workflow

import (
	"errors"

	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/resolver"
)

// Configuration errors fail StartWorkflow before any state is created.
var (
	// ErrInvalidActivity indicates the inbound activity is missing required
	// identity fields.
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrNoHandler indicates no completion handler is registered for the
	// activity type. A workflow that can never notify its domain module must
	// not be started.
	ErrNoHandler = errors.New("no handler registered for activity type")

	// ErrNoActiveTemplate indicates no active default template exists for the
	// (company, activity type) pair.
	ErrNoActiveTemplate = errors.New("no active workflow template")
)

// State errors fail the specific operation and leave state unchanged.
var (
	// ErrRequestNotPending indicates an action on a request that already
	// reached a terminal state.
	ErrRequestNotPending = errors.New("request is not pending")

	// ErrNotAuthorized indicates the actor is not an assignee of the current
	// step and holds none of its assigned roles.
	ErrNotAuthorized = errors.New("actor is not authorized for the current step")

	// ErrNotRequestor indicates a cancel attempt by someone other than the
	// original requestor.
	ErrNotRequestor = errors.New("only the requestor may cancel the request")
)

// ErrHandlerFailed indicates the domain handler failed after a terminal
// transition was durably committed. The workflow decision is authoritative and
// is not rolled back; the domain module must reconcile and retry.
var ErrHandlerFailed = errors.New("activity handler failed after terminal transition")

// IsConfigurationError checks for errors that fail StartWorkflow before any
// state exists.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidActivity) ||
		errors.Is(err, ErrNoHandler) ||
		errors.Is(err, ErrNoActiveTemplate) ||
		resolver.IsApproverUnresolvable(err)
}

// IsStateError checks for operations invalid in the current state.
func IsStateError(err error) bool {
	return errors.Is(err, ErrRequestNotPending) ||
		errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrNotRequestor)
}

// IsConflictError checks for lost concurrent races on one step or request.
func IsConflictError(err error) bool {
	return persistence.IsStepAlreadyActioned(err) ||
		persistence.IsRequestAlreadyCompleted(err) ||
		persistence.IsPendingRequestExists(err)
}

// IsHandlerFailure checks whether a terminal transition committed but the
// domain callback failed.
func IsHandlerFailure(err error) bool {
	return errors.Is(err, ErrHandlerFailed)
}
