// Package persistence provides the data storage abstraction for workflow
// templates and approval requests.
package persistence

import (
	"context"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	RequestRepository() RequestRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TemplateRepository stores workflow templates and their step definitions.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)

	// GetActiveDefault returns the active default template for the pair, or
	// ErrTemplateNotFound when none is configured.
	GetActiveDefault(ctx context.Context, companyID, activityType string) (*models.WorkflowTemplate, error)

	List(ctx context.Context, companyID, activityType string) ([]*models.WorkflowTemplate, error)

	// SetDefault atomically clears any previous default for the template's
	// (company, activity type) pair and marks the given template instead.
	SetDefault(ctx context.Context, companyID, activityType, templateID string) error

	Delete(ctx context.Context, id string) error
}

// RoleGrant names one role a person holds within one company.
type RoleGrant struct {
	CompanyID string
	Role      string
}

// PendingApproval joins a pending step with the owning request's denormalized
// activity metadata for approval-inbox listings.
type PendingApproval struct {
	RequestID     string              `json:"request_id"`
	CompanyID     string              `json:"company_id"`
	ActivityType  string              `json:"activity_type"`
	ActivityID    string              `json:"activity_id"`
	ActivityTitle string              `json:"activity_title"`
	RequestorID   string              `json:"requestor_id"`
	RequestedAt   time.Time           `json:"requested_at"`
	Step          *models.RequestStep `json:"step"`
}

// EscalationCandidate identifies a step whose auto-approval deadline passed.
type EscalationCandidate struct {
	RequestID string
	StepID    string
	StepOrder int
	Deadline  time.Time
}

// RequestRepository stores approval requests and their frozen step snapshots.
type RequestRepository interface {
	// Create persists a new request with its steps. It enforces the
	// one-pending-request-per-activity invariant and returns
	// ErrPendingRequestExists when violated.
	Create(ctx context.Context, request *models.ApprovalRequest) error

	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// GetLatestByActivity returns the most recently created request for the
	// activity, terminal or not, or ErrRequestNotFound.
	GetLatestByActivity(ctx context.Context, activityType, activityID string) (*models.ApprovalRequest, error)

	// TransitionStep is an atomic compare-and-set on the step status. When the
	// step is no longer in the from status the call fails with
	// ErrStepAlreadyActioned and no state changes; exactly one of two
	// concurrent callers wins.
	TransitionStep(ctx context.Context, requestID, stepID string, from, to models.StepStatus, actedBy, comments string, actedAt time.Time) error

	// UpdateStatus is an atomic compare-and-set on the request status,
	// failing with ErrRequestAlreadyCompleted when the request already left
	// the from status.
	UpdateStatus(ctx context.Context, requestID string, from, to models.RequestStatus, completedAt *time.Time) error

	SetCurrentStep(ctx context.Context, requestID string, currentStep int) error

	// ListPendingStepsForAssignee returns the current pending step of every
	// pending request assigned to the person directly or to one of the given
	// role grants.
	ListPendingStepsForAssignee(ctx context.Context, personID string, roles []RoleGrant) ([]*PendingApproval, error)

	// ListAutoApprovableSteps returns current pending steps of pending
	// requests whose auto-approval deadline is at or before now.
	ListAutoApprovableSteps(ctx context.Context, now time.Time) ([]*EscalationCandidate, error)
}
