package file

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
)

// RequestRepository stores one JSON document per approval request (steps
// embedded) under <root>/requests.
type RequestRepository struct {
	persistence *Persistence
}

func (r *RequestRepository) dir() string {
	return filepath.Join(r.persistence.root, "requests")
}

func (r *RequestRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *RequestRepository) load(id string) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest

	found, err := r.persistence.readDocument(r.path(id), &request)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", persistence.ErrRequestNotFound, id)
	}

	return &request, nil
}

func (r *RequestRepository) loadAll() ([]*models.ApprovalRequest, error) {
	paths, err := r.persistence.listDocuments(r.dir())
	if err != nil {
		return nil, err
	}

	requests := make([]*models.ApprovalRequest, 0, len(paths))

	for _, path := range paths {
		var request models.ApprovalRequest

		found, err := r.persistence.readDocument(path, &request)
		if err != nil {
			return nil, err
		}

		if found {
			requests = append(requests, &request)
		}
	}

	return requests, nil
}

func (r *RequestRepository) Create(_ context.Context, request *models.ApprovalRequest) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	requests, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, existing := range requests {
		if existing.ActivityType == request.ActivityType &&
			existing.ActivityID == request.ActivityID &&
			existing.Status == models.RequestStatusPending {
			return fmt.Errorf("%w: request %s", persistence.ErrPendingRequestExists, existing.ID)
		}
	}

	return r.persistence.writeDocument(r.path(request.ID), request)
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.load(id)
}

func (r *RequestRepository) GetLatestByActivity(_ context.Context, activityType, activityID string) (*models.ApprovalRequest, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	requests, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var latest *models.ApprovalRequest

	for _, request := range requests {
		if request.ActivityType != activityType || request.ActivityID != activityID {
			continue
		}

		if latest == nil || request.CreatedAt.After(latest.CreatedAt) {
			latest = request
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("%w: activity %s/%s", persistence.ErrRequestNotFound, activityType, activityID)
	}

	return latest, nil
}

// TransitionStep is the compare-and-set: the whole read-check-write happens
// under the persistence lock, so of two concurrent callers exactly one finds
// the step still in the from status.
func (r *RequestRepository) TransitionStep(_ context.Context, requestID, stepID string, from, to models.StepStatus, actedBy, comments string, actedAt time.Time) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	request, err := r.load(requestID)
	if err != nil {
		return err
	}

	var step *models.RequestStep

	for _, candidate := range request.Steps {
		if candidate.ID == stepID {
			step = candidate

			break
		}
	}

	if step == nil {
		return fmt.Errorf("%w: %s in request %s", persistence.ErrStepNotFound, stepID, requestID)
	}

	if step.Status != from {
		return fmt.Errorf("%w: step %s is %s", persistence.ErrStepAlreadyActioned, stepID, step.Status)
	}

	step.Status = to
	step.ActedBy = actedBy
	step.ActedAt = &actedAt
	step.Comments = comments

	return r.persistence.writeDocument(r.path(requestID), request)
}

func (r *RequestRepository) UpdateStatus(_ context.Context, requestID string, from, to models.RequestStatus, completedAt *time.Time) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	request, err := r.load(requestID)
	if err != nil {
		return err
	}

	if request.Status != from {
		return fmt.Errorf("%w: request %s is %s", persistence.ErrRequestAlreadyCompleted, requestID, request.Status)
	}

	request.Status = to
	request.CompletedAt = completedAt

	return r.persistence.writeDocument(r.path(requestID), request)
}

func (r *RequestRepository) SetCurrentStep(_ context.Context, requestID string, currentStep int) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	request, err := r.load(requestID)
	if err != nil {
		return err
	}

	request.CurrentStep = currentStep

	return r.persistence.writeDocument(r.path(requestID), request)
}

func (r *RequestRepository) ListPendingStepsForAssignee(_ context.Context, personID string, roles []persistence.RoleGrant) ([]*persistence.PendingApproval, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	requests, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var approvals []*persistence.PendingApproval

	for _, request := range requests {
		if request.Status != models.RequestStatusPending {
			continue
		}

		step := request.StepAt(request.CurrentStep)
		if step == nil || step.Status != models.StepStatusPending {
			continue
		}

		if !stepAssignedTo(request, step, personID, roles) {
			continue
		}

		approvals = append(approvals, &persistence.PendingApproval{
			RequestID:     request.ID,
			CompanyID:     request.CompanyID,
			ActivityType:  request.ActivityType,
			ActivityID:    request.ActivityID,
			ActivityTitle: request.ActivityTitle,
			RequestorID:   request.RequestorID,
			RequestedAt:   request.CreatedAt,
			Step:          step,
		})
	}

	return approvals, nil
}

func stepAssignedTo(request *models.ApprovalRequest, step *models.RequestStep, personID string, roles []persistence.RoleGrant) bool {
	if step.AssigneeID != "" && step.AssigneeID == personID {
		return true
	}

	if step.AssigneeRole == "" {
		return false
	}

	for _, grant := range roles {
		if grant.CompanyID == request.CompanyID && grant.Role == step.AssigneeRole {
			return true
		}
	}

	return false
}

func (r *RequestRepository) ListAutoApprovableSteps(_ context.Context, now time.Time) ([]*persistence.EscalationCandidate, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	requests, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var candidates []*persistence.EscalationCandidate

	for _, request := range requests {
		if request.Status != models.RequestStatusPending {
			continue
		}

		step := request.StepAt(request.CurrentStep)
		if step == nil || step.Status != models.StepStatusPending {
			continue
		}

		deadline := step.AutoApproveDeadline()
		if deadline.IsZero() || deadline.After(now) {
			continue
		}

		candidates = append(candidates, &persistence.EscalationCandidate{
			RequestID: request.ID,
			StepID:    step.ID,
			StepOrder: step.Order,
			Deadline:  deadline,
		})
	}

	return candidates, nil
}
