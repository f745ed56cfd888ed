package models

import "time"

// RequestStatus represents the lifecycle state of an approval request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal requests never
// change again.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// StepStatus represents the state of one step within a request.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// SystemActorID identifies actions taken by the platform itself, such as
// deadline auto-approvals and the completion of requests whose steps were all
// skipped.
const SystemActorID = "system"

// ApprovalRequest is a running or completed instance of a workflow template.
// Its steps are a frozen snapshot taken at creation; CurrentStep indexes the
// sorted step slice, with -1 after the last actionable step.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"company_id"`
	ActivityType  string         `json:"activity_type"`
	ActivityID    string         `json:"activity_id"`
	ActivityTitle string         `json:"activity_title,omitempty"`
	RequestorID   string         `json:"requestor_id"`
	TemplateID    string         `json:"template_id"`
	CurrentStep   int            `json:"current_step"`
	TotalSteps    int            `json:"total_steps"`
	Status        RequestStatus  `json:"status"`
	Steps         []*RequestStep `json:"steps"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// StepAt returns the step at the given index, or nil when out of range.
func (r *ApprovalRequest) StepAt(index int) *RequestStep {
	if index < 0 || index >= len(r.Steps) {
		return nil
	}

	return r.Steps[index]
}

// NextActionableStep returns the index of the first pending step at or after
// from, or -1 when none remains.
func (r *ApprovalRequest) NextActionableStep(from int) int {
	for i := from; i < len(r.Steps); i++ {
		if i >= 0 && r.Steps[i].Status == StepStatusPending {
			return i
		}
	}

	return -1
}

// RequestStep is the frozen materialization of one step definition for one
// request. Exactly one of AssigneeID and AssigneeRole is set for actionable
// steps; role retention means any current holder may act, first action wins.
type RequestStep struct {
	ID           string       `json:"id"`
	RequestID    string       `json:"request_id"`
	Order        int          `json:"order"`
	Name         string       `json:"name"`
	Approver     ApproverSpec `json:"approver"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	AssigneeRole string       `json:"assignee_role,omitempty"`
	Required     bool         `json:"required"`
	Skippable    bool         `json:"skippable"`

	AutoApproveAfterDays *int `json:"auto_approve_after_days,omitempty"`

	Status   StepStatus `json:"status"`
	ActedBy  string     `json:"acted_by,omitempty"`
	ActedAt  *time.Time `json:"acted_at,omitempty"`
	Comments string     `json:"comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AutoApproveDeadline returns the moment the step becomes eligible for
// auto-approval, or the zero time when the step has no deadline.
func (s *RequestStep) AutoApproveDeadline() time.Time {
	if s.AutoApproveAfterDays == nil {
		return time.Time{}
	}

	return s.CreatedAt.Add(time.Duration(*s.AutoApproveAfterDays) * 24 * time.Hour)
}
