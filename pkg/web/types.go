// Package web provides HTTP request and response types for the approval API.
package web

import "github.com/bizbooks/approvalflow/pkg/models"

// CreateTemplateRequest represents the request body for creating a workflow
// template. Steps are optional; they can also be added one at a time.
type CreateTemplateRequest struct {
	ActivityType string               `json:"activity_type" validate:"required"`
	Name         string               `json:"name"          validate:"required,min=3"`
	Description  string               `json:"description"`
	Default      bool                 `json:"default"`
	Steps        []StepDefinitionBody `json:"steps"         validate:"omitempty,dive"`
}

// UpdateTemplateRequest represents the request body for editing template
// metadata. All fields are optional to support partial updates.
type UpdateTemplateRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// StepDefinitionBody represents one step definition in template and step
// requests.
type StepDefinitionBody struct {
	Order     int                 `json:"order"`
	Name      string              `json:"name"     validate:"required"`
	Approver  models.ApproverSpec `json:"approver" validate:"required"`
	Required  bool                `json:"required"`
	Skippable bool                `json:"skippable"`

	AutoApproveAfterDays *int                  `json:"auto_approve_after_days,omitempty"`
	Condition            *models.StepCondition `json:"condition,omitempty"`
}

// ToModel converts the body into a step definition.
func (b StepDefinitionBody) ToModel() *models.StepDefinition {
	return &models.StepDefinition{
		Order:                b.Order,
		Name:                 b.Name,
		Approver:             b.Approver,
		Required:             b.Required,
		Skippable:            b.Skippable,
		AutoApproveAfterDays: b.AutoApproveAfterDays,
		Condition:            b.Condition,
	}
}

// ReorderStepsRequest represents the full ordered step ID list for a reorder.
type ReorderStepsRequest struct {
	StepIDs []string `json:"step_ids" validate:"required,min=1"`
}

// StartRequestBody represents the activity submitted for approval.
type StartRequestBody struct {
	CompanyID    string         `json:"company_id"    validate:"required"`
	ActivityType string         `json:"activity_type" validate:"required"`
	ActivityID   string         `json:"activity_id"   validate:"required"`
	Title        string         `json:"title"`
	RequestorID  string         `json:"requestor_id"  validate:"required"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// ToActivity converts the body into the engine's activity value.
func (b StartRequestBody) ToActivity() models.Activity {
	return models.Activity{
		CompanyID:    b.CompanyID,
		ActivityType: b.ActivityType,
		ActivityID:   b.ActivityID,
		Title:        b.Title,
		RequestorID:  b.RequestorID,
		Attributes:   b.Attributes,
	}
}

// ApproveRequestBody identifies the approver acting on the current step.
type ApproveRequestBody struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Comments   string `json:"comments"`
}

// RejectRequestBody identifies the approver and the mandatory reason.
type RejectRequestBody struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Reason     string `json:"reason"      validate:"required"`
}

// CancelRequestBody identifies the requestor withdrawing the request.
type CancelRequestBody struct {
	RequestorID string `json:"requestor_id" validate:"required"`
	Reason      string `json:"reason"`
}
