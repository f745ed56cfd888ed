// Package models defines the core domain models for multi-step approval
// workflows.
package models

import (
	"sort"
	"time"
)

// WorkflowTemplate is a named, ordered list of approval step definitions for
// one (company, activity type) pair. At most one template per pair is the
// active default used for new requests; requests snapshot the steps at
// creation and never see later template edits.
type WorkflowTemplate struct {
	ID           string            `json:"id"`
	CompanyID    string            `json:"company_id"    validate:"required"`
	ActivityType string            `json:"activity_type" validate:"required"`
	Name         string            `json:"name"          validate:"required,min=3"`
	Description  string            `json:"description"`
	Active       bool              `json:"active"`
	Default      bool              `json:"default"`
	Steps        []*StepDefinition `json:"steps"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StepByID returns the step definition with the given ID, or nil.
func (t *WorkflowTemplate) StepByID(id string) *StepDefinition {
	for _, step := range t.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// SortSteps orders the steps by their order value.
func (t *WorkflowTemplate) SortSteps() {
	sort.SliceStable(t.Steps, func(i, j int) bool {
		return t.Steps[i].Order < t.Steps[j].Order
	})
}

// RenumberSteps reassigns contiguous 1..N order values following the current
// slice order.
func (t *WorkflowTemplate) RenumberSteps() {
	for i, step := range t.Steps {
		step.Order = i + 1
	}
}
