package models

// StepDefinition is one approval stage within a template. Order values are
// contiguous starting at 1.
type StepDefinition struct {
	ID        string       `json:"id"`
	Order     int          `json:"order"`
	Name      string       `json:"name"     validate:"required"`
	Approver  ApproverSpec `json:"approver" validate:"required"`
	Required  bool         `json:"required"`
	Skippable bool         `json:"skippable"`

	// AutoApproveAfterDays, when set, arms the escalation deadline counted
	// from the step snapshot's creation time. Nil disables auto-approval.
	AutoApproveAfterDays *int `json:"auto_approve_after_days,omitempty"`

	// Condition restricts the step to matching activities. Nil means the step
	// always applies.
	Condition *StepCondition `json:"condition,omitempty"`
}
