// Package events defines event types and structures for approval lifecycle
// notifications.
package events

import (
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
)

type EventType string

// Kafka topic for approval lifecycle events.
const Topic = "approvalflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RequestStartedEvent   EventType = "approval.request.started"
	RequestApprovedEvent  EventType = "approval.request.approved"
	RequestRejectedEvent  EventType = "approval.request.rejected"
	RequestCancelledEvent EventType = "approval.request.cancelled"
	StepApprovedEvent     EventType = "approval.step.approved"
)

type BaseEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	RequestID     string         `json:"request_id"`
	CompanyID     string         `json:"company_id"`
	ActivityType  string         `json:"activity_type"`
	ActivityID    string         `json:"activity_id"`
	ActivityTitle string         `json:"activity_title,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type RequestStarted struct {
	BaseEvent

	RequestorID string `json:"requestor_id"`
	TotalSteps  int    `json:"total_steps"`
}

func (e RequestStarted) GetType() EventType {
	return RequestStartedEvent
}

type RequestApproved struct {
	BaseEvent

	ApprovedBy string `json:"approved_by"`
}

func (e RequestApproved) GetType() EventType {
	return RequestApprovedEvent
}

type RequestRejected struct {
	BaseEvent

	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason,omitempty"`
}

func (e RequestRejected) GetType() EventType {
	return RequestRejectedEvent
}

type RequestCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

func (e RequestCancelled) GetType() EventType {
	return RequestCancelledEvent
}

type StepApproved struct {
	BaseEvent

	StepID    string `json:"step_id"`
	StepOrder int    `json:"step_order"`
	ActedBy   string `json:"acted_by"`

	// AutoApproved is true when the escalation sweeper acted, i.e. the actor
	// is the system identity.
	AutoApproved bool `json:"auto_approved"`

	NextStep int `json:"next_step"`
}

func (e StepApproved) GetType() EventType {
	return StepApprovedEvent
}

// NewBaseEvent builds the common envelope for a request's lifecycle events.
func NewBaseEvent(id string, eventType EventType, request *models.ApprovalRequest) BaseEvent {
	return BaseEvent{
		ID:            id,
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		RequestID:     request.ID,
		CompanyID:     request.CompanyID,
		ActivityType:  request.ActivityType,
		ActivityID:    request.ActivityID,
		ActivityTitle: request.ActivityTitle,
	}
}
