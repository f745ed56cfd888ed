// Package workflow implements the approval request engine: a linear,
// multi-step state machine created from a template snapshot and advanced to
// exactly one terminal state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/eventbus"
	"github.com/bizbooks/approvalflow/pkg/events"
	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/otelhelper"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/registry"
	"github.com/bizbooks/approvalflow/pkg/resolver"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bizbooks/approvalflow/pkg/workflow"

type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	resolver    *resolver.Resolver
	directory   directory.Directory
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
}

// NewEngine wires the request engine. The event bus is optional; a nil bus
// disables lifecycle event publication.
func NewEngine(
	logger *slog.Logger,
	persistence persistence.Persistence,
	handlerRegistry *registry.Registry,
	stepResolver *resolver.Resolver,
	dir directory.Directory,
	eventBus eventbus.EventBus,
) *Engine {
	return &Engine{
		logger:      logger.With("module", "engine"),
		persistence: persistence,
		registry:    handlerRegistry,
		resolver:    stepResolver,
		directory:   dir,
		eventBus:    eventBus,
		tracer:      otel.Tracer(tracerName),
	}
}

// StartWorkflow creates a new approval request for the activity from the
// active template's frozen snapshot. Configuration errors (no handler, no
// template, unresolvable approver) fail before any state is created. When
// every step is skipped by its condition the request completes immediately as
// approved by the system actor.
func (e *Engine) StartWorkflow(ctx context.Context, activity models.Activity) (*models.ApprovalRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start_workflow",
		attribute.String(otelhelper.CompanyIDKey, activity.CompanyID),
		attribute.String(otelhelper.ActivityTypeKey, activity.ActivityType),
		attribute.String(otelhelper.ActivityIDKey, activity.ActivityID),
	)
	defer span.End()

	if activity.CompanyID == "" || activity.ActivityType == "" || activity.ActivityID == "" || activity.RequestorID == "" {
		return nil, fmt.Errorf("%w: company, activity type, activity ID and requestor are required", ErrInvalidActivity)
	}

	if !e.registry.HasHandler(activity.ActivityType) {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, activity.ActivityType)
	}

	latest, err := e.persistence.RequestRepository().GetLatestByActivity(ctx, activity.ActivityType, activity.ActivityID)
	if err != nil && !persistence.IsRequestNotFound(err) {
		return nil, fmt.Errorf("failed to check for existing request: %w", err)
	}

	if latest != nil && latest.Status == models.RequestStatusPending {
		return nil, fmt.Errorf("%w: request %s", persistence.ErrPendingRequestExists, latest.ID)
	}

	template, err := e.persistence.TemplateRepository().GetActiveDefault(ctx, activity.CompanyID, activity.ActivityType)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return nil, fmt.Errorf("%w for company %s, activity type %q",
				ErrNoActiveTemplate, activity.CompanyID, activity.ActivityType)
		}

		return nil, fmt.Errorf("failed to load active template: %w", err)
	}

	now := time.Now().UTC()

	steps, err := e.resolver.Materialize(ctx, template, activity, now)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request ID: %w", err)
	}

	request := &models.ApprovalRequest{
		ID:            id.String(),
		CompanyID:     activity.CompanyID,
		ActivityType:  activity.ActivityType,
		ActivityID:    activity.ActivityID,
		ActivityTitle: activity.Title,
		RequestorID:   activity.RequestorID,
		TemplateID:    template.ID,
		CurrentStep:   firstActionableStep(steps),
		TotalSteps:    len(steps),
		Status:        models.RequestStatusPending,
		Steps:         steps,
		CreatedAt:     now,
	}

	for _, step := range steps {
		step.RequestID = request.ID
	}

	err = e.persistence.RequestRepository().Create(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.RequestIDKey, request.ID))

	e.logger.InfoContext(ctx, "Started approval workflow",
		"request_id", request.ID,
		"activity_type", request.ActivityType,
		"activity_id", request.ActivityID,
		"total_steps", request.TotalSteps)

	e.publish(ctx, request.ID, events.RequestStarted{
		BaseEvent:   e.baseEvent(events.RequestStartedEvent, request),
		RequestorID: request.RequestorID,
		TotalSteps:  request.TotalSteps,
	})

	if request.CurrentStep < 0 {
		// Every step was skipped by its condition; nothing to approve.
		err = e.finalize(ctx, request, models.RequestStatusApproved, models.SystemActorID, "")
		if err != nil {
			return request, err
		}
	}

	return request, nil
}

// Approve marks the current step approved on behalf of approverID and advances
// the request. The step transition is an atomic compare-and-set: of two
// concurrent callers exactly one wins and the loser receives a conflict error.
// When the last step approves, the request transitions to approved and the
// domain handler is invoked; a handler failure is surfaced but the approved
// state stands.
func (e *Engine) Approve(ctx context.Context, requestID, approverID, comments string) (*models.ApprovalRequest, error) {
	return e.approve(ctx, requestID, "", approverID, comments)
}

// ApproveStep approves only while stepID is still the request's current step.
// Callers acting on a step they observed earlier, like the escalation
// sweeper, use this so a request that advanced in the meantime yields a
// conflict instead of an approval landing on the wrong step.
func (e *Engine) ApproveStep(ctx context.Context, requestID, stepID, approverID, comments string) (*models.ApprovalRequest, error) {
	return e.approve(ctx, requestID, stepID, approverID, comments)
}

func (e *Engine) approve(ctx context.Context, requestID, expectedStepID, approverID, comments string) (*models.ApprovalRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.approve",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ActorIDKey, approverID),
	)
	defer span.End()

	request, step, err := e.loadActionable(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}

	if expectedStepID != "" && step.ID != expectedStepID {
		return nil, fmt.Errorf("%w: step %s of request %s", persistence.ErrStepAlreadyActioned,
			expectedStepID, request.ID)
	}

	now := time.Now().UTC()

	err = e.persistence.RequestRepository().TransitionStep(ctx, request.ID, step.ID,
		models.StepStatusPending, models.StepStatusApproved, approverID, comments, now)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))

		return nil, err
	}

	step.Status = models.StepStatusApproved
	step.ActedBy = approverID
	step.ActedAt = &now
	step.Comments = comments

	next := request.NextActionableStep(request.CurrentStep + 1)

	e.publish(ctx, request.ID, events.StepApproved{
		BaseEvent:    e.baseEvent(events.StepApprovedEvent, request),
		StepID:       step.ID,
		StepOrder:    step.Order,
		ActedBy:      approverID,
		AutoApproved: approverID == models.SystemActorID,
		NextStep:     next,
	})

	if next < 0 {
		err = e.finalize(ctx, request, models.RequestStatusApproved, approverID, "")
		if err != nil {
			return request, err
		}

		return request, nil
	}

	err = e.persistence.RequestRepository().SetCurrentStep(ctx, request.ID, next)
	if err != nil {
		return nil, fmt.Errorf("failed to advance current step: %w", err)
	}

	request.CurrentStep = next

	e.logger.InfoContext(ctx, "Approved step",
		"request_id", request.ID, "step_order", step.Order, "acted_by", approverID, "next_step", next)

	return request, nil
}

// Reject marks the current step rejected and immediately transitions the
// request to rejected. Subsequent unactioned steps remain pending, untouched;
// a reject is terminal regardless of which step it occurs on.
func (e *Engine) Reject(ctx context.Context, requestID, approverID, reason string) (*models.ApprovalRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.reject",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ActorIDKey, approverID),
	)
	defer span.End()

	request, step, err := e.loadActionable(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	err = e.persistence.RequestRepository().TransitionStep(ctx, request.ID, step.ID,
		models.StepStatusPending, models.StepStatusRejected, approverID, reason, now)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))

		return nil, err
	}

	step.Status = models.StepStatusRejected
	step.ActedBy = approverID
	step.ActedAt = &now
	step.Comments = reason

	err = e.finalize(ctx, request, models.RequestStatusRejected, approverID, reason)
	if err != nil {
		return request, err
	}

	return request, nil
}

// Cancel transitions a pending request to cancelled. Only the original
// requestor may cancel; no step mutation is required.
func (e *Engine) Cancel(ctx context.Context, requestID, requestorID, reason string) (*models.ApprovalRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.cancel",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ActorIDKey, requestorID),
	)
	defer span.End()

	request, err := e.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusPending {
		return nil, fmt.Errorf("%w: request %s is %s", ErrRequestNotPending, request.ID, request.Status)
	}

	if request.RequestorID != requestorID {
		return nil, fmt.Errorf("%w: request %s belongs to %s", ErrNotRequestor, request.ID, request.RequestorID)
	}

	err = e.finalize(ctx, request, models.RequestStatusCancelled, requestorID, reason)
	if err != nil {
		return request, err
	}

	return request, nil
}

// GetRequestStatus returns the request with its fresh step list.
func (e *Engine) GetRequestStatus(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	return e.persistence.RequestRepository().GetByID(ctx, requestID)
}

// GetActivityApprovalStatus returns the most recent request for the activity.
// There is at most one non-terminal request, but historical terminal ones may
// exist from prior cycles.
func (e *Engine) GetActivityApprovalStatus(ctx context.Context, activityType, activityID string) (*models.ApprovalRequest, error) {
	return e.persistence.RequestRepository().GetLatestByActivity(ctx, activityType, activityID)
}

// GetPendingApprovalsForUser returns, across all companies the person has
// access to, every actionable pending step assigned to them directly or via a
// role they hold, joined with the owning request's activity metadata.
func (e *Engine) GetPendingApprovalsForUser(ctx context.Context, personID string) ([]*persistence.PendingApproval, error) {
	grants, err := e.directory.RolesOf(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up roles: %w", err)
	}

	roles := make([]persistence.RoleGrant, 0, len(grants))
	for _, grant := range grants {
		roles = append(roles, persistence.RoleGrant{CompanyID: grant.CompanyID, Role: grant.Role})
	}

	return e.persistence.RequestRepository().ListPendingStepsForAssignee(ctx, personID, roles)
}

// loadActionable loads a pending request, locates its current step, and checks
// the actor may act on it.
func (e *Engine) loadActionable(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, *models.RequestStep, error) {
	request, err := e.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	if request.Status != models.RequestStatusPending {
		return nil, nil, fmt.Errorf("%w: request %s is %s", ErrRequestNotPending, request.ID, request.Status)
	}

	step := request.StepAt(request.CurrentStep)
	if step == nil {
		return nil, nil, fmt.Errorf("request %s has no step at index %d", request.ID, request.CurrentStep)
	}

	err = e.authorize(ctx, request, step, actorID)
	if err != nil {
		return nil, nil, err
	}

	return request, step, nil
}

func (e *Engine) authorize(ctx context.Context, request *models.ApprovalRequest, step *models.RequestStep, actorID string) error {
	if actorID == models.SystemActorID {
		return nil
	}

	if step.AssigneeID != "" && step.AssigneeID == actorID {
		return nil
	}

	if step.AssigneeRole != "" {
		holds, err := e.directory.HasRole(ctx, request.CompanyID, actorID, step.AssigneeRole)
		if err != nil {
			return fmt.Errorf("failed to check role membership: %w", err)
		}

		if holds {
			return nil
		}
	}

	return fmt.Errorf("%w: %s on step %d of request %s", ErrNotAuthorized, actorID, step.Order, request.ID)
}

// finalize commits the terminal transition, then dispatches the domain
// handler. The transition is durable before dispatch: a handler failure does
// not roll it back and is surfaced as ErrHandlerFailed for the caller to
// retry or alert on.
func (e *Engine) finalize(ctx context.Context, request *models.ApprovalRequest, to models.RequestStatus, actorID, reason string) error {
	now := time.Now().UTC()

	err := e.persistence.RequestRepository().UpdateStatus(ctx, request.ID,
		models.RequestStatusPending, to, &now)
	if err != nil {
		return err
	}

	request.Status = to
	request.CompletedAt = &now

	e.logger.InfoContext(ctx, "Request reached terminal state",
		"request_id", request.ID, "status", to, "actor", actorID)

	switch to {
	case models.RequestStatusApproved:
		e.publish(ctx, request.ID, events.RequestApproved{
			BaseEvent:  e.baseEvent(events.RequestApprovedEvent, request),
			ApprovedBy: actorID,
		})
	case models.RequestStatusRejected:
		e.publish(ctx, request.ID, events.RequestRejected{
			BaseEvent:  e.baseEvent(events.RequestRejectedEvent, request),
			RejectedBy: actorID,
			Reason:     reason,
		})
	case models.RequestStatusCancelled:
		e.publish(ctx, request.ID, events.RequestCancelled{
			BaseEvent:   e.baseEvent(events.RequestCancelledEvent, request),
			CancelledBy: actorID,
			Reason:      reason,
		})
	}

	return e.dispatch(ctx, request, to, actorID, reason)
}

// dispatch invokes exactly one domain callback for the terminal transition.
func (e *Engine) dispatch(ctx context.Context, request *models.ApprovalRequest, to models.RequestStatus, actorID, reason string) error {
	handler, err := e.registry.GetHandler(request.ActivityType)
	if err != nil {
		// StartWorkflow verified registration; losing the handler afterwards
		// is a process wiring defect, reported like any handler failure.
		e.logger.ErrorContext(ctx, "Handler disappeared before terminal dispatch",
			"request_id", request.ID, "activity_type", request.ActivityType, "error", err)

		return fmt.Errorf("%w: %s", ErrHandlerFailed, err.Error())
	}

	switch to {
	case models.RequestStatusApproved:
		err = handler.OnApproved(ctx, request.ActivityID, actorID)
	case models.RequestStatusRejected:
		err = handler.OnRejected(ctx, request.ActivityID, actorID, reason)
	case models.RequestStatusCancelled:
		err = handler.OnCancelled(ctx, request.ActivityID, actorID, reason)
	}

	if err != nil {
		e.logger.ErrorContext(ctx, "Activity handler failed after terminal transition",
			"request_id", request.ID,
			"activity_type", request.ActivityType,
			"activity_id", request.ActivityID,
			"status", to,
			"error", err)

		return fmt.Errorf("%w: %s", ErrHandlerFailed, err.Error())
	}

	return nil
}

func (e *Engine) baseEvent(eventType events.EventType, request *models.ApprovalRequest) events.BaseEvent {
	id := ""
	if e.eventBus != nil {
		id = e.eventBus.GenerateID()
	}

	return events.NewBaseEvent(id, eventType, request)
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

func firstActionableStep(steps []*models.RequestStep) int {
	for i, step := range steps {
		if step.Status != models.StepStatusSkipped {
			return i
		}
	}

	return -1
}
