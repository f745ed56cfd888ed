// Package resolver turns abstract approver specifications into concrete
// assignees at request-creation time. After materialization the engine never
// branches on the approver kind again; the snapshot carries either a person
// assignee or a role assignment.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/google/uuid"
)

// ErrApproverUnresolvable indicates a non-skippable step has no possible
// approver (requestor without a manager, role without holders). This is a
// configuration error: the workflow must fail to start.
var ErrApproverUnresolvable = errors.New("approver cannot be resolved")

// IsApproverUnresolvable checks if an error indicates an unresolvable approver.
func IsApproverUnresolvable(err error) bool {
	return errors.Is(err, ErrApproverUnresolvable)
}

type Resolver struct {
	directory directory.Directory
	logger    *slog.Logger
}

func NewResolver(logger *slog.Logger, dir directory.Directory) *Resolver {
	return &Resolver{
		directory: dir,
		logger:    logger.With("module", "resolver"),
	}
}

// Resolve maps one step definition to a concrete assignee for the activity.
// Exactly one of the returned assignee ID and role is non-empty on success.
// A skippable step whose approver does not exist resolves to two empty
// strings and a nil error; the caller materializes it as skipped.
func (r *Resolver) Resolve(ctx context.Context, step *models.StepDefinition, activity models.Activity) (assigneeID, assigneeRole string, err error) {
	switch step.Approver.Kind {
	case models.ApproverKindPerson:
		return step.Approver.PersonID, "", nil

	case models.ApproverKindRole:
		holders, err := r.directory.RoleHolders(ctx, activity.CompanyID, step.Approver.Role)
		if err != nil {
			return "", "", fmt.Errorf("failed to look up role holders: %w", err)
		}

		if len(holders) == 0 {
			if step.Skippable {
				return "", "", nil
			}

			return "", "", fmt.Errorf("%w: role %q has no holders in company %s",
				ErrApproverUnresolvable, step.Approver.Role, activity.CompanyID)
		}

		if len(holders) == 1 {
			return holders[0], "", nil
		}

		// More than one holder: keep the role assignment, first action wins.
		return "", step.Approver.Role, nil

	case models.ApproverKindManager:
		manager, err := r.directory.ManagerOf(ctx, activity.CompanyID, activity.RequestorID)
		if err != nil {
			return "", "", fmt.Errorf("failed to look up manager: %w", err)
		}

		if manager == "" {
			if step.Skippable {
				return "", "", nil
			}

			return "", "", fmt.Errorf("%w: requestor %s has no manager",
				ErrApproverUnresolvable, activity.RequestorID)
		}

		return manager, "", nil

	default:
		return "", "", fmt.Errorf("%w: unknown approver kind %q", models.ErrInvalidApproverSpec, step.Approver.Kind)
	}
}

// Materialize builds the frozen step snapshot for a new request: conditions
// are evaluated against the activity attributes exactly once, approvers are
// resolved, and every step gets a fresh identity.
func (r *Resolver) Materialize(ctx context.Context, template *models.WorkflowTemplate, activity models.Activity, now time.Time) ([]*models.RequestStep, error) {
	template.SortSteps()

	steps := make([]*models.RequestStep, 0, len(template.Steps))

	for _, definition := range template.Steps {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate step ID: %w", err)
		}

		step := &models.RequestStep{
			ID:                   id.String(),
			Order:                definition.Order,
			Name:                 definition.Name,
			Approver:             definition.Approver,
			Required:             definition.Required,
			Skippable:            definition.Skippable,
			AutoApproveAfterDays: definition.AutoApproveAfterDays,
			Status:               models.StepStatusPending,
			CreatedAt:            now,
		}

		applies, err := definition.Condition.Evaluate(activity.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate condition for step %q: %w", definition.Name, err)
		}

		if !applies {
			step.Status = models.StepStatusSkipped
			steps = append(steps, step)

			continue
		}

		assigneeID, assigneeRole, err := r.Resolve(ctx, definition, activity)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve approver for step %q: %w", definition.Name, err)
		}

		if assigneeID == "" && assigneeRole == "" {
			// Skippable step with no possible approver.
			r.logger.InfoContext(ctx, "Skipping step with no resolvable approver",
				"step", definition.Name, "activity_type", activity.ActivityType, "activity_id", activity.ActivityID)

			step.Status = models.StepStatusSkipped
			steps = append(steps, step)

			continue
		}

		step.AssigneeID = assigneeID
		step.AssigneeRole = assigneeRole
		steps = append(steps, step)
	}

	return steps, nil
}
