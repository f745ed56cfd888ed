package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateStore owns workflow definitions: named, ordered step lists per
// (company, activity type) with at most one default per pair. Step mutations
// never touch requests already snapshotted from the template.
type TemplateStore struct {
	persistence persistence.Persistence
}

func NewTemplateStore(persistence persistence.Persistence) *TemplateStore {
	return &TemplateStore{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *TemplateStore) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// GetActiveTemplate returns the active default template for the pair.
func (s *TemplateStore) GetActiveTemplate(ctx context.Context, companyID, activityType string) (*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().GetActiveDefault(ctx, companyID, activityType)
}

// GetTemplate returns one template by ID.
func (s *TemplateStore) GetTemplate(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().GetByID(ctx, id)
}

// ListTemplates returns templates for a company, optionally filtered by
// activity type.
func (s *TemplateStore) ListTemplates(ctx context.Context, companyID, activityType string) ([]*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().List(ctx, companyID, activityType)
}

// CreateTemplate persists a new template; step IDs and contiguous order values
// are assigned here. A template created with the default flag set is promoted
// atomically after the save.
func (s *TemplateStore) CreateTemplate(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	err := s.validateTemplate(template)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate template ID: %w", err)
	}

	now := time.Now().UTC()
	template.ID = id.String()
	template.CreatedAt = now
	template.UpdatedAt = now
	template.Active = true

	for _, step := range template.Steps {
		err := s.prepareStep(step)
		if err != nil {
			return nil, err
		}
	}

	template.RenumberSteps()

	wantDefault := template.Default
	template.Default = false

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	if wantDefault {
		err = s.persistence.TemplateRepository().SetDefault(ctx, template.CompanyID, template.ActivityType, template.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to set template as default: %w", err)
		}

		template.Default = true
	}

	return template, nil
}

// UpdateTemplate edits template metadata (name, description, active flag).
// Steps are managed through the step operations; requests created earlier keep
// their frozen snapshots regardless.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, id string, name, description *string, active *bool) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		template.Name = *name
	}

	if description != nil {
		template.Description = *description
	}

	if active != nil {
		template.Active = *active
	}

	err = s.validateTemplate(template)
	if err != nil {
		return nil, err
	}

	template.UpdatedAt = time.Now().UTC()

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// DeleteTemplate removes a template definition. Requests hold independent
// snapshots, so deletion is safe for them, but the active default cannot be
// removed until a replacement is promoted.
func (s *TemplateStore) DeleteTemplate(ctx context.Context, id string) error {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if template.Default && template.Active {
		return fmt.Errorf("%w: %s for company %s, activity type %q",
			ErrTemplateIsDefault, template.ID, template.CompanyID, template.ActivityType)
	}

	return s.persistence.TemplateRepository().Delete(ctx, id)
}

// SetAsDefault promotes a template to the single default of its (company,
// activity type) pair, clearing the previous default in the same operation.
func (s *TemplateStore) SetAsDefault(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !template.Active {
		return nil, fmt.Errorf("%w: %s", ErrTemplateInactive, template.ID)
	}

	err = s.persistence.TemplateRepository().SetDefault(ctx, template.CompanyID, template.ActivityType, template.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to set default: %w", err)
	}

	template.Default = true

	return template, nil
}

// AddStep inserts a step. An order within 1..N+1 inserts at that position;
// anything else appends. Orders stay contiguous.
func (s *TemplateStore) AddStep(ctx context.Context, templateID string, step *models.StepDefinition) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	err = s.prepareStep(step)
	if err != nil {
		return nil, err
	}

	template.SortSteps()

	position := step.Order - 1
	if position < 0 || position > len(template.Steps) {
		position = len(template.Steps)
	}

	steps := make([]*models.StepDefinition, 0, len(template.Steps)+1)
	steps = append(steps, template.Steps[:position]...)
	steps = append(steps, step)
	steps = append(steps, template.Steps[position:]...)
	template.Steps = steps
	template.RenumberSteps()

	return s.saveTemplate(ctx, template)
}

// UpdateStep replaces a step definition's fields, keeping its order.
func (s *TemplateStore) UpdateStep(ctx context.Context, templateID string, step *models.StepDefinition) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	existing := template.StepByID(step.ID)
	if existing == nil {
		return nil, fmt.Errorf("%w: %s in template %s", persistence.ErrStepNotFound, step.ID, templateID)
	}

	if step.Name == "" {
		return nil, ErrStepNameRequired
	}

	err = step.Approver.Validate()
	if err != nil {
		return nil, err
	}

	existing.Name = step.Name
	existing.Approver = step.Approver
	existing.Required = step.Required
	existing.Skippable = step.Skippable
	existing.AutoApproveAfterDays = step.AutoApproveAfterDays
	existing.Condition = step.Condition

	return s.saveTemplate(ctx, template)
}

// DeleteStep removes a step and renumbers the remainder contiguously.
func (s *TemplateStore) DeleteStep(ctx context.Context, templateID, stepID string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if template.StepByID(stepID) == nil {
		return nil, fmt.Errorf("%w: %s in template %s", persistence.ErrStepNotFound, stepID, templateID)
	}

	steps := make([]*models.StepDefinition, 0, len(template.Steps)-1)

	template.SortSteps()

	for _, step := range template.Steps {
		if step.ID != stepID {
			steps = append(steps, step)
		}
	}

	template.Steps = steps
	template.RenumberSteps()

	return s.saveTemplate(ctx, template)
}

// ReorderSteps applies a full ordered ID list. The ID set must exactly match
// the template's current steps; orders are reassigned contiguously 1..N.
func (s *TemplateStore) ReorderSteps(ctx context.Context, templateID string, orderedStepIDs []string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if len(orderedStepIDs) != len(template.Steps) {
		return nil, fmt.Errorf("%w: got %d IDs, template has %d steps",
			ErrStepSetMismatch, len(orderedStepIDs), len(template.Steps))
	}

	seen := make(map[string]bool, len(orderedStepIDs))
	steps := make([]*models.StepDefinition, 0, len(orderedStepIDs))

	for _, id := range orderedStepIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate step ID %s", ErrStepSetMismatch, id)
		}

		seen[id] = true

		step := template.StepByID(id)
		if step == nil {
			return nil, fmt.Errorf("%w: unknown step ID %s", ErrStepSetMismatch, id)
		}

		steps = append(steps, step)
	}

	template.Steps = steps
	template.RenumberSteps()

	return s.saveTemplate(ctx, template)
}

func (s *TemplateStore) saveTemplate(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	template.UpdatedAt = time.Now().UTC()

	err := s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

func (s *TemplateStore) validateTemplate(template *models.WorkflowTemplate) error {
	if template.Name == "" {
		return ErrTemplateNameRequired
	}

	if template.CompanyID == "" {
		return ErrCompanyRequired
	}

	if template.ActivityType == "" {
		return ErrActivityTypeRequired
	}

	return nil
}

func (s *TemplateStore) prepareStep(step *models.StepDefinition) error {
	if step.Name == "" {
		return ErrStepNameRequired
	}

	err := step.Approver.Validate()
	if err != nil {
		return err
	}

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	return nil
}
