package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
)

// TemplateRepository handles workflow template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Save upserts the template row and rewrites its step definitions in one
// transaction.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	upsertSQL := `
		INSERT INTO workflow_templates (id, company_id, activity_type, name, description, active, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, upsertSQL,
		template.ID, template.CompanyID, template.ActivityType,
		template.Name, template.Description, template.Active, template.Default,
		template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM template_steps WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to clear template steps: %w", err)
	}

	insertStepSQL := `
		INSERT INTO template_steps (template_id, id, order_num, name, approver_kind, approver_role, approver_person_id, required, skippable, auto_approve_after_days, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, step := range template.Steps {
		var condition []byte

		if step.Condition != nil {
			condition, err = json.Marshal(step.Condition)
			if err != nil {
				return fmt.Errorf("failed to marshal condition for step %s: %w", step.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, insertStepSQL,
			template.ID, step.ID, step.Order, step.Name,
			string(step.Approver.Kind), step.Approver.Role, step.Approver.PersonID,
			step.Required, step.Skippable, nullableInt(step.AutoApproveAfterDays), condition)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}

	return nil
}

// GetByID returns a template with its steps, or ErrTemplateNotFound.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx, templateSelectSQL+" WHERE id = $1", id)

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrTemplateNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	err = r.loadSteps(ctx, template)
	if err != nil {
		return nil, err
	}

	return template, nil
}

// GetActiveDefault returns the single active default template for the pair.
func (r *TemplateRepository) GetActiveDefault(ctx context.Context, companyID, activityType string) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		templateSelectSQL+" WHERE company_id = $1 AND activity_type = $2 AND active AND is_default",
		companyID, activityType)

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active default for company %s, activity type %q",
				persistence.ErrTemplateNotFound, companyID, activityType)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	err = r.loadSteps(ctx, template)
	if err != nil {
		return nil, err
	}

	return template, nil
}

// List returns a company's templates, optionally filtered by activity type.
func (r *TemplateRepository) List(ctx context.Context, companyID, activityType string) ([]*models.WorkflowTemplate, error) {
	query := templateSelectSQL + `
		WHERE company_id = $1 AND ($2 = '' OR activity_type = $2)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, companyID, activityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	for _, template := range templates {
		err = r.loadSteps(ctx, template)
		if err != nil {
			return nil, err
		}
	}

	return templates, nil
}

// SetDefault clears the previous default of the pair and marks the given
// template, in one transaction.
func (r *TemplateRepository) SetDefault(ctx context.Context, companyID, activityType, templateID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	clearSQL := `
		UPDATE workflow_templates SET is_default = false, updated_at = NOW()
		WHERE company_id = $1 AND activity_type = $2 AND is_default AND id <> $3
	`

	_, err = tx.ExecContext(ctx, clearSQL, companyID, activityType, templateID)
	if err != nil {
		return fmt.Errorf("failed to clear previous default: %w", err)
	}

	markSQL := `
		UPDATE workflow_templates SET is_default = true, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND activity_type = $3
	`

	result, err := tx.ExecContext(ctx, markSQL, templateID, companyID, activityType)
	if err != nil {
		return fmt.Errorf("failed to mark default: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s does not belong to company %s, activity type %q",
			persistence.ErrTemplateNotFound, templateID, companyID, activityType)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit default swap: %w", err)
	}

	return nil
}

// Delete removes the template; steps cascade.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrTemplateNotFound, id)
	}

	return nil
}

const templateSelectSQL = `
	SELECT
		id
	  , company_id
	  , activity_type
	  , name
	  , description
	  , active
	  , is_default
	  , created_at
	  , updated_at
	FROM workflow_templates
`

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	err := row.Scan(
		&template.ID,
		&template.CompanyID,
		&template.ActivityType,
		&template.Name,
		&template.Description,
		&template.Active,
		&template.Default,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, template *models.WorkflowTemplate) error {
	query := `
		SELECT
			id
		  , order_num
		  , name
		  , approver_kind
		  , approver_role
		  , approver_person_id
		  , required
		  , skippable
		  , auto_approve_after_days
		  , condition
		FROM template_steps
		WHERE template_id = $1
		ORDER BY order_num
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query template steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	template.Steps = make([]*models.StepDefinition, 0)

	for rows.Next() {
		var (
			step      models.StepDefinition
			kind      string
			autoDays  sql.NullInt64
			condition []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.Order,
			&step.Name,
			&kind,
			&step.Approver.Role,
			&step.Approver.PersonID,
			&step.Required,
			&step.Skippable,
			&autoDays,
			&condition,
		)
		if err != nil {
			return fmt.Errorf("failed to scan template step: %w", err)
		}

		step.Approver.Kind = models.ApproverKind(kind)
		step.AutoApproveAfterDays = intPointer(autoDays)

		if len(condition) > 0 {
			step.Condition = &models.StepCondition{}

			err = json.Unmarshal(condition, step.Condition)
			if err != nil {
				return fmt.Errorf("failed to parse condition for step %s: %w", step.ID, err)
			}
		}

		template.Steps = append(template.Steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating template steps: %w", err)
	}

	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPointer(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}

	value := int(v.Int64)

	return &value
}
