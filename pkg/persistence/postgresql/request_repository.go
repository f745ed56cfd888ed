package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// RequestRepository handles approval request database operations. Step
// transitions are conditional updates keyed on the expected status, which
// makes them the compare-and-set the engine relies on.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

// Create inserts the request and its frozen steps. The partial unique index
// on pending requests per activity turns a duplicate pending request into
// ErrPendingRequestExists.
func (r *RequestRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	insertRequestSQL := `
		INSERT INTO approval_requests (id, company_id, activity_type, activity_id, activity_title, requestor_id, template_id, current_step, total_steps, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = tx.ExecContext(ctx, insertRequestSQL,
		request.ID, request.CompanyID, request.ActivityType, request.ActivityID,
		request.ActivityTitle, request.RequestorID, request.TemplateID,
		request.CurrentStep, request.TotalSteps, string(request.Status),
		request.CreatedAt, request.CompletedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: activity %s/%s", persistence.ErrPendingRequestExists,
				request.ActivityType, request.ActivityID)
		}

		return fmt.Errorf("failed to insert request: %w", err)
	}

	insertStepSQL := `
		INSERT INTO request_steps (id, request_id, order_num, name, approver_kind, approver_role, approver_person_id, assignee_id, assignee_role, required, skippable, auto_approve_after_days, status, acted_by, acted_at, comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	for _, step := range request.Steps {
		_, err = tx.ExecContext(ctx, insertStepSQL,
			step.ID, request.ID, step.Order, step.Name,
			string(step.Approver.Kind), step.Approver.Role, step.Approver.PersonID,
			step.AssigneeID, step.AssigneeRole, step.Required, step.Skippable,
			nullableInt(step.AutoApproveAfterDays), string(step.Status),
			step.ActedBy, step.ActedAt, step.Comments, step.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit request: %w", err)
	}

	return nil
}

// GetByID returns the request with its steps, or ErrRequestNotFound.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	row := r.db.QueryRowContext(ctx, requestSelectSQL+" WHERE id = $1", id)

	request, err := r.scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRequestNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	err = r.loadSteps(ctx, request)
	if err != nil {
		return nil, err
	}

	return request, nil
}

// GetLatestByActivity returns the most recently created request for the
// activity, terminal or not.
func (r *RequestRepository) GetLatestByActivity(ctx context.Context, activityType, activityID string) (*models.ApprovalRequest, error) {
	query := requestSelectSQL + `
		WHERE activity_type = $1 AND activity_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, activityType, activityID)

	request, err := r.scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: activity %s/%s", persistence.ErrRequestNotFound, activityType, activityID)
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	err = r.loadSteps(ctx, request)
	if err != nil {
		return nil, err
	}

	return request, nil
}

// TransitionStep is a conditional update keyed on the expected from status.
// Zero affected rows means another actor got there first.
func (r *RequestRepository) TransitionStep(ctx context.Context, requestID, stepID string, from, to models.StepStatus, actedBy, comments string, actedAt time.Time) error {
	updateSQL := `
		UPDATE request_steps
		SET status = $1, acted_by = $2, acted_at = $3, comments = $4
		WHERE id = $5 AND request_id = $6 AND status = $7
	`

	result, err := r.db.ExecContext(ctx, updateSQL,
		string(to), actedBy, actedAt, comments, stepID, requestID, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		var status string

		err = r.db.QueryRowContext(ctx,
			"SELECT status FROM request_steps WHERE id = $1 AND request_id = $2",
			stepID, requestID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s in request %s", persistence.ErrStepNotFound, stepID, requestID)
			}

			return fmt.Errorf("failed to check step status: %w", err)
		}

		return fmt.Errorf("%w: step %s is %s", persistence.ErrStepAlreadyActioned, stepID, status)
	}

	return nil
}

// UpdateStatus is a conditional update keyed on the expected from status.
func (r *RequestRepository) UpdateStatus(ctx context.Context, requestID string, from, to models.RequestStatus, completedAt *time.Time) error {
	updateSQL := `
		UPDATE approval_requests
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, updateSQL, string(to), completedAt, requestID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		var status string

		err = r.db.QueryRowContext(ctx,
			"SELECT status FROM approval_requests WHERE id = $1", requestID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", persistence.ErrRequestNotFound, requestID)
			}

			return fmt.Errorf("failed to check request status: %w", err)
		}

		return fmt.Errorf("%w: request %s is %s", persistence.ErrRequestAlreadyCompleted, requestID, status)
	}

	return nil
}

// SetCurrentStep moves the request's cursor to the given step index.
func (r *RequestRepository) SetCurrentStep(ctx context.Context, requestID string, currentStep int) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE approval_requests SET current_step = $1 WHERE id = $2", currentStep, requestID)
	if err != nil {
		return fmt.Errorf("failed to set current step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrRequestNotFound, requestID)
	}

	return nil
}

// ListPendingStepsForAssignee returns the current pending step of every
// pending request the person can act on. Direct assignment is matched in SQL;
// role assignments come back with the request's company and are filtered
// against the grants here.
func (r *RequestRepository) ListPendingStepsForAssignee(ctx context.Context, personID string, roles []persistence.RoleGrant) ([]*persistence.PendingApproval, error) {
	query := pendingStepSelectSQL + `
		WHERE req.status = 'pending'
		  AND s.status = 'pending'
		  AND s.order_num = req.current_step + 1
		  AND (s.assignee_id = $1 OR s.assignee_role <> '')
	`

	rows, err := r.db.QueryContext(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var approvals []*persistence.PendingApproval

	for rows.Next() {
		approval, err := r.scanPendingApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending step: %w", err)
		}

		if !assignedTo(approval, personID, roles) {
			continue
		}

		approvals = append(approvals, approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating pending steps: %w", err)
	}

	return approvals, nil
}

// ListAutoApprovableSteps returns current pending steps whose auto-approval
// deadline is at or before now.
func (r *RequestRepository) ListAutoApprovableSteps(ctx context.Context, now time.Time) ([]*persistence.EscalationCandidate, error) {
	query := `
		SELECT
			req.id
		  , s.id
		  , s.order_num
		  , s.created_at + make_interval(days => s.auto_approve_after_days) AS deadline
		FROM approval_requests req
		JOIN request_steps s ON s.request_id = req.id
		WHERE req.status = 'pending'
		  AND s.status = 'pending'
		  AND s.order_num = req.current_step + 1
		  AND s.auto_approve_after_days IS NOT NULL
		  AND s.created_at + make_interval(days => s.auto_approve_after_days) <= $1
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-approvable steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var candidates []*persistence.EscalationCandidate

	for rows.Next() {
		var candidate persistence.EscalationCandidate

		err := rows.Scan(&candidate.RequestID, &candidate.StepID, &candidate.StepOrder, &candidate.Deadline)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation candidate: %w", err)
		}

		candidates = append(candidates, &candidate)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating escalation candidates: %w", err)
	}

	return candidates, nil
}

const requestSelectSQL = `
	SELECT
		id
	  , company_id
	  , activity_type
	  , activity_id
	  , activity_title
	  , requestor_id
	  , template_id
	  , current_step
	  , total_steps
	  , status
	  , created_at
	  , completed_at
	FROM approval_requests
`

func (r *RequestRepository) scanRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var (
		request models.ApprovalRequest
		status  string
	)

	err := row.Scan(
		&request.ID,
		&request.CompanyID,
		&request.ActivityType,
		&request.ActivityID,
		&request.ActivityTitle,
		&request.RequestorID,
		&request.TemplateID,
		&request.CurrentStep,
		&request.TotalSteps,
		&status,
		&request.CreatedAt,
		&request.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	request.Status = models.RequestStatus(status)

	return &request, nil
}

func (r *RequestRepository) loadSteps(ctx context.Context, request *models.ApprovalRequest) error {
	query := `
		SELECT
			id
		  , request_id
		  , order_num
		  , name
		  , approver_kind
		  , approver_role
		  , approver_person_id
		  , assignee_id
		  , assignee_role
		  , required
		  , skippable
		  , auto_approve_after_days
		  , status
		  , acted_by
		  , acted_at
		  , comments
		  , created_at
		FROM request_steps
		WHERE request_id = $1
		ORDER BY order_num
	`

	rows, err := r.db.QueryContext(ctx, query, request.ID)
	if err != nil {
		return fmt.Errorf("failed to query request steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	request.Steps = make([]*models.RequestStep, 0)

	for rows.Next() {
		step, err := scanRequestStep(rows)
		if err != nil {
			return fmt.Errorf("failed to scan request step: %w", err)
		}

		request.Steps = append(request.Steps, step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating request steps: %w", err)
	}

	return nil
}

func scanRequestStep(row rowScanner) (*models.RequestStep, error) {
	var (
		step     models.RequestStep
		kind     string
		status   string
		autoDays sql.NullInt64
	)

	err := row.Scan(
		&step.ID,
		&step.RequestID,
		&step.Order,
		&step.Name,
		&kind,
		&step.Approver.Role,
		&step.Approver.PersonID,
		&step.AssigneeID,
		&step.AssigneeRole,
		&step.Required,
		&step.Skippable,
		&autoDays,
		&status,
		&step.ActedBy,
		&step.ActedAt,
		&step.Comments,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Approver.Kind = models.ApproverKind(kind)
	step.Status = models.StepStatus(status)
	step.AutoApproveAfterDays = intPointer(autoDays)

	return &step, nil
}

const pendingStepSelectSQL = `
	SELECT
		req.id
	  , req.company_id
	  , req.activity_type
	  , req.activity_id
	  , req.activity_title
	  , req.requestor_id
	  , req.created_at
	  , s.id
	  , s.request_id
	  , s.order_num
	  , s.name
	  , s.approver_kind
	  , s.approver_role
	  , s.approver_person_id
	  , s.assignee_id
	  , s.assignee_role
	  , s.required
	  , s.skippable
	  , s.auto_approve_after_days
	  , s.status
	  , s.acted_by
	  , s.acted_at
	  , s.comments
	  , s.created_at
	FROM approval_requests req
	JOIN request_steps s ON s.request_id = req.id
`

func (r *RequestRepository) scanPendingApproval(row rowScanner) (*persistence.PendingApproval, error) {
	var (
		approval persistence.PendingApproval
		step     models.RequestStep
		kind     string
		status   string
		autoDays sql.NullInt64
	)

	err := row.Scan(
		&approval.RequestID,
		&approval.CompanyID,
		&approval.ActivityType,
		&approval.ActivityID,
		&approval.ActivityTitle,
		&approval.RequestorID,
		&approval.RequestedAt,
		&step.ID,
		&step.RequestID,
		&step.Order,
		&step.Name,
		&kind,
		&step.Approver.Role,
		&step.Approver.PersonID,
		&step.AssigneeID,
		&step.AssigneeRole,
		&step.Required,
		&step.Skippable,
		&autoDays,
		&status,
		&step.ActedBy,
		&step.ActedAt,
		&step.Comments,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Approver.Kind = models.ApproverKind(kind)
	step.Status = models.StepStatus(status)
	step.AutoApproveAfterDays = intPointer(autoDays)
	approval.Step = &step

	return &approval, nil
}

func assignedTo(approval *persistence.PendingApproval, personID string, roles []persistence.RoleGrant) bool {
	step := approval.Step

	if step.AssigneeID != "" && step.AssigneeID == personID {
		return true
	}

	if step.AssigneeRole == "" {
		return false
	}

	for _, grant := range roles {
		if grant.CompanyID == approval.CompanyID && grant.Role == step.AssigneeRole {
			return true
		}
	}

	return false
}
