package workflow_test

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRequest persists a pending request directly so step creation times can
// be backdated past their auto-approval deadlines.
func (f *engineFixture) seedRequest(t *testing.T, activityID string, createdAt time.Time, steps ...*models.RequestStep) *models.ApprovalRequest {
	t.Helper()

	request := &models.ApprovalRequest{
		ID:            "req-" + activityID,
		CompanyID:     "acme",
		ActivityType:  "expense",
		ActivityID:    activityID,
		ActivityTitle: "Team offsite",
		RequestorID:   "alice",
		TemplateID:    "tpl-1",
		CurrentStep:   0,
		TotalSteps:    len(steps),
		Status:        models.RequestStatusPending,
		Steps:         steps,
		CreatedAt:     createdAt,
	}

	for i, step := range steps {
		step.ID = fmt.Sprintf("%s-step-%d", request.ID, i+1)
		step.RequestID = request.ID
		step.Order = i + 1
		step.Status = models.StepStatusPending
		step.CreatedAt = createdAt
	}

	require.NoError(t, f.persistence.RequestRepository().Create(t.Context(), request))

	return request
}

func TestSweeper_SweepApprovesOverdueSteps(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	sweeper := workflow.NewSweeper(slog.Default(), fixture.engine, fixture.persistence)

	twoDays := 2

	overdue := fixture.seedRequest(t, "exp-overdue", time.Now().UTC().Add(-72*time.Hour),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob", AutoApproveAfterDays: &twoDays})

	fixture.seedRequest(t, "exp-fresh", time.Now().UTC(),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob", AutoApproveAfterDays: &twoDays})

	fixture.seedRequest(t, "exp-no-deadline", time.Now().UTC().Add(-72*time.Hour),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob"})

	approved, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)

	swept, err := fixture.engine.GetRequestStatus(t.Context(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, swept.Status)
	assert.Equal(t, models.SystemActorID, swept.Steps[0].ActedBy)
	assert.True(t, strings.HasPrefix(swept.Steps[0].Comments, "Auto-approved: no action before deadline "))

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "approved", calls[0].method)
	assert.Equal(t, models.SystemActorID, calls[0].actorID)

	// The untouched requests are still waiting on their approvers.
	for _, activityID := range []string{"exp-fresh", "exp-no-deadline"} {
		status, err := fixture.engine.GetActivityApprovalStatus(t.Context(), "expense", activityID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, status.Status)
	}

	// A second pass finds nothing left.
	approved, err = sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestSweeper_SweepAdvancesMidRequest(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	sweeper := workflow.NewSweeper(slog.Default(), fixture.engine, fixture.persistence)

	twoDays := 2

	request := fixture.seedRequest(t, "exp-multi", time.Now().UTC().Add(-72*time.Hour),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob", AutoApproveAfterDays: &twoDays},
		&models.RequestStep{Name: "Finance review", AssigneeID: "carol"})

	approved, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)

	loaded, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentStep)
	assert.Equal(t, models.StepStatusApproved, loaded.Steps[0].Status)
	assert.Equal(t, models.StepStatusPending, loaded.Steps[1].Status)
	assert.Empty(t, fixture.handler.recorded())
}

func TestSweeper_CandidateApprovedByHumanLosesRace(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	sweeper := workflow.NewSweeper(slog.Default(), fixture.engine, fixture.persistence)

	twoDays := 2

	request := fixture.seedRequest(t, "exp-race", time.Now().UTC().Add(-72*time.Hour),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob", AutoApproveAfterDays: &twoDays},
		&models.RequestStep{Name: "Finance review", AssigneeID: "carol"})

	// The candidate list is read once per pass; the assignee acts after the
	// listing but before the system actor gets to the candidate.
	candidates, err := fixture.persistence.RequestRepository().ListAutoApprovableSteps(t.Context(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	_, err = fixture.engine.Approve(t.Context(), request.ID, "bob", "")
	require.NoError(t, err)

	_, err = fixture.engine.ApproveStep(t.Context(),
		candidates[0].RequestID, candidates[0].StepID, models.SystemActorID, "stale sweep")
	require.ErrorIs(t, err, persistence.ErrStepAlreadyActioned)

	// The deadline-less second step is untouched and the request still waits
	// on its assignee.
	loaded, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentStep)
	assert.Equal(t, "bob", loaded.Steps[0].ActedBy)
	assert.Equal(t, models.StepStatusPending, loaded.Steps[1].Status)
	assert.Empty(t, fixture.handler.recorded())

	// A full pass after the human's approval finds nothing to escalate.
	approved, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestSweeper_SweepCountsHandlerFailures(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	sweeper := workflow.NewSweeper(slog.Default(), fixture.engine, fixture.persistence)

	twoDays := 2

	request := fixture.seedRequest(t, "exp-overdue", time.Now().UTC().Add(-72*time.Hour),
		&models.RequestStep{Name: "Manager approval", AssigneeID: "bob", AutoApproveAfterDays: &twoDays})

	fixture.handler.fail = errors.New("downstream unavailable")

	approved, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)

	loaded, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, loaded.Status)
}
