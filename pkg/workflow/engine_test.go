package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/persistence/file"
	"github.com/bizbooks/approvalflow/pkg/registry"
	"github.com/bizbooks/approvalflow/pkg/resolver"
	"github.com/bizbooks/approvalflow/pkg/services"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerCall struct {
	method     string
	activityID string
	actorID    string
	reason     string
}

// recordingHandler records every terminal callback and can be told to fail.
type recordingHandler struct {
	mu    sync.Mutex
	calls []handlerCall
	fail  error
}

func (h *recordingHandler) OnApproved(_ context.Context, activityID, approvedBy string) error {
	h.record(handlerCall{method: "approved", activityID: activityID, actorID: approvedBy})
	return h.fail
}

func (h *recordingHandler) OnRejected(_ context.Context, activityID, rejectedBy, reason string) error {
	h.record(handlerCall{method: "rejected", activityID: activityID, actorID: rejectedBy, reason: reason})
	return h.fail
}

func (h *recordingHandler) OnCancelled(_ context.Context, activityID, cancelledBy, reason string) error {
	h.record(handlerCall{method: "cancelled", activityID: activityID, actorID: cancelledBy, reason: reason})
	return h.fail
}

func (h *recordingHandler) record(call handlerCall) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, call)
}

func (h *recordingHandler) recorded() []handlerCall {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]handlerCall(nil), h.calls...)
}

type engineFixture struct {
	engine      *workflow.Engine
	store       *services.TemplateStore
	directory   *directory.InMemory
	handler     *recordingHandler
	persistence persistence.Persistence
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := slog.Default()
	persist := file.NewPersistence(t.TempDir())
	dir := directory.NewInMemory()
	handler := &recordingHandler{}

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.Register("expense", handler))

	stepResolver := resolver.NewResolver(logger, dir)

	return &engineFixture{
		engine:      workflow.NewEngine(logger, persist, reg, stepResolver, dir, nil),
		store:       services.NewTemplateStore(persist),
		directory:   dir,
		handler:     handler,
		persistence: persist,
	}
}

// seedTwoStepTemplate installs the default template used by most tests:
// step 1 goes to the requestor's manager, step 2 to the finance-admin role.
func (f *engineFixture) seedTwoStepTemplate(t *testing.T) {
	t.Helper()

	f.directory.SetManager("acme", "alice", "bob")
	f.directory.AssignRole("acme", "finance-admin", "carol")

	template := &models.WorkflowTemplate{
		CompanyID:    "acme",
		ActivityType: "expense",
		Name:         "Expense approval",
		Default:      true,
		Steps: []*models.StepDefinition{
			{Name: "Manager approval", Approver: models.ApproverSpec{Kind: models.ApproverKindManager}},
			{Name: "Finance review", Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "finance-admin"}},
		},
	}

	_, err := f.store.CreateTemplate(t.Context(), template)
	require.NoError(t, err)
}

func expenseActivity(activityID string) models.Activity {
	return models.Activity{
		CompanyID:    "acme",
		ActivityType: "expense",
		ActivityID:   activityID,
		Title:        "Team offsite",
		RequestorID:  "alice",
		Attributes:   map[string]any{"amount": 450.0},
	}
}

func TestEngine_StartWorkflow(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Equal(t, 0, request.CurrentStep)
	assert.Equal(t, 2, request.TotalSteps)
	require.Len(t, request.Steps, 2)
	assert.Equal(t, "bob", request.Steps[0].AssigneeID)
	assert.Empty(t, request.Steps[1].AssigneeID)
	assert.Equal(t, "finance-admin", request.Steps[1].AssigneeRole)
	assert.Empty(t, fixture.handler.recorded())
}

func TestEngine_StartWorkflowConfigurationErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing activity fields", func(t *testing.T) {
		t.Parallel()

		fixture := newEngineFixture(t)
		fixture.seedTwoStepTemplate(t)

		activity := expenseActivity("exp-1")
		activity.RequestorID = ""

		_, err := fixture.engine.StartWorkflow(t.Context(), activity)
		require.ErrorIs(t, err, workflow.ErrInvalidActivity)
		assert.True(t, workflow.IsConfigurationError(err))
	})

	t.Run("no handler registered", func(t *testing.T) {
		t.Parallel()

		fixture := newEngineFixture(t)
		fixture.seedTwoStepTemplate(t)

		activity := expenseActivity("exp-1")
		activity.ActivityType = "invoice"

		_, err := fixture.engine.StartWorkflow(t.Context(), activity)
		require.ErrorIs(t, err, workflow.ErrNoHandler)
	})

	t.Run("no active template", func(t *testing.T) {
		t.Parallel()

		fixture := newEngineFixture(t)

		_, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
		require.ErrorIs(t, err, workflow.ErrNoActiveTemplate)
		assert.True(t, workflow.IsConfigurationError(err))
	})

	t.Run("unresolvable approver", func(t *testing.T) {
		t.Parallel()

		fixture := newEngineFixture(t)
		fixture.seedTwoStepTemplate(t)

		// No manager recorded for this requestor.
		activity := expenseActivity("exp-1")
		activity.RequestorID = "dave"

		_, err := fixture.engine.StartWorkflow(t.Context(), activity)
		require.Error(t, err)
		assert.True(t, resolver.IsApproverUnresolvable(err))
		assert.True(t, workflow.IsConfigurationError(err))

		// Nothing was persisted.
		_, err = fixture.engine.GetActivityApprovalStatus(t.Context(), "expense", "exp-1")
		require.ErrorIs(t, err, persistence.ErrRequestNotFound)
	})
}

func TestEngine_StartWorkflowRejectsDuplicatePending(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	_, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	_, err = fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.ErrorIs(t, err, persistence.ErrPendingRequestExists)
}

func TestEngine_StartWorkflowAllStepsSkipped(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.directory.SetManager("acme", "alice", "bob")

	template := &models.WorkflowTemplate{
		CompanyID:    "acme",
		ActivityType: "expense",
		Name:         "Expense approval",
		Default:      true,
		Steps: []*models.StepDefinition{
			{
				Name:     "Manager approval",
				Approver: models.ApproverSpec{Kind: models.ApproverKindManager},
				Condition: &models.StepCondition{
					Attribute: "amount",
					Operator:  models.ConditionOpGt,
					Value:     10000,
				},
			},
		},
	}

	_, err := fixture.store.CreateTemplate(t.Context(), template)
	require.NoError(t, err)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, request.Status)
	assert.Equal(t, -1, request.CurrentStep)
	assert.Equal(t, models.StepStatusSkipped, request.Steps[0].Status)
	require.NotNil(t, request.CompletedAt)

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "approved", calls[0].method)
	assert.Equal(t, models.SystemActorID, calls[0].actorID)
}

func TestEngine_ApproveAdvancesAndFinalizes(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	// Manager approves step 1; the request advances but stays pending.
	advanced, err := fixture.engine.Approve(t.Context(), request.ID, "bob", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, advanced.Status)
	assert.Equal(t, 1, advanced.CurrentStep)
	assert.Equal(t, models.StepStatusApproved, advanced.Steps[0].Status)
	assert.Equal(t, "bob", advanced.Steps[0].ActedBy)
	assert.Equal(t, "looks fine", advanced.Steps[0].Comments)
	assert.Empty(t, fixture.handler.recorded())

	// Sole finance-admin holder approves the last step; request is approved.
	final, err := fixture.engine.Approve(t.Context(), request.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, final.Status)
	require.NotNil(t, final.CompletedAt)

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, handlerCall{method: "approved", activityID: "exp-1", actorID: "carol"}, calls[0])

	loaded, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, loaded.Status)
}

func TestEngine_ApproveStepKeyedToCurrentStep(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	// A step other than the current one is rejected as a lost race.
	_, err = fixture.engine.ApproveStep(t.Context(), request.ID, request.Steps[1].ID, "bob", "")
	require.ErrorIs(t, err, persistence.ErrStepAlreadyActioned)

	// Keyed to the current step it behaves exactly like Approve.
	advanced, err := fixture.engine.ApproveStep(t.Context(), request.ID, request.Steps[0].ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 1, advanced.CurrentStep)
	assert.Equal(t, models.StepStatusApproved, advanced.Steps[0].Status)
}

func TestEngine_ApproveAuthorization(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	// Not the assignee and holds no role on this step.
	_, err = fixture.engine.Approve(t.Context(), request.ID, "mallory", "")
	require.ErrorIs(t, err, workflow.ErrNotAuthorized)
	assert.True(t, workflow.IsStateError(err))

	// The system actor bypasses assignment checks.
	advanced, err := fixture.engine.Approve(t.Context(), request.ID, models.SystemActorID, "deadline passed")
	require.NoError(t, err)
	assert.Equal(t, models.SystemActorID, advanced.Steps[0].ActedBy)
}

func TestEngine_ApproveRoleStepChecksMembership(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	// A second holder keeps the step assigned to the role, not a person.
	fixture.directory.AssignRole("acme", "finance-admin", "dan")

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)
	assert.Equal(t, "finance-admin", request.Steps[1].AssigneeRole)
	assert.Empty(t, request.Steps[1].AssigneeID)

	_, err = fixture.engine.Approve(t.Context(), request.ID, "bob", "")
	require.NoError(t, err)

	// Same role in another company does not grant access here.
	fixture.directory.AssignRole("globex", "finance-admin", "eve")

	_, err = fixture.engine.Approve(t.Context(), request.ID, "eve", "")
	require.ErrorIs(t, err, workflow.ErrNotAuthorized)

	// Any holder in the right company may act; first action wins.
	final, err := fixture.engine.Approve(t.Context(), request.ID, "dan", "")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, final.Status)
	assert.Equal(t, "dan", final.Steps[1].ActedBy)
}

func TestEngine_ConcurrentApproveSingleWinner(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)
	fixture.directory.AssignRole("acme", "finance-admin", "dan")

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	_, err = fixture.engine.Approve(t.Context(), request.ID, "bob", "")
	require.NoError(t, err)

	var wg sync.WaitGroup

	errs := make([]error, 2)
	for i, approver := range []string{"carol", "dan"} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = fixture.engine.Approve(t.Context(), request.ID, approver, "")
		}()
	}

	wg.Wait()

	winners := 0

	for _, err := range errs {
		if err == nil {
			winners++

			continue
		}

		losingErr := errors.Is(err, persistence.ErrStepAlreadyActioned) ||
			errors.Is(err, workflow.ErrRequestNotPending)
		assert.True(t, losingErr, "unexpected error: %v", err)
	}

	assert.Equal(t, 1, winners)

	final, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, final.Status)

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "approved", calls[0].method)
}

func TestEngine_RejectIsTerminal(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	rejected, err := fixture.engine.Reject(t.Context(), request.ID, "bob", "over budget")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, models.StepStatusRejected, rejected.Steps[0].Status)
	assert.Equal(t, "over budget", rejected.Steps[0].Comments)

	// The later step was never actioned and stays pending in the record.
	assert.Equal(t, models.StepStatusPending, rejected.Steps[1].Status)

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, handlerCall{method: "rejected", activityID: "exp-1", actorID: "bob", reason: "over budget"}, calls[0])

	// A terminal request accepts no further actions.
	_, err = fixture.engine.Approve(t.Context(), request.ID, "carol", "")
	require.ErrorIs(t, err, workflow.ErrRequestNotPending)

	// But the activity may start a fresh cycle.
	_, err = fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)
}

func TestEngine_CancelOnlyByRequestor(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	_, err = fixture.engine.Cancel(t.Context(), request.ID, "bob", "changed plans")
	require.ErrorIs(t, err, workflow.ErrNotRequestor)

	cancelled, err := fixture.engine.Cancel(t.Context(), request.ID, "alice", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)

	calls := fixture.handler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, handlerCall{method: "cancelled", activityID: "exp-1", actorID: "alice", reason: "changed plans"}, calls[0])

	_, err = fixture.engine.Cancel(t.Context(), request.ID, "alice", "again")
	require.ErrorIs(t, err, workflow.ErrRequestNotPending)
}

func TestEngine_HandlerFailureKeepsTerminalState(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	_, err = fixture.engine.Approve(t.Context(), request.ID, "bob", "")
	require.NoError(t, err)

	fixture.handler.fail = errors.New("downstream unavailable")

	result, err := fixture.engine.Approve(t.Context(), request.ID, "carol", "")
	require.ErrorIs(t, err, workflow.ErrHandlerFailed)
	assert.True(t, workflow.IsHandlerFailure(err))

	// The terminal transition was committed before dispatch.
	require.NotNil(t, result)
	assert.Equal(t, models.RequestStatusApproved, result.Status)

	loaded, err := fixture.engine.GetRequestStatus(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, loaded.Status)
}

func TestEngine_SnapshotFrozenAgainstTemplateEdits(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	// Rework the template after the request snapshotted it.
	templates, err := fixture.store.ListTemplates(t.Context(), "acme", "expense")
	require.NoError(t, err)
	require.Len(t, templates, 1)

	_, err = fixture.store.AddStep(t.Context(), templates[0].ID, &models.StepDefinition{
		Order:    1,
		Name:     "Compliance check",
		Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "finance-admin"},
	})
	require.NoError(t, err)

	// The in-flight request still runs the two original steps.
	advanced, err := fixture.engine.Approve(t.Context(), request.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 2, advanced.TotalSteps)
	require.Len(t, advanced.Steps, 2)

	final, err := fixture.engine.Approve(t.Context(), request.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, final.Status)
}

func TestEngine_GetPendingApprovalsForUser(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)
	fixture.directory.AssignRole("acme", "finance-admin", "dan")

	first, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	second, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-2"))
	require.NoError(t, err)

	// Both current steps belong to the manager.
	pending, err := fixture.engine.GetPendingApprovalsForUser(t.Context(), "bob")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// Role holders see nothing until their step becomes current.
	pending, err = fixture.engine.GetPendingApprovalsForUser(t.Context(), "carol")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = fixture.engine.Approve(t.Context(), first.ID, "bob", "")
	require.NoError(t, err)

	pending, err = fixture.engine.GetPendingApprovalsForUser(t.Context(), "carol")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].RequestID)
	assert.Equal(t, "exp-1", pending[0].ActivityID)
	assert.Equal(t, "alice", pending[0].RequestorID)
	require.NotNil(t, pending[0].Step)
	assert.Equal(t, "finance-admin", pending[0].Step.AssigneeRole)

	pending, err = fixture.engine.GetPendingApprovalsForUser(t.Context(), "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].RequestID)

	// Strangers have no pending work.
	pending, err = fixture.engine.GetPendingApprovalsForUser(t.Context(), "mallory")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_GetActivityApprovalStatus(t *testing.T) {
	t.Parallel()

	fixture := newEngineFixture(t)
	fixture.seedTwoStepTemplate(t)

	request, err := fixture.engine.StartWorkflow(t.Context(), expenseActivity("exp-1"))
	require.NoError(t, err)

	status, err := fixture.engine.GetActivityApprovalStatus(t.Context(), "expense", "exp-1")
	require.NoError(t, err)
	assert.Equal(t, request.ID, status.ID)

	_, err = fixture.engine.GetActivityApprovalStatus(t.Context(), "expense", "exp-unknown")
	require.ErrorIs(t, err, persistence.ErrRequestNotFound)
}
