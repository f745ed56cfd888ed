package resolver_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActivity() models.Activity {
	return models.Activity{
		CompanyID:    "acme",
		ActivityType: "expense",
		ActivityID:   "exp-1",
		RequestorID:  "alice",
		Attributes:   map[string]any{"amount": float64(5000)},
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	dir := directory.NewInMemory()
	dir.SetManager("acme", "alice", "bob")
	dir.AssignRole("acme", "finance-admin", "carol")
	dir.AssignRole("acme", "director", "dave")
	dir.AssignRole("acme", "director", "erin")

	r := resolver.NewResolver(slog.Default(), dir)

	tests := []struct {
		name         string
		step         *models.StepDefinition
		assigneeID   string
		assigneeRole string
		wantErr      error
	}{
		{
			name: "person resolves directly",
			step: &models.StepDefinition{
				Name:     "CFO sign-off",
				Approver: models.ApproverSpec{Kind: models.ApproverKindPerson, PersonID: "frank"},
			},
			assigneeID: "frank",
		},
		{
			name: "role with single holder resolves to the holder",
			step: &models.StepDefinition{
				Name:     "Finance review",
				Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "finance-admin"},
			},
			assigneeID: "carol",
		},
		{
			name: "role with multiple holders stays a role assignment",
			step: &models.StepDefinition{
				Name:     "Director approval",
				Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "director"},
			},
			assigneeRole: "director",
		},
		{
			name: "manager resolves through the reporting line",
			step: &models.StepDefinition{
				Name:     "Manager approval",
				Approver: models.ApproverSpec{Kind: models.ApproverKindManager},
			},
			assigneeID: "bob",
		},
		{
			name: "role without holders fails when not skippable",
			step: &models.StepDefinition{
				Name:     "Legal review",
				Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "legal"},
			},
			wantErr: resolver.ErrApproverUnresolvable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assigneeID, assigneeRole, err := r.Resolve(t.Context(), tt.step, testActivity())

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.assigneeID, assigneeID)
			assert.Equal(t, tt.assigneeRole, assigneeRole)
		})
	}
}

func TestResolver_ResolveSkippable(t *testing.T) {
	t.Parallel()

	dir := directory.NewInMemory()
	r := resolver.NewResolver(slog.Default(), dir)

	step := &models.StepDefinition{
		Name:      "Optional legal review",
		Approver:  models.ApproverSpec{Kind: models.ApproverKindRole, Role: "legal"},
		Skippable: true,
	}

	assigneeID, assigneeRole, err := r.Resolve(t.Context(), step, testActivity())
	require.NoError(t, err)
	assert.Empty(t, assigneeID)
	assert.Empty(t, assigneeRole)

	managerStep := &models.StepDefinition{
		Name:      "Optional manager approval",
		Approver:  models.ApproverSpec{Kind: models.ApproverKindManager},
		Skippable: true,
	}

	assigneeID, assigneeRole, err = r.Resolve(t.Context(), managerStep, testActivity())
	require.NoError(t, err)
	assert.Empty(t, assigneeID)
	assert.Empty(t, assigneeRole)
}

func TestResolver_Materialize(t *testing.T) {
	t.Parallel()

	dir := directory.NewInMemory()
	dir.SetManager("acme", "alice", "bob")
	dir.AssignRole("acme", "finance-admin", "carol")

	r := resolver.NewResolver(slog.Default(), dir)

	threshold := &models.StepCondition{
		Attribute: "amount", Operator: models.ConditionOpGt, Value: 10000,
	}

	template := &models.WorkflowTemplate{
		ID:           "tpl-1",
		CompanyID:    "acme",
		ActivityType: "expense",
		Steps: []*models.StepDefinition{
			{Order: 2, Name: "Finance review", Approver: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "finance-admin"}},
			{Order: 1, Name: "Manager approval", Approver: models.ApproverSpec{Kind: models.ApproverKindManager}},
			{Order: 3, Name: "CFO sign-off", Approver: models.ApproverSpec{Kind: models.ApproverKindPerson, PersonID: "frank"}, Condition: threshold},
		},
	}

	now := time.Now().UTC()

	steps, err := r.Materialize(t.Context(), template, testActivity(), now)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	// Sorted by order, identities assigned, condition over threshold skipped.
	assert.Equal(t, "Manager approval", steps[0].Name)
	assert.Equal(t, "bob", steps[0].AssigneeID)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)

	assert.Equal(t, "Finance review", steps[1].Name)
	assert.Equal(t, "carol", steps[1].AssigneeID)

	assert.Equal(t, "CFO sign-off", steps[2].Name)
	assert.Equal(t, models.StepStatusSkipped, steps[2].Status)
	assert.Empty(t, steps[2].AssigneeID)

	for _, step := range steps {
		assert.NotEmpty(t, step.ID)
		assert.Equal(t, now, step.CreatedAt)
	}
}

func TestResolver_MaterializeUnresolvableFails(t *testing.T) {
	t.Parallel()

	dir := directory.NewInMemory()
	r := resolver.NewResolver(slog.Default(), dir)

	template := &models.WorkflowTemplate{
		ID:        "tpl-1",
		CompanyID: "acme",
		Steps: []*models.StepDefinition{
			{Order: 1, Name: "Manager approval", Approver: models.ApproverSpec{Kind: models.ApproverKindManager}},
		},
	}

	_, err := r.Materialize(t.Context(), template, testActivity(), time.Now().UTC())
	require.ErrorIs(t, err, resolver.ErrApproverUnresolvable)
}
