package models_test

import (
	"testing"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepCondition_Evaluate(t *testing.T) {
	t.Parallel()

	attributes := map[string]any{
		"amount":   float64(12000),
		"category": "travel",
		"urgent":   true,
	}

	tests := []struct {
		name      string
		condition *models.StepCondition
		expected  bool
	}{
		{
			name:      "nil condition always applies",
			condition: nil,
			expected:  true,
		},
		{
			name: "eq string match",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpEq, Value: "travel",
			},
			expected: true,
		},
		{
			name: "eq string mismatch",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpEq, Value: "equipment",
			},
			expected: false,
		},
		{
			name: "eq numeric coercion across int and float",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpEq, Value: 12000,
			},
			expected: true,
		},
		{
			name: "ne mismatch applies",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpNe, Value: "equipment",
			},
			expected: true,
		},
		{
			name: "gt above threshold",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpGt, Value: 10000,
			},
			expected: true,
		},
		{
			name: "gt at threshold",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpGt, Value: float64(12000),
			},
			expected: false,
		},
		{
			name: "gte at threshold",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpGte, Value: float64(12000),
			},
			expected: true,
		},
		{
			name: "lt below threshold",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpLt, Value: 50000,
			},
			expected: true,
		},
		{
			name: "lte above threshold",
			condition: &models.StepCondition{
				Attribute: "amount", Operator: models.ConditionOpLte, Value: 10000,
			},
			expected: false,
		},
		{
			name: "in with member",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpIn, Value: []any{"travel", "meals"},
			},
			expected: true,
		},
		{
			name: "in without member",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpIn, Value: []any{"equipment", "software"},
			},
			expected: false,
		},
		{
			name: "contains substring",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpContains, Value: "rave",
			},
			expected: true,
		},
		{
			name: "missing attribute fails eq",
			condition: &models.StepCondition{
				Attribute: "department", Operator: models.ConditionOpEq, Value: "sales",
			},
			expected: false,
		},
		{
			name: "missing attribute satisfies ne",
			condition: &models.StepCondition{
				Attribute: "department", Operator: models.ConditionOpNe, Value: "sales",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := tt.condition.Evaluate(attributes)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStepCondition_EvaluateErrors(t *testing.T) {
	t.Parallel()

	attributes := map[string]any{"category": "travel"}

	tests := []struct {
		name      string
		condition *models.StepCondition
	}{
		{
			name: "numeric comparison on string attribute",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpGt, Value: 10,
			},
		},
		{
			name: "in with scalar value",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpIn, Value: "travel",
			},
		},
		{
			name: "contains with non-string value",
			condition: &models.StepCondition{
				Attribute: "category", Operator: models.ConditionOpContains, Value: 42,
			},
		},
		{
			name: "unknown operator",
			condition: &models.StepCondition{
				Attribute: "category", Operator: "matches", Value: "travel",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.condition.Evaluate(attributes)
			require.Error(t, err)
		})
	}
}

func TestApproverSpec_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    models.ApproverSpec
		wantErr bool
	}{
		{
			name: "role with name",
			spec: models.ApproverSpec{Kind: models.ApproverKindRole, Role: "finance-admin"},
		},
		{
			name:    "role without name",
			spec:    models.ApproverSpec{Kind: models.ApproverKindRole},
			wantErr: true,
		},
		{
			name: "person with ID",
			spec: models.ApproverSpec{Kind: models.ApproverKindPerson, PersonID: "person-1"},
		},
		{
			name:    "person without ID",
			spec:    models.ApproverSpec{Kind: models.ApproverKindPerson},
			wantErr: true,
		},
		{
			name: "manager needs no payload",
			spec: models.ApproverSpec{Kind: models.ApproverKindManager},
		},
		{
			name:    "unknown kind",
			spec:    models.ApproverSpec{Kind: "committee"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.spec.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrInvalidApproverSpec)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestApprovalRequest_NextActionableStep(t *testing.T) {
	t.Parallel()

	request := &models.ApprovalRequest{
		Steps: []*models.RequestStep{
			{Order: 1, Status: models.StepStatusApproved},
			{Order: 2, Status: models.StepStatusSkipped},
			{Order: 3, Status: models.StepStatusPending},
			{Order: 4, Status: models.StepStatusPending},
		},
	}

	assert.Equal(t, 2, request.NextActionableStep(1))
	assert.Equal(t, 3, request.NextActionableStep(3))
	assert.Equal(t, -1, request.NextActionableStep(4))
	assert.Nil(t, request.StepAt(-1))
	assert.Nil(t, request.StepAt(4))
	assert.Equal(t, 3, request.StepAt(2).Order)
}
