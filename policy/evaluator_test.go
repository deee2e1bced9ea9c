package policy

import (
	"testing"

	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_EqualsViolation(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{
			ID:       "encryption-required",
			Field:    "encryption",
			Operator: domain.OperatorEquals,
			Value:    true,
			Severity: domain.SeverityCritical,
			Blocking: true,
		},
	}
	components := []domain.ComponentConfig{
		{Name: "storage", Type: "bucket", Fields: map[string]any{"encryption": false}},
	}

	violations := evaluator.Evaluate(components, policies, domain.EnvironmentProd)
	require.Len(t, violations, 1)
	assert.Equal(t, "encryption-required", violations[0].PolicyID)
	assert.Equal(t, "storage", violations[0].ComponentRef)
	assert.Equal(t, domain.SeverityCritical, violations[0].Severity)
	assert.True(t, violations[0].Blocking)
	assert.Equal(t, false, violations[0].Actual)
	assert.Equal(t, true, violations[0].Expected)
	assert.True(t, domain.HasBlocking(violations))
}

func TestEvaluator_Operators(t *testing.T) {
	evaluator := NewEvaluator()

	tests := []struct {
		name          string
		policy        domain.Policy
		fields        map[string]any
		wantViolation bool
	}{
		{
			name:          "equals pass",
			policy:        domain.Policy{ID: "p", Field: "tier", Operator: domain.OperatorEquals, Value: "gold"},
			fields:        map[string]any{"tier": "gold"},
			wantViolation: false,
		},
		{
			name:          "equals numeric normalization",
			policy:        domain.Policy{ID: "p", Field: "replicas", Operator: domain.OperatorEquals, Value: 3},
			fields:        map[string]any{"replicas": float64(3)},
			wantViolation: false,
		},
		{
			name:          "not-equals violation",
			policy:        domain.Policy{ID: "p", Field: "acl", Operator: domain.OperatorNotEquals, Value: "public"},
			fields:        map[string]any{"acl": "public"},
			wantViolation: true,
		},
		{
			name:          "contains pass",
			policy:        domain.Policy{ID: "p", Field: "regions", Operator: domain.OperatorContains, Value: "eu-west-1"},
			fields:        map[string]any{"regions": []any{"us-east-1", "eu-west-1"}},
			wantViolation: false,
		},
		{
			name:          "contains violation",
			policy:        domain.Policy{ID: "p", Field: "regions", Operator: domain.OperatorContains, Value: "eu-west-1"},
			fields:        map[string]any{"regions": []any{"us-east-1"}},
			wantViolation: true,
		},
		{
			name:          "greater-than pass",
			policy:        domain.Policy{ID: "p", Field: "minTLS", Operator: domain.OperatorGreaterThan, Value: 1.1},
			fields:        map[string]any{"minTLS": 1.2},
			wantViolation: false,
		},
		{
			name:          "greater-than violation",
			policy:        domain.Policy{ID: "p", Field: "backupDays", Operator: domain.OperatorGreaterThan, Value: 7},
			fields:        map[string]any{"backupDays": 7},
			wantViolation: true,
		},
		{
			name:          "matches pass",
			policy:        domain.Policy{ID: "p", Field: "name", Operator: domain.OperatorMatches, Condition: "[a-z][a-z0-9-]*"},
			fields:        map[string]any{"name": "web-1"},
			wantViolation: false,
		},
		{
			name:          "matches is anchored",
			policy:        domain.Policy{ID: "p", Field: "name", Operator: domain.OperatorMatches, Condition: "web"},
			fields:        map[string]any{"name": "prod-web-1"},
			wantViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			components := []domain.ComponentConfig{{Name: "c", Fields: tt.fields}}
			violations := evaluator.Evaluate(components, []domain.Policy{tt.policy}, domain.EnvironmentDev)
			if tt.wantViolation {
				assert.Len(t, violations, 1)
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestEvaluator_EnvironmentFilter(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{
			ID:           "prod-only",
			Field:        "publicAccess",
			Operator:     domain.OperatorEquals,
			Value:        false,
			Severity:     domain.SeverityHigh,
			Environments: []domain.Environment{domain.EnvironmentProd},
			Blocking:     true,
		},
	}
	components := []domain.ComponentConfig{
		{Name: "api", Fields: map[string]any{"publicAccess": true}},
	}

	assert.Empty(t, evaluator.Evaluate(components, policies, domain.EnvironmentDev))
	assert.Len(t, evaluator.Evaluate(components, policies, domain.EnvironmentProd), 1)
}

func TestEvaluator_MissingFieldSkipsRule(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{ID: "p", Field: "encryption", Operator: domain.OperatorEquals, Value: true, Severity: domain.SeverityCritical},
	}
	components := []domain.ComponentConfig{
		{Name: "queue", Fields: map[string]any{"fifo": true}},
	}

	assert.Empty(t, evaluator.Evaluate(components, policies, domain.EnvironmentProd))
}

func TestEvaluator_EvaluationErrorsAreIsolated(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{
			// Type mismatch: greater-than on a string field
			ID:       "broken-numeric",
			Field:    "size",
			Operator: domain.OperatorGreaterThan,
			Value:    10,
			Severity: domain.SeverityHigh,
			Blocking: true,
		},
		{
			// Invalid pattern
			ID:       "broken-pattern",
			Field:    "name",
			Operator: domain.OperatorMatches,
			Condition: "[unclosed",
			Severity: domain.SeverityHigh,
			Blocking: true,
		},
		{
			// Healthy rule evaluated despite the broken ones before it
			ID:       "healthy",
			Field:    "encryption",
			Operator: domain.OperatorEquals,
			Value:    true,
			Severity: domain.SeverityCritical,
			Blocking: true,
		},
	}
	components := []domain.ComponentConfig{
		{Name: "db", Fields: map[string]any{"size": "t2.medium", "name": "db-1", "encryption": false}},
	}

	violations := evaluator.Evaluate(components, policies, domain.EnvironmentProd)
	require.Len(t, violations, 3)

	assert.Equal(t, "broken-numeric", violations[0].PolicyID)
	assert.Equal(t, domain.SeverityEvaluationError, violations[0].Severity)
	assert.False(t, violations[0].Blocking, "evaluation errors never block")

	assert.Equal(t, "broken-pattern", violations[1].PolicyID)
	assert.Equal(t, domain.SeverityEvaluationError, violations[1].Severity)
	assert.False(t, violations[1].Blocking)

	assert.Equal(t, "healthy", violations[2].PolicyID)
	assert.Equal(t, domain.SeverityCritical, violations[2].Severity)
	assert.True(t, violations[2].Blocking)
}

func TestEvaluator_UnknownOperator(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{ID: "p", Field: "x", Operator: domain.PolicyOperator("approximately"), Value: 1},
	}
	components := []domain.ComponentConfig{{Name: "c", Fields: map[string]any{"x": 1}}}

	violations := evaluator.Evaluate(components, policies, domain.EnvironmentDev)
	require.Len(t, violations, 1)
	assert.Equal(t, domain.SeverityEvaluationError, violations[0].Severity)
	assert.Contains(t, violations[0].Message, "unknown operator")
}

func TestEvaluator_Deterministic(t *testing.T) {
	evaluator := NewEvaluator()

	policies := []domain.Policy{
		{ID: "a", Field: "encryption", Operator: domain.OperatorEquals, Value: true, Severity: domain.SeverityCritical, Blocking: true},
		{ID: "b", Field: "acl", Operator: domain.OperatorNotEquals, Value: "public", Severity: domain.SeverityHigh},
		{ID: "c", Field: "backupDays", Operator: domain.OperatorGreaterThan, Value: 7, Severity: domain.SeverityMedium},
	}
	components := []domain.ComponentConfig{
		{Name: "one", Fields: map[string]any{"encryption": false, "acl": "public", "backupDays": 3}},
		{Name: "two", Fields: map[string]any{"encryption": false, "acl": "private", "backupDays": 30}},
	}

	first := evaluator.Evaluate(components, policies, domain.EnvironmentStaging)
	require.Len(t, first, 4)

	// Order is component order, then policy order
	assert.Equal(t, []string{"a", "b", "c", "a"}, []string{
		first[0].PolicyID, first[1].PolicyID, first[2].PolicyID, first[3].PolicyID,
	})
	assert.Equal(t, "one", first[0].ComponentRef)
	assert.Equal(t, "two", first[3].ComponentRef)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, evaluator.Evaluate(components, policies, domain.EnvironmentStaging))
	}
}

func TestComplianceScore(t *testing.T) {
	tests := []struct {
		name          string
		violations    []domain.PolicyViolation
		totalPolicies int
		want          int
	}{
		{
			name:          "no violations",
			violations:    nil,
			totalPolicies: 5,
			want:          100,
		},
		{
			name:          "no policies",
			violations:    nil,
			totalPolicies: 0,
			want:          100,
		},
		{
			name: "weighted deductions",
			violations: []domain.PolicyViolation{
				{Severity: domain.SeverityCritical},
				{Severity: domain.SeverityHigh},
				{Severity: domain.SeverityMedium},
				{Severity: domain.SeverityLow},
			},
			totalPolicies: 6, // deduction 18 of max 60
			want:          70,
		},
		{
			name: "capped at zero",
			violations: []domain.PolicyViolation{
				{Severity: domain.SeverityCritical},
				{Severity: domain.SeverityCritical},
				{Severity: domain.SeverityCritical},
			},
			totalPolicies: 1,
			want:          0,
		},
		{
			name: "evaluation errors do not count",
			violations: []domain.PolicyViolation{
				{Severity: domain.SeverityEvaluationError},
			},
			totalPolicies: 3,
			want:          100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ComplianceScore(tt.violations, tt.totalPolicies))
		})
	}
}
