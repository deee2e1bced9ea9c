package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploymentStatus_StringRoundTrip(t *testing.T) {
	statuses := []DeploymentStatus{
		DeploymentStatusPending,
		DeploymentStatusPlanning,
		DeploymentStatusApprovalPending,
		DeploymentStatusApplying,
		DeploymentStatusCompleted,
		DeploymentStatusFailed,
		DeploymentStatusRolledBack,
	}

	for _, status := range statuses {
		parsed, err := ParseDeploymentStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}
}

func TestParseDeploymentStatus_Invalid(t *testing.T) {
	_, err := ParseDeploymentStatus("exploded")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid deployment status")
}

func TestDeploymentStatus_IsTerminal(t *testing.T) {
	assert.True(t, DeploymentStatusCompleted.IsTerminal())
	assert.True(t, DeploymentStatusFailed.IsTerminal())
	assert.True(t, DeploymentStatusRolledBack.IsTerminal())

	assert.False(t, DeploymentStatusPending.IsTerminal())
	assert.False(t, DeploymentStatusPlanning.IsTerminal())
	assert.False(t, DeploymentStatusApprovalPending.IsTerminal())
	assert.False(t, DeploymentStatusApplying.IsTerminal())
}

func TestNewDeployment(t *testing.T) {
	d := NewDeployment("web-tier", "job-42", "aws", "cloudformation", EnvironmentStaging)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", d.ID.String())
	assert.Equal(t, "web-tier", d.BlueprintID)
	assert.Equal(t, "job-42", d.GenerationJobID)
	assert.Equal(t, "aws", d.TargetCloud)
	assert.Equal(t, "cloudformation", d.Format)
	assert.Equal(t, EnvironmentStaging, d.Environment)
	assert.Equal(t, DeploymentStatusPending, d.Status)
}

func TestDeployment_TargetKey(t *testing.T) {
	d := NewDeployment("Web Tier", "job-1", "aws", "cloudformation", EnvironmentProd)

	assert.Equal(t, "prod-aws-web-tier", d.TargetKey())

	// Same target parts always derive the same key, regardless of which
	// deployment computes it.
	other := NewDeployment("Web Tier", "job-2", "aws", "cloudformation", EnvironmentProd)
	assert.Equal(t, d.TargetKey(), other.TargetKey())

	// Different environment means a different target.
	dev := NewDeployment("Web Tier", "job-3", "aws", "cloudformation", EnvironmentDev)
	assert.NotEqual(t, d.TargetKey(), dev.TargetKey())
}

func TestDeployment_AppendLog(t *testing.T) {
	d := NewDeployment("bp", "job", "aws", "cloudformation", EnvironmentDev)

	d.AppendLog("planning", "plan: 2 to add, 0 to change, 0 to destroy")
	d.AppendLog("applying", "apply started")

	require.Len(t, d.Logs, 2)
	assert.Equal(t, "[planning] plan: 2 to add, 0 to change, 0 to destroy", d.Logs[0])
	assert.Equal(t, "[applying] apply started", d.Logs[1])
	assert.Equal(t, d.Logs[0]+"\n"+d.Logs[1], d.LogText())
}

func TestPlanSummary_HasChanges(t *testing.T) {
	assert.False(t, PlanSummary{ResourceCount: 5}.HasChanges())
	assert.True(t, PlanSummary{ToAdd: 1}.HasChanges())
	assert.True(t, PlanSummary{ToChange: 1}.HasChanges())
	assert.True(t, PlanSummary{ToDestroy: 1}.HasChanges())
}

func TestParseEnvironment(t *testing.T) {
	for _, name := range []string{"dev", "staging", "prod"} {
		env, err := ParseEnvironment(name)
		require.NoError(t, err)
		assert.Equal(t, name, env.String())
	}

	_, err := ParseEnvironment("production")
	assert.Error(t, err)
}

func TestAutomationLevel_CanAutoApprove(t *testing.T) {
	assert.False(t, AutomationManual.CanAutoApprove())
	assert.False(t, AutomationAssisted.CanAutoApprove())
	assert.True(t, AutomationAutoNonProd.CanAutoApprove())
	assert.True(t, AutomationAggressive.CanAutoApprove())
}

func TestRiskCategory_Bands(t *testing.T) {
	tests := []struct {
		riskLevel int
		expected  Severity
	}{
		{0, SeverityLow},
		{24, SeverityLow},
		{25, SeverityMedium},
		{49, SeverityMedium},
		{50, SeverityHigh},
		{74, SeverityHigh},
		{75, SeverityCritical},
		{100, SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RiskCategory(tt.riskLevel), "risk level %d", tt.riskLevel)
	}
}

func TestApprovalThresholds_Validate(t *testing.T) {
	assert.NoError(t, ApprovalThresholds{MinSecurityScore: 90, MaxRiskLevel: 20}.Validate())
	assert.Error(t, ApprovalThresholds{MinSecurityScore: 101, MaxRiskLevel: 20}.Validate())
	assert.Error(t, ApprovalThresholds{MinSecurityScore: 90, MaxRiskLevel: -1}.Validate())
}

func TestPolicy_AppliesTo(t *testing.T) {
	everywhere := Policy{ID: "p1"}
	assert.True(t, everywhere.AppliesTo(EnvironmentDev))
	assert.True(t, everywhere.AppliesTo(EnvironmentProd))

	prodOnly := Policy{ID: "p2", Environments: []Environment{EnvironmentProd}}
	assert.True(t, prodOnly.AppliesTo(EnvironmentProd))
	assert.False(t, prodOnly.AppliesTo(EnvironmentDev))
}

func TestHasBlocking(t *testing.T) {
	assert.False(t, HasBlocking(nil))
	assert.False(t, HasBlocking([]PolicyViolation{{PolicyID: "p1"}}))
	assert.True(t, HasBlocking([]PolicyViolation{{PolicyID: "p1"}, {PolicyID: "p2", Blocking: true}}))
}

func TestComplianceScore(t *testing.T) {
	// No policies evaluated means nothing to fail.
	assert.Equal(t, 100, ComplianceScore(nil, 0))

	// Clean run against a real policy set.
	assert.Equal(t, 100, ComplianceScore(nil, 10))

	// One critical violation against ten policies: 10 weighted out of a
	// 100 maximum deduction.
	critical := []PolicyViolation{{Severity: SeverityCritical}}
	assert.Equal(t, 90, ComplianceScore(critical, 10))

	// Mixed severities accumulate their weights.
	mixed := []PolicyViolation{
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
		{Severity: SeverityMedium},
		{Severity: SeverityLow},
	}
	assert.Equal(t, 82, ComplianceScore(mixed, 10))

	// Evaluation errors never count against the score.
	broken := []PolicyViolation{{Severity: SeverityEvaluationError}}
	assert.Equal(t, 100, ComplianceScore(broken, 10))

	// The score floors at zero even when deductions exceed the maximum.
	pile := make([]PolicyViolation, 50)
	for i := range pile {
		pile[i] = PolicyViolation{Severity: SeverityCritical}
	}
	assert.Equal(t, 0, ComplianceScore(pile, 2))
}

func TestPropertiesEqual(t *testing.T) {
	assert.True(t, PropertiesEqual("t2.micro", "t2.micro"))
	assert.False(t, PropertiesEqual("t2.micro", "t2.large"))

	// Numeric values compare equal across int/float representations, as
	// produced by YAML templates on one side and JSON API responses on
	// the other.
	assert.True(t, PropertiesEqual(3, float64(3)))
	assert.True(t, PropertiesEqual(int64(8080), 8080.0))

	// Maps are order-insensitive.
	assert.True(t, PropertiesEqual(
		map[string]any{"a": 1, "b": "x"},
		map[string]any{"b": "x", "a": float64(1)},
	))

	// Lists are order-sensitive.
	assert.True(t, PropertiesEqual([]any{"a", "b"}, []any{"a", "b"}))
	assert.False(t, PropertiesEqual([]any{"a", "b"}, []any{"b", "a"}))

	// Nested structures normalize recursively.
	assert.True(t, PropertiesEqual(
		map[string]any{"ports": []any{80, 443}},
		map[string]any{"ports": []any{float64(80), float64(443)}},
	))
}

func TestResourceState_PropertyKeys(t *testing.T) {
	state := ResourceState{
		ResourceID: "vm-1",
		Type:       "AWS::EC2::Instance",
		Properties: map[string]any{"zeta": 1, "alpha": 2, "mid": 3},
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, state.PropertyKeys())
}

func TestIndexResourceStates(t *testing.T) {
	states := []ResourceState{
		{ResourceID: "vm-1", Type: "AWS::EC2::Instance"},
		{ResourceID: "bucket-1", Type: "AWS::S3::Bucket"},
	}
	index := IndexResourceStates(states)
	require.Len(t, index, 2)
	assert.Equal(t, "AWS::EC2::Instance", index["vm-1"].Type)
	assert.Equal(t, "AWS::S3::Bucket", index["bucket-1"].Type)
}

func TestArtifact_Resolved(t *testing.T) {
	assert.False(t, Artifact{Source: &GitSourceRef{URL: "https://example.com/repo.git"}}.Resolved())
	assert.True(t, Artifact{Payload: "Resources: {}"}.Resolved())
}

func TestIsTransientBackend(t *testing.T) {
	transient := &TransientBackendError{Op: "apply", Err: assert.AnError}
	fatal := &FatalBackendError{Op: "apply", Err: assert.AnError}

	assert.True(t, IsTransientBackend(transient))
	assert.False(t, IsTransientBackend(fatal))
	assert.False(t, IsTransientBackend(assert.AnError))
}

func TestIsConflict(t *testing.T) {
	conflict := &ConflictError{TargetKey: "prod-aws-web"}
	assert.True(t, IsConflict(conflict))
	assert.False(t, IsConflict(assert.AnError))
	assert.Contains(t, conflict.Error(), "prod-aws-web")
}
