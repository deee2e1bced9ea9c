package approval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) Create(decision *domain.ApprovalDecision) error {
	args := m.Called(decision)
	return args.Error(0)
}

func (m *MockApprovalRepository) ListByDeployment(deploymentID uuid.UUID) ([]*domain.ApprovalDecision, error) {
	args := m.Called(deploymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ApprovalDecision), args.Error(1)
}

func defaultThresholds() map[domain.Environment]domain.ApprovalThresholds {
	return map[domain.Environment]domain.ApprovalThresholds{
		domain.EnvironmentDev:     {MinSecurityScore: 70, MaxRiskLevel: 50},
		domain.EnvironmentStaging: {MinSecurityScore: 80, MaxRiskLevel: 30},
		domain.EnvironmentProd:    {MinSecurityScore: 90, MaxRiskLevel: 20},
	}
}

func newGate(t *testing.T, level domain.AutomationLevel) (*Gate, *MockApprovalRepository) {
	t.Helper()
	repo := new(MockApprovalRepository)
	repo.On("Create", mock.AnythingOfType("*domain.ApprovalDecision")).Return(nil)
	return NewGate(defaultThresholds(), level, repo), repo
}

func testDeployment(env domain.Environment) domain.Deployment {
	return domain.NewDeployment("bp-1", "job-1", "aws", "cloudformation", env)
}

func okCost() domain.CostEstimate {
	return domain.CostEstimate{Monthly: 120, Budget: 500, Currency: "USD", WithinBudget: true}
}

func TestGate_AutoApprovesCleanNonProd(t *testing.T) {
	gate, repo := newGate(t, domain.AutomationAggressive)
	deployment := testDeployment(domain.EnvironmentDev)

	decision, err := gate.Decide(&deployment, nil, 85, 25, okCost())
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "All conditions met", decision.Reason)
	assert.True(t, decision.Conditions.GuardrailsPassed)
	assert.Equal(t, 85, decision.Conditions.SecurityScore)
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestGate_LowAutomationNeverAutoApproves(t *testing.T) {
	for _, level := range []domain.AutomationLevel{domain.AutomationManual, domain.AutomationAssisted} {
		gate, _ := newGate(t, level)
		deployment := testDeployment(domain.EnvironmentDev)

		// Perfect scores still require manual approval below level 2
		decision, err := gate.Decide(&deployment, nil, 100, 0, okCost())
		require.NoError(t, err)
		assert.False(t, decision.Approved)
		assert.Contains(t, decision.Reason, "manual approval")
	}
}

func TestGate_ProdNeverAutoApproved(t *testing.T) {
	for _, level := range []domain.AutomationLevel{
		domain.AutomationManual,
		domain.AutomationAssisted,
		domain.AutomationAutoNonProd,
		domain.AutomationAggressive,
	} {
		gate, _ := newGate(t, level)
		deployment := testDeployment(domain.EnvironmentProd)

		decision, err := gate.Decide(&deployment, nil, 100, 0, okCost())
		require.NoError(t, err)
		assert.False(t, decision.Approved, "prod must never auto-approve at level %d", level)
	}
}

func TestGate_BlockingViolationRejectsRegardlessOfScores(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAggressive)
	deployment := testDeployment(domain.EnvironmentDev)

	violations := []domain.PolicyViolation{
		{PolicyID: "encryption-required", Severity: domain.SeverityCritical, Blocking: true},
		{PolicyID: "naming", Severity: domain.SeverityLow, Blocking: false},
	}

	decision, err := gate.Decide(&deployment, violations, 100, 0, okCost())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "1 blocking policy violation(s)", decision.Reason)
	assert.False(t, decision.Conditions.GuardrailsPassed)
}

func TestGate_NonBlockingViolationsDoNotReject(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentStaging)

	violations := []domain.PolicyViolation{
		{PolicyID: "naming", Severity: domain.SeverityLow, Blocking: false},
		{PolicyID: "broken", Severity: domain.SeverityEvaluationError, Blocking: false},
	}

	decision, err := gate.Decide(&deployment, violations, 85, 20, okCost())
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestGate_SecurityScoreBelowThreshold(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentStaging)

	decision, err := gate.Decide(&deployment, nil, 75, 10, okCost())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "Security score 75 below threshold 80", decision.Reason)
}

func TestGate_ProdSecurityScoreBelowThreshold(t *testing.T) {
	// A failing metric in prod is named in the reason; the manual
	// sign-off reason applies only when every metric passes
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentProd)

	decision, err := gate.Decide(&deployment, nil, 75, 10, okCost())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "Security score 75 below threshold 90", decision.Reason)
	assert.Contains(t, decision.Reason, "75")
	assert.Contains(t, decision.Reason, "90")
}

func TestGate_ProdCleanMetricsStillNeedSignOff(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAggressive)
	deployment := testDeployment(domain.EnvironmentProd)

	decision, err := gate.Decide(&deployment, nil, 95, 10, okCost())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "Production deployments require manual approval", decision.Reason)
}

func TestGate_RiskLevelAboveThreshold(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentStaging)

	decision, err := gate.Decide(&deployment, nil, 95, 45, okCost())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "Risk level 45 above threshold 30", decision.Reason)
}

func TestGate_CostOverBudget(t *testing.T) {
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentDev)

	cost := domain.CostEstimate{Monthly: 900, Budget: 500, Currency: "USD", WithinBudget: false}
	decision, err := gate.Decide(&deployment, nil, 95, 10, cost)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "exceeds budget")
	assert.False(t, decision.Conditions.CostWithinBudget)
}

func TestGate_ShortCircuitOrder(t *testing.T) {
	// All checks fail; the reason must name the first failing one
	gate, _ := newGate(t, domain.AutomationAutoNonProd)
	deployment := testDeployment(domain.EnvironmentStaging)

	violations := []domain.PolicyViolation{{PolicyID: "p", Blocking: true}}
	cost := domain.CostEstimate{WithinBudget: false}

	decision, err := gate.Decide(&deployment, violations, 10, 99, cost)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "1 blocking policy violation(s)", decision.Reason)
}

func TestGate_DecisionRecordedOnRejection(t *testing.T) {
	gate, repo := newGate(t, domain.AutomationManual)
	deployment := testDeployment(domain.EnvironmentDev)

	_, err := gate.Decide(&deployment, nil, 90, 10, okCost())
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "Create", 1)
	recorded := repo.Calls[0].Arguments.Get(0).(*domain.ApprovalDecision)
	assert.Equal(t, deployment.ID, recorded.DeploymentID)
	assert.False(t, recorded.Approved)
}

func TestGate_PersistFailure(t *testing.T) {
	repo := new(MockApprovalRepository)
	repo.On("Create", mock.Anything).Return(assert.AnError)
	gate := NewGate(defaultThresholds(), domain.AutomationAggressive, repo)
	deployment := testDeployment(domain.EnvironmentDev)

	_, err := gate.Decide(&deployment, nil, 90, 10, okCost())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record approval decision")
}

func TestRiskCategory(t *testing.T) {
	assert.Equal(t, domain.SeverityLow, domain.RiskCategory(0))
	assert.Equal(t, domain.SeverityLow, domain.RiskCategory(24))
	assert.Equal(t, domain.SeverityMedium, domain.RiskCategory(25))
	assert.Equal(t, domain.SeverityHigh, domain.RiskCategory(50))
	assert.Equal(t, domain.SeverityCritical, domain.RiskCategory(75))
	assert.Equal(t, domain.SeverityCritical, domain.RiskCategory(100))
}
