// Package approval implements the risk and approval gate that decides
// whether a planned deployment may proceed without human sign-off.
package approval

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/repository"
)

// Gate classifies deployments as auto-approved or requiring manual
// approval. It never mutates infrastructure and is safe to call
// concurrently for different deployments.
type Gate struct {
	thresholds      map[domain.Environment]domain.ApprovalThresholds
	automationLevel domain.AutomationLevel
	approvals       repository.ApprovalRepository
}

func NewGate(
	thresholds map[domain.Environment]domain.ApprovalThresholds,
	automationLevel domain.AutomationLevel,
	approvals repository.ApprovalRepository,
) *Gate {
	return &Gate{
		thresholds:      thresholds,
		automationLevel: automationLevel,
		approvals:       approvals,
	}
}

// Decide evaluates the gate checks in a fixed short-circuit order so the
// rejection reason names the first failing metric, not a bag of reasons:
// automation level, blocking violations, security score, risk level,
// budget, production sign-off. Production is checked last so a prod
// rejection still names the failing metric; the sign-off reason is used
// only when every metric passes. Every decision is appended to the
// approval history for the deployment, approved or not.
func (g *Gate) Decide(
	deployment *domain.Deployment,
	violations []domain.PolicyViolation,
	securityScore int,
	riskLevel int,
	cost domain.CostEstimate,
) (*domain.ApprovalDecision, error) {
	thresholds := g.thresholds[deployment.Environment]
	blocking := countBlocking(violations)

	conditions := domain.ApprovalConditions{
		GuardrailsPassed: blocking == 0,
		SecurityScore:    securityScore,
		CostWithinBudget: cost.WithinBudget,
		RiskLevel:        riskLevel,
	}

	approved, reason := g.check(deployment.Environment, thresholds, blocking, securityScore, riskLevel, cost)

	decision := &domain.ApprovalDecision{
		ID:           uuid.New(),
		DeploymentID: deployment.ID,
		Approved:     approved,
		Reason:       reason,
		Conditions:   conditions,
		Timestamp:    time.Now(),
	}

	if err := g.approvals.Create(decision); err != nil {
		return nil, fmt.Errorf("failed to record approval decision: %w", err)
	}

	slog.Info("Approval decision recorded",
		"layer", "approval",
		"operation", "decide",
		"deployment_id", deployment.ID,
		"environment", deployment.Environment,
		"approved", approved,
		"reason", reason,
		"security_score", securityScore,
		"risk_level", riskLevel,
		"risk_category", domain.RiskCategory(riskLevel),
		"blocking_violations", blocking)

	return decision, nil
}

func (g *Gate) check(
	env domain.Environment,
	thresholds domain.ApprovalThresholds,
	blocking int,
	securityScore int,
	riskLevel int,
	cost domain.CostEstimate,
) (bool, string) {
	if !g.automationLevel.CanAutoApprove() {
		return false, fmt.Sprintf("Automation level %d requires manual approval", g.automationLevel)
	}

	if blocking > 0 {
		return false, fmt.Sprintf("%d blocking policy violation(s)", blocking)
	}

	if securityScore < thresholds.MinSecurityScore {
		return false, fmt.Sprintf("Security score %d below threshold %d", securityScore, thresholds.MinSecurityScore)
	}

	if riskLevel > thresholds.MaxRiskLevel {
		return false, fmt.Sprintf("Risk level %d above threshold %d", riskLevel, thresholds.MaxRiskLevel)
	}

	if !cost.WithinBudget {
		return false, fmt.Sprintf("Estimated cost %.2f %s exceeds budget %.2f", cost.Monthly, cost.Currency, cost.Budget)
	}

	// Production always requires explicit sign-off, at every automation
	// level, but only after every metric check passed so a failing metric
	// is still named in the reason
	if env == domain.EnvironmentProd {
		return false, "Production deployments require manual approval"
	}

	return true, "All conditions met"
}

// History returns the chronological approval history for a deployment
func (g *Gate) History(deploymentID uuid.UUID) ([]*domain.ApprovalDecision, error) {
	return g.approvals.ListByDeployment(deploymentID)
}

func countBlocking(violations []domain.PolicyViolation) int {
	n := 0
	for _, v := range violations {
		if v.Blocking {
			n++
		}
	}
	return n
}
