package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AutomationLevel controls how much of the approval gate may be bypassed
// automatically for non-production environments. Production always requires
// explicit sign-off regardless of level.
type AutomationLevel int

const (
	// AutomationManual requires manual approval for everything
	AutomationManual AutomationLevel = 0
	// AutomationAssisted surfaces analysis but never auto-approves
	AutomationAssisted AutomationLevel = 1
	// AutomationAutoNonProd auto-approves non-prod deployments
	AutomationAutoNonProd AutomationLevel = 2
	// AutomationAggressive auto-approves all non-prod deployments aggressively
	AutomationAggressive AutomationLevel = 3
)

func (l AutomationLevel) IsValid() bool {
	return l >= AutomationManual && l <= AutomationAggressive
}

// CanAutoApprove reports whether this level permits any automatic approval
func (l AutomationLevel) CanAutoApprove() bool {
	return l >= AutomationAutoNonProd
}

// CostEstimate is the upstream costing service's verdict for a deployment
type CostEstimate struct {
	Monthly      float64
	Budget       float64
	Currency     string
	WithinBudget bool
}

// ApprovalConditions is the snapshot of inputs an approval decision was
// made against, recorded for audit
type ApprovalConditions struct {
	GuardrailsPassed bool
	SecurityScore    int
	CostWithinBudget bool
	RiskLevel        int
}

// ApprovalDecision is the gate's verdict for one deployment attempt.
// Immutable once produced; retries produce a new decision.
type ApprovalDecision struct {
	ID           uuid.UUID
	DeploymentID uuid.UUID
	Approved     bool
	Reason       string
	Conditions   ApprovalConditions
	Timestamp    time.Time
}

// RiskCategory bands a numeric risk level for display and alerting
func RiskCategory(riskLevel int) Severity {
	switch {
	case riskLevel < 25:
		return SeverityLow
	case riskLevel < 50:
		return SeverityMedium
	case riskLevel < 75:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ApprovalThresholds holds the per-environment gate limits. These are
// operator-tunable configuration, not product constants.
type ApprovalThresholds struct {
	MinSecurityScore int
	MaxRiskLevel     int
}

func (t ApprovalThresholds) Validate() error {
	if t.MinSecurityScore < 0 || t.MinSecurityScore > 100 {
		return fmt.Errorf("min security score must be 0-100, got %d", t.MinSecurityScore)
	}
	if t.MaxRiskLevel < 0 || t.MaxRiskLevel > 100 {
		return fmt.Errorf("max risk level must be 0-100, got %d", t.MaxRiskLevel)
	}
	return nil
}
