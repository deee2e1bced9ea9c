package domain

import "fmt"

// DeploymentStatus represents the lifecycle state of a deployment
type DeploymentStatus int

const (
	DeploymentStatusUnknown DeploymentStatus = iota
	DeploymentStatusPending
	DeploymentStatusPlanning
	DeploymentStatusApprovalPending
	DeploymentStatusApplying
	DeploymentStatusCompleted
	DeploymentStatusFailed
	DeploymentStatusRolledBack
)

func (s DeploymentStatus) String() string {
	switch s {
	case DeploymentStatusPending:
		return "pending"
	case DeploymentStatusPlanning:
		return "planning"
	case DeploymentStatusApprovalPending:
		return "approval_pending"
	case DeploymentStatusApplying:
		return "applying"
	case DeploymentStatusCompleted:
		return "completed"
	case DeploymentStatusFailed:
		return "failed"
	case DeploymentStatusRolledBack:
		return "rolled_back"
	case DeploymentStatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is terminal. Deployments in a
// terminal state are immutable and their target lock has been released.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusCompleted, DeploymentStatusFailed, DeploymentStatusRolledBack:
		return true
	default:
		return false
	}
}

func ParseDeploymentStatus(s string) (DeploymentStatus, error) {
	switch s {
	case "pending":
		return DeploymentStatusPending, nil
	case "planning":
		return DeploymentStatusPlanning, nil
	case "approval_pending":
		return DeploymentStatusApprovalPending, nil
	case "applying":
		return DeploymentStatusApplying, nil
	case "completed":
		return DeploymentStatusCompleted, nil
	case "failed":
		return DeploymentStatusFailed, nil
	case "rolled_back":
		return DeploymentStatusRolledBack, nil
	case "unknown":
		return DeploymentStatusUnknown, nil
	default:
		return DeploymentStatusUnknown, fmt.Errorf("invalid deployment status: %q", s)
	}
}

// Environment identifies the target environment class of a deployment
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
)

func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the Environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentDev, EnvironmentStaging, EnvironmentProd:
		return true
	default:
		return false
	}
}

func ParseEnvironment(s string) (Environment, error) {
	env := Environment(s)
	if !env.IsValid() {
		return "", fmt.Errorf("invalid environment: %q", s)
	}
	return env, nil
}

// Severity classifies policy violations and drift items
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"

	// SeverityEvaluationError marks a violation produced by a malformed
	// policy rule rather than a real compliance failure. It is always
	// non-blocking so callers can alert on broken policies without
	// stalling deployments.
	SeverityEvaluationError Severity = "evaluation-error"
)

func (s Severity) String() string {
	return string(s)
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical, SeverityEvaluationError:
		return true
	default:
		return false
	}
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.IsValid() {
		return "", fmt.Errorf("invalid severity: %q", s)
	}
	return sev, nil
}

// DriftAction is the resolution applied to a single drift item
type DriftAction string

const (
	DriftActionAutoFix DriftAction = "auto-fix"
	DriftActionNotify  DriftAction = "notify"
	DriftActionIgnore  DriftAction = "ignore"
)

func (a DriftAction) String() string {
	return string(a)
}

func (a DriftAction) IsValid() bool {
	switch a {
	case DriftActionAutoFix, DriftActionNotify, DriftActionIgnore:
		return true
	default:
		return false
	}
}

func ParseDriftAction(s string) (DriftAction, error) {
	action := DriftAction(s)
	if !action.IsValid() {
		return "", fmt.Errorf("invalid drift action: %q", s)
	}
	return action, nil
}
