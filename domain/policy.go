package domain

import "fmt"

// PolicyOperator is the comparison a policy rule applies to a field
type PolicyOperator string

const (
	OperatorEquals      PolicyOperator = "equals"
	OperatorNotEquals   PolicyOperator = "not-equals"
	OperatorContains    PolicyOperator = "contains"
	OperatorGreaterThan PolicyOperator = "greater-than"
	OperatorMatches     PolicyOperator = "matches"
)

func (o PolicyOperator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorGreaterThan, OperatorMatches:
		return true
	default:
		return false
	}
}

// Policy is a named compliance rule loaded at startup. Policies are
// read-mostly configuration and are never mutated by evaluation.
type Policy struct {
	ID           string
	Name         string
	Field        string
	Operator     PolicyOperator
	Value        any    // expected value for equals/not-equals/contains/greater-than
	Condition    string // anchored pattern for the matches operator
	Severity     Severity
	Environments []Environment // environments the policy applies to; empty means all
	Blocking     bool
}

// AppliesTo reports whether the policy is in effect for the environment
func (p *Policy) AppliesTo(env Environment) bool {
	if len(p.Environments) == 0 {
		return true
	}
	for _, e := range p.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// ComponentConfig is one entry of the flattened configuration snapshot a
// policy set is evaluated against: a component plus its field map.
type ComponentConfig struct {
	Name   string
	Type   string
	Fields map[string]any
}

// PolicyViolation is the evaluation output for one failed rule
type PolicyViolation struct {
	PolicyID     string
	ComponentRef string
	Field        string
	Actual       any
	Expected     any
	Severity     Severity
	Blocking     bool
	Message      string
}

func (v PolicyViolation) String() string {
	return fmt.Sprintf("policy %s: component %s field %s: expected %v, got %v (%s)",
		v.PolicyID, v.ComponentRef, v.Field, v.Expected, v.Actual, v.Severity)
}

// HasBlocking reports whether any violation in the list is blocking
func HasBlocking(violations []PolicyViolation) bool {
	for _, v := range violations {
		if v.Blocking {
			return true
		}
	}
	return false
}

// ComplianceScore computes a 0-100 score from severity-weighted violations.
// Weights: critical 10, high 5, medium 2, low 1. Evaluation-error
// violations do not count against the score.
func ComplianceScore(violations []PolicyViolation, totalPolicies int) int {
	if totalPolicies == 0 {
		return 100
	}
	weighted := 0
	for _, v := range violations {
		switch v.Severity {
		case SeverityCritical:
			weighted += 10
		case SeverityHigh:
			weighted += 5
		case SeverityMedium:
			weighted += 2
		case SeverityLow:
			weighted++
		}
	}
	maxDeduction := totalPolicies * 10
	if weighted > maxDeduction {
		weighted = maxDeduction
	}
	return 100 - (weighted*100)/maxDeduction
}
