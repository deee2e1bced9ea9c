// Package policy implements the compliance rule engine deployments are
// evaluated against before approval.
package policy

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/meridian-cd/meridian/domain"
)

// Evaluator applies a policy set to a configuration snapshot. It performs
// no I/O; evaluating the same inputs twice yields the same violation list
// in the same order.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate checks every component against every policy applicable to the
// environment. Violations come out in input component order, then input
// policy order. A malformed rule produces a single non-blocking
// evaluation-error violation and does not abort the remaining rules.
func (e *Evaluator) Evaluate(
	components []domain.ComponentConfig,
	policies []domain.Policy,
	env domain.Environment,
) []domain.PolicyViolation {
	// Compile match patterns once per policy, not once per component. A
	// broken pattern is reported for each component the rule applies to.
	patterns := make(map[string]*regexp.Regexp, len(policies))
	patternErrs := make(map[string]error, len(policies))
	for i := range policies {
		p := &policies[i]
		if p.Operator != domain.OperatorMatches {
			continue
		}
		re, err := compileAnchored(p.Condition)
		if err != nil {
			patternErrs[p.ID] = err
			continue
		}
		patterns[p.ID] = re
	}

	var violations []domain.PolicyViolation
	for _, component := range components {
		for i := range policies {
			p := &policies[i]
			if !p.AppliesTo(env) {
				continue
			}

			actual, ok := component.Fields[p.Field]
			if !ok {
				// The rule names a field this component does not carry
				continue
			}

			if err, broken := patternErrs[p.ID]; broken {
				violations = append(violations, evaluationErrorViolation(p, component.Name, actual, err))
				continue
			}

			passed, err := applyOperator(p, actual, patterns[p.ID])
			if err != nil {
				violations = append(violations, evaluationErrorViolation(p, component.Name, actual,
					&domain.PolicyEvaluationError{PolicyID: p.ID, Field: p.Field, Reason: err.Error()}))
				continue
			}
			if passed {
				continue
			}

			violations = append(violations, domain.PolicyViolation{
				PolicyID:     p.ID,
				ComponentRef: component.Name,
				Field:        p.Field,
				Actual:       actual,
				Expected:     expectedValue(p),
				Severity:     p.Severity,
				Blocking:     p.Blocking,
				Message: fmt.Sprintf("field %s: expected %s %v, got %v",
					p.Field, p.Operator, expectedValue(p), actual),
			})
		}
	}
	return violations
}

func expectedValue(p *domain.Policy) any {
	if p.Operator == domain.OperatorMatches {
		return p.Condition
	}
	return p.Value
}

func evaluationErrorViolation(p *domain.Policy, componentRef string, actual any, err error) domain.PolicyViolation {
	return domain.PolicyViolation{
		PolicyID:     p.ID,
		ComponentRef: componentRef,
		Field:        p.Field,
		Actual:       actual,
		Expected:     expectedValue(p),
		Severity:     domain.SeverityEvaluationError,
		Blocking:     false,
		Message:      err.Error(),
	}
}

// applyOperator returns whether the rule passes for the field value
func applyOperator(p *domain.Policy, actual any, pattern *regexp.Regexp) (bool, error) {
	switch p.Operator {
	case domain.OperatorEquals:
		return valuesEqual(actual, p.Value), nil
	case domain.OperatorNotEquals:
		return !valuesEqual(actual, p.Value), nil
	case domain.OperatorContains:
		return containsValue(actual, p.Value)
	case domain.OperatorGreaterThan:
		actualNum, ok := toFloat(actual)
		if !ok {
			return false, fmt.Errorf("greater-than requires a numeric field, got %T", actual)
		}
		expectedNum, ok := toFloat(p.Value)
		if !ok {
			return false, fmt.Errorf("greater-than requires a numeric expected value, got %T", p.Value)
		}
		return actualNum > expectedNum, nil
	case domain.OperatorMatches:
		return pattern.MatchString(fmt.Sprintf("%v", actual)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", p.Operator)
	}
}

// valuesEqual compares with numeric normalization so YAML/JSON decoded
// values compare equal to in-memory literals
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// containsValue checks membership in an array-like field value
func containsValue(container, member any) (bool, error) {
	v := reflect.ValueOf(container)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return false, fmt.Errorf("contains requires an array-like field, got %T", container)
	}
	for i := 0; i < v.Len(); i++ {
		if valuesEqual(v.Index(i).Interface(), member) {
			return true, nil
		}
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// compileAnchored compiles a policy condition as a fully anchored pattern
// so "sg-" does not accidentally match mid-string
func compileAnchored(condition string) (*regexp.Regexp, error) {
	if condition == "" {
		return nil, fmt.Errorf("matches operator requires a condition")
	}
	return regexp.Compile("^(?:" + condition + ")$")
}
