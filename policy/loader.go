package policy

import (
	"fmt"
	"os"

	"github.com/meridian-cd/meridian/domain"
	"gopkg.in/yaml.v3"
)

// policyYAML mirrors one rule in the policy file
type policyYAML struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Field        string   `yaml:"field"`
	Operator     string   `yaml:"operator"`
	Value        any      `yaml:"value"`
	Condition    string   `yaml:"condition"`
	Severity     string   `yaml:"severity"`
	Environments []string `yaml:"environments"`
	Blocking     bool     `yaml:"blocking"`
}

type policyFileYAML struct {
	Policies []policyYAML `yaml:"policies"`
}

// LoadFile reads and validates the policy set from a YAML file. Validation
// failures are startup errors; a malformed policy file should never make it
// into a running evaluator.
func LoadFile(path string) ([]domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	policies, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return policies, nil
}

// Parse decodes and validates a YAML policy document
func Parse(data []byte) ([]domain.Policy, error) {
	var file policyFileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Policies))
	policies := make([]domain.Policy, 0, len(file.Policies))
	for i, p := range file.Policies {
		if p.ID == "" {
			return nil, fmt.Errorf("policy %d: id is required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("policy %s: duplicate id", p.ID)
		}
		seen[p.ID] = true

		if p.Field == "" {
			return nil, fmt.Errorf("policy %s: field is required", p.ID)
		}

		operator := domain.PolicyOperator(p.Operator)
		if !operator.IsValid() {
			return nil, fmt.Errorf("policy %s: invalid operator %q", p.ID, p.Operator)
		}
		if operator == domain.OperatorMatches {
			if p.Condition == "" {
				return nil, fmt.Errorf("policy %s: matches operator requires a condition", p.ID)
			}
			if _, err := compileAnchored(p.Condition); err != nil {
				return nil, fmt.Errorf("policy %s: invalid condition: %w", p.ID, err)
			}
		} else if p.Value == nil {
			return nil, fmt.Errorf("policy %s: value is required for operator %q", p.ID, p.Operator)
		}

		severity, err := domain.ParseSeverity(p.Severity)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.ID, err)
		}
		if severity == domain.SeverityEvaluationError {
			return nil, fmt.Errorf("policy %s: severity %q is reserved", p.ID, p.Severity)
		}

		environments := make([]domain.Environment, 0, len(p.Environments))
		for _, e := range p.Environments {
			env, err := domain.ParseEnvironment(e)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", p.ID, err)
			}
			environments = append(environments, env)
		}

		policies = append(policies, domain.Policy{
			ID:           p.ID,
			Name:         p.Name,
			Field:        p.Field,
			Operator:     operator,
			Value:        p.Value,
			Condition:    p.Condition,
			Severity:     severity,
			Environments: environments,
			Blocking:     p.Blocking,
		})
	}

	return policies, nil
}
