// Package backend defines the execution backend contract implemented once
// per IaC format, plus the registry deployments select adapters from.
package backend

import (
	"context"

	"github.com/meridian-cd/meridian/domain"
)

// Target identifies the stack or unit of infrastructure an operation
// applies to within the backend
type Target struct {
	Name        string // derived from the deployment's target key
	Environment domain.Environment
}

// PlanResult is the outcome of a side-effect-free plan
type PlanResult struct {
	Summary domain.PlanSummary
	Logs    []string
}

// ApplyResult is the outcome of a successful apply. ResourceStates is the
// desired state snapshot the caller persists for drift comparison.
type ApplyResult struct {
	ResourceStates []domain.ResourceState
	Logs           []string
}

// DestroyResult is the outcome of a destroy
type DestroyResult struct {
	Logs []string
}

// Backend executes plans and applies for one IaC format.
//
// Plan must be read-only against live state. Apply must be idempotent:
// re-applying an unchanged artifact to a converged target reports zero
// changes instead of erroring. Implementations classify failures as
// domain.TransientBackendError (retryable) or domain.FatalBackendError.
type Backend interface {
	Plan(ctx context.Context, target Target, artifact domain.Artifact) (*PlanResult, error)
	Apply(ctx context.Context, target Target, artifact domain.Artifact) (*ApplyResult, error)
	Destroy(ctx context.Context, target Target) (*DestroyResult, error)

	// ReadState fetches the live actual state of the target, read-only.
	// Used by drift scans.
	ReadState(ctx context.Context, target Target) ([]domain.ResourceState, error)
}
