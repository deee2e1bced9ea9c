package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ConflictError indicates the deployment target is already locked by
// another in-flight deployment. Callers must retry later; the orchestrator
// never queues or retries conflicting requests itself.
type ConflictError struct {
	TargetKey string
	HolderID  uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("target %q is locked by deployment %s", e.TargetKey, e.HolderID)
}

// IsConflict reports whether err is a lock conflict
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// PolicyEvaluationError indicates a single malformed policy rule: an
// unknown operator, an invalid pattern, or a type mismatch. It is isolated
// to that rule and never aborts the broader evaluation or the deployment.
type PolicyEvaluationError struct {
	PolicyID string
	Field    string
	Reason   string
}

func (e *PolicyEvaluationError) Error() string {
	return fmt.Sprintf("policy %s: evaluation failed on field %q: %s", e.PolicyID, e.Field, e.Reason)
}

// TransientBackendError indicates a retryable backend failure such as a
// network error or timeout. The orchestrator retries with exponential
// backoff up to a fixed attempt cap before escalating to fatal.
type TransientBackendError struct {
	Op  string
	Err error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient backend error during %s: %v", e.Op, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// FatalBackendError indicates a permanent backend failure such as a
// malformed artifact or denied permission. It immediately fails the
// deployment and triggers rollback evaluation.
type FatalBackendError struct {
	Op  string
	Err error
}

func (e *FatalBackendError) Error() string {
	return fmt.Sprintf("fatal backend error during %s: %v", e.Op, e.Err)
}

func (e *FatalBackendError) Unwrap() error { return e.Err }

// IsTransientBackend reports whether err is a retryable backend failure
func IsTransientBackend(err error) bool {
	var transient *TransientBackendError
	return errors.As(err, &transient)
}

// ScanError wraps a live-state fetch failure for one deployment during a
// drift sweep. It is isolated per deployment and never aborts the sweep.
type ScanError struct {
	DeploymentID uuid.UUID
	Err          error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("drift scan failed for deployment %s: %v", e.DeploymentID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ApprovalRejectedError indicates an explicit operator rejection. Terminal,
// never retried.
type ApprovalRejectedError struct {
	DeploymentID uuid.UUID
	Reason       string
}

func (e *ApprovalRejectedError) Error() string {
	return fmt.Sprintf("deployment %s rejected by operator: %s", e.DeploymentID, e.Reason)
}

// ErrUnknownFormat is returned at creation time when no execution backend
// is registered for a deployment's format. A missing adapter is a
// configuration error, surfaced before any lock is taken.
var ErrUnknownFormat = errors.New("no execution backend registered for format")

// ErrDeploymentNotFound is returned when a deployment id does not exist
var ErrDeploymentNotFound = errors.New("deployment not found")
