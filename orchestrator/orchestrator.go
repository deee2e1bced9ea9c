// Package orchestrator drives deployments through their lifecycle: lock
// acquisition, planning, policy evaluation, the approval gate, apply, and
// rollback. One worker goroutine steps each deployment; the target lock
// guarantees at most one in-flight deployment per target key.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/approval"
	"github.com/meridian-cd/meridian/artifact"
	"github.com/meridian-cd/meridian/backend"
	"github.com/meridian-cd/meridian/config"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/notify"
	"github.com/meridian-cd/meridian/policy"
	"github.com/meridian-cd/meridian/repository"
	"gopkg.in/yaml.v3"
)

// CreateDeploymentRequest carries everything the lifecycle needs up front.
// Security score, risk level, and cost verdict are computed upstream and
// travel with the request; the gate snapshots them into its decision.
type CreateDeploymentRequest struct {
	BlueprintID     string
	GenerationJobID string
	TargetCloud     string
	Format          string
	Environment     domain.Environment
	Artifact        domain.Artifact
	Components      []domain.ComponentConfig
	SecurityScore   int
	RiskLevel       int
	Cost            domain.CostEstimate
	MonitorEnabled  bool
	MonitorInterval time.Duration
}

// gateInput holds the per-request gate parameters for the worker. They are
// only needed between planning and the gate decision, so they live in
// memory; the decision itself is durable.
type gateInput struct {
	components    []domain.ComponentConfig
	securityScore int
	riskLevel     int
	cost          domain.CostEstimate
}

type Orchestrator struct {
	deployments repository.DeploymentRepository
	locks       repository.LockRepository
	states      repository.StateRepository
	registry    *backend.Registry
	resolver    *artifact.Resolver
	evaluator   *policy.Evaluator
	policies    []domain.Policy
	gate        *approval.Gate
	events      *notify.Dispatcher
	cfg         config.OrchestratorConfig

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	cancels   map[uuid.UUID]context.CancelFunc
	cancelled map[uuid.UUID]bool

	// opMu serializes operator transitions (Approve, Reject, Cancel) so
	// two racing calls cannot both observe approval_pending and each
	// start a worker for the same deployment
	opMu sync.Mutex
}

func NewOrchestrator(
	deployments repository.DeploymentRepository,
	locks repository.LockRepository,
	states repository.StateRepository,
	registry *backend.Registry,
	resolver *artifact.Resolver,
	evaluator *policy.Evaluator,
	policies []domain.Policy,
	gate *approval.Gate,
	events *notify.Dispatcher,
	cfg config.OrchestratorConfig,
) *Orchestrator {
	baseCtx, baseStop := context.WithCancel(context.Background())
	return &Orchestrator{
		deployments: deployments,
		locks:       locks,
		states:      states,
		registry:    registry,
		resolver:    resolver,
		evaluator:   evaluator,
		policies:    policies,
		gate:        gate,
		events:      events,
		cfg:         cfg,
		baseCtx:     baseCtx,
		baseStop:    baseStop,
		cancels:     make(map[uuid.UUID]context.CancelFunc),
		cancelled:   make(map[uuid.UUID]bool),
	}
}

// CreateDeployment validates the request, acquires the target lock, persists
// the deployment, and starts its worker. A held lock surfaces as
// ConflictError immediately; there is no queueing.
func (o *Orchestrator) CreateDeployment(req CreateDeploymentRequest) (*domain.Deployment, error) {
	if !req.Environment.IsValid() {
		return nil, fmt.Errorf("invalid environment: %q", req.Environment)
	}
	// An unregistered format is a configuration error, caught before any
	// lock is taken
	if _, err := o.registry.Get(req.Format); err != nil {
		return nil, err
	}

	deployment := domain.NewDeployment(req.BlueprintID, req.GenerationJobID, req.TargetCloud, req.Format, req.Environment)
	deployment.Artifact = req.Artifact
	deployment.MonitorEnabled = req.MonitorEnabled
	deployment.MonitorInterval = req.MonitorInterval

	if err := o.locks.Acquire(deployment.TargetKey(), deployment.ID); err != nil {
		return nil, err
	}

	if err := o.deployments.Create(&deployment); err != nil {
		if releaseErr := o.locks.Release(deployment.TargetKey(), deployment.ID); releaseErr != nil {
			slog.Error("Failed to release lock after create failure",
				"layer", "orchestrator",
				"deployment_id", deployment.ID,
				"error", releaseErr)
		}
		return nil, fmt.Errorf("failed to persist deployment: %w", err)
	}

	slog.Info("Deployment created",
		"layer", "orchestrator",
		"operation", "create_deployment",
		"deployment_id", deployment.ID,
		"target_key", deployment.TargetKey(),
		"format", deployment.Format,
		"environment", deployment.Environment.String())

	in := gateInput{
		components:    req.Components,
		securityScore: req.SecurityScore,
		riskLevel:     req.RiskLevel,
		cost:          req.Cost,
	}
	o.startWorker(deployment, func(ctx context.Context, d *domain.Deployment) {
		o.runLifecycle(ctx, d, in)
	})

	result := deployment
	return &result, nil
}

// GetDeployment fetches a deployment by id
func (o *Orchestrator) GetDeployment(id uuid.UUID) (*domain.Deployment, error) {
	return o.deployments.FindByID(id)
}

// ListDeployments returns all deployments
func (o *Orchestrator) ListDeployments() ([]*domain.Deployment, error) {
	return o.deployments.List()
}

// ApprovalHistory returns every gate decision recorded for a deployment
func (o *Orchestrator) ApprovalHistory(id uuid.UUID) ([]*domain.ApprovalDecision, error) {
	return o.gate.History(id)
}

// Approve resumes a deployment waiting for manual sign-off. Calling it on a
// deployment already in a terminal state is an idempotent no-op returning
// the existing record.
func (o *Orchestrator) Approve(id uuid.UUID) (*domain.Deployment, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	deployment, err := o.deployments.FindByID(id)
	if err != nil {
		return nil, err
	}
	if deployment.Status.IsTerminal() {
		return deployment, nil
	}
	if deployment.Status != domain.DeploymentStatusApprovalPending {
		return nil, fmt.Errorf("deployment %s is %s, not awaiting approval", id, deployment.Status)
	}

	// Claim the deployment before the worker starts. The worker moves to
	// applying asynchronously, so a second Approve racing the first would
	// otherwise still see approval_pending and start a second worker.
	deployment.Status = domain.DeploymentStatusApplying
	deployment.AppendLog("validation", "approved by operator")
	if err := o.deployments.Update(deployment); err != nil {
		return nil, fmt.Errorf("failed to update deployment: %w", err)
	}

	slog.Info("Deployment approved by operator",
		"layer", "orchestrator",
		"operation", "approve",
		"deployment_id", id)

	o.startWorker(*deployment, func(ctx context.Context, d *domain.Deployment) {
		be, err := o.registry.Get(d.Format)
		if err != nil {
			o.fail(d, "applying", err)
			return
		}
		o.runApply(ctx, d, be)
	})

	return deployment, nil
}

// Reject terminates a deployment waiting for manual sign-off. Terminal
// deployments are returned unchanged.
func (o *Orchestrator) Reject(id uuid.UUID, reason string) (*domain.Deployment, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	deployment, err := o.deployments.FindByID(id)
	if err != nil {
		return nil, err
	}
	if deployment.Status.IsTerminal() {
		return deployment, nil
	}
	if deployment.Status != domain.DeploymentStatusApprovalPending {
		return nil, fmt.Errorf("deployment %s is %s, not awaiting approval", id, deployment.Status)
	}

	rejection := &domain.ApprovalRejectedError{DeploymentID: id, Reason: reason}
	message := "rejected by operator"
	if reason != "" {
		message = fmt.Sprintf("rejected by operator: %s", reason)
	}
	deployment.Error = message
	deployment.AppendLog("validation", message)
	o.setTerminal(deployment, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityHigh, message)

	slog.Info("Deployment rejected by operator",
		"layer", "orchestrator",
		"operation", "reject",
		"deployment_id", id,
		"error", rejection)

	return deployment, nil
}

// Cancel aborts an in-flight deployment. The running worker is interrupted
// at its next suspension point; rollback is skipped since the adapter
// finishes its current resource operation before yielding. A deployment
// waiting for approval is failed directly. Terminal deployments are
// returned unchanged.
func (o *Orchestrator) Cancel(id uuid.UUID) (*domain.Deployment, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	deployment, err := o.deployments.FindByID(id)
	if err != nil {
		return nil, err
	}
	if deployment.Status.IsTerminal() {
		return deployment, nil
	}

	o.mu.Lock()
	o.cancelled[id] = true
	cancel, running := o.cancels[id]
	o.mu.Unlock()

	if running {
		cancel()
		slog.Info("Cancellation requested",
			"layer", "orchestrator",
			"operation", "cancel",
			"deployment_id", id,
			"status", deployment.Status.String())
		return deployment, nil
	}

	// No worker is attached while waiting for approval, fail in place
	deployment.Error = "cancelled by operator"
	deployment.AppendLog(deployment.Status.String(), "cancelled by operator")
	o.setTerminal(deployment, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityMedium, "cancelled by operator")
	return deployment, nil
}

// EnableMonitoring flags a deployment for periodic drift scans
func (o *Orchestrator) EnableMonitoring(id uuid.UUID, interval time.Duration) (*domain.Deployment, error) {
	deployment, err := o.deployments.FindByID(id)
	if err != nil {
		return nil, err
	}

	deployment.MonitorEnabled = true
	deployment.MonitorInterval = interval
	if err := o.deployments.Update(deployment); err != nil {
		return nil, fmt.Errorf("failed to update deployment: %w", err)
	}

	slog.Info("Drift monitoring enabled",
		"layer", "orchestrator",
		"operation", "enable_monitoring",
		"deployment_id", id,
		"interval", interval)

	return deployment, nil
}

// RecoverInterrupted fails deployments left mid-flight by a process restart
// and releases their locks. Deployments in approval_pending survive
// restarts untouched and keep their lock until an operator decides.
func (o *Orchestrator) RecoverInterrupted() error {
	for _, status := range []domain.DeploymentStatus{
		domain.DeploymentStatusPending,
		domain.DeploymentStatusPlanning,
		domain.DeploymentStatusApplying,
	} {
		stuck, err := o.deployments.ListByStatus(status)
		if err != nil {
			return fmt.Errorf("failed to list %s deployments: %w", status, err)
		}
		for _, d := range stuck {
			d.Error = "interrupted by restart"
			d.AppendLog(status.String(), "interrupted by restart")
			o.setTerminal(d, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityHigh, "interrupted by restart")
			slog.Warn("Recovered interrupted deployment",
				"layer", "orchestrator",
				"operation", "recover",
				"deployment_id", d.ID,
				"was_status", status.String())
		}
	}
	return nil
}

// Shutdown stops accepting work and waits for in-flight workers
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.baseStop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown timed out: %w", ctx.Err())
	}
}

func (o *Orchestrator) startWorker(deployment domain.Deployment, step func(context.Context, *domain.Deployment)) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.cancels[deployment.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, deployment.ID)
			o.mu.Unlock()
		}()
		d := deployment
		step(ctx, &d)
	}()
}

// runLifecycle steps a fresh deployment from pending through planning and
// the gate, then into apply or approval_pending
func (o *Orchestrator) runLifecycle(ctx context.Context, d *domain.Deployment, in gateInput) {
	be, err := o.registry.Get(d.Format)
	if err != nil {
		o.fail(d, "planning", err)
		return
	}

	now := time.Now()
	d.StartedAt = &now
	d.Status = domain.DeploymentStatusPlanning
	d.AppendLog("planning", fmt.Sprintf("planning deployment for target %s", d.TargetKey()))
	if err := o.deployments.Update(d); err != nil {
		o.fail(d, "planning", fmt.Errorf("failed to persist planning state: %w", err))
		return
	}

	resolved, err := o.resolver.Resolve(ctx, d.Artifact)
	if err != nil {
		o.fail(d, "planning", err)
		return
	}
	d.Artifact = resolved

	target := o.target(d)
	var planResult *backend.PlanResult
	planCtx, cancelPlan := context.WithTimeout(ctx, o.cfg.PlanTimeout)
	err = backend.WithRetry(planCtx, "plan", o.cfg.MaxRetries, o.cfg.RetryBackoff, func(c context.Context) error {
		var planErr error
		planResult, planErr = be.Plan(c, target, d.Artifact)
		return planErr
	})
	cancelPlan()
	if err != nil {
		// A plan failure or timeout fails the deployment outright, there
		// is no partial state to unwind
		o.fail(d, "planning", err)
		return
	}

	d.PlanSummary = &planResult.Summary
	for _, line := range planResult.Logs {
		d.AppendLog("planning", line)
	}
	d.AppendLog("planning", planResult.Summary.String())

	components := in.components
	if len(components) == 0 {
		components = componentsFromArtifact(d.Artifact)
	}
	violations := o.evaluator.Evaluate(components, o.policies, d.Environment)
	score := domain.ComplianceScore(violations, len(o.policies))
	d.AppendLog("validation", fmt.Sprintf("%d policy violation(s), compliance score %d", len(violations), score))
	for _, v := range violations {
		d.AppendLog("validation", v.String())
	}

	decision, err := o.gate.Decide(d, violations, in.securityScore, in.riskLevel, in.cost)
	if err != nil {
		o.fail(d, "validation", err)
		return
	}

	if !decision.Approved {
		// Durable suspension: the worker exits, the lock stays held, and
		// Approve or Reject picks the deployment back up later
		d.Status = domain.DeploymentStatusApprovalPending
		d.AppendLog("validation", fmt.Sprintf("awaiting manual approval: %s", decision.Reason))
		if err := o.deployments.Update(d); err != nil {
			o.fail(d, "validation", fmt.Errorf("failed to persist approval_pending state: %w", err))
			return
		}
		slog.Info("Deployment awaiting approval",
			"layer", "orchestrator",
			"operation", "run_lifecycle",
			"deployment_id", d.ID,
			"reason", decision.Reason)
		return
	}

	d.AppendLog("validation", fmt.Sprintf("auto-approved: %s", decision.Reason))
	o.runApply(ctx, d, be)
}

// runApply drives the applying phase through to a terminal state, following
// the rollback path on fatal failure
func (o *Orchestrator) runApply(ctx context.Context, d *domain.Deployment, be backend.Backend) {
	d.Status = domain.DeploymentStatusApplying
	d.AppendLog("applying", fmt.Sprintf("applying artifact to target %s", d.TargetKey()))
	if err := o.deployments.Update(d); err != nil {
		o.fail(d, "applying", fmt.Errorf("failed to persist applying state: %w", err))
		return
	}

	target := o.target(d)
	var applyResult *backend.ApplyResult
	applyCtx, cancelApply := context.WithTimeout(ctx, o.cfg.ApplyTimeout)
	err := backend.WithRetry(applyCtx, "apply", o.cfg.MaxRetries, o.cfg.RetryBackoff, func(c context.Context) error {
		var applyErr error
		applyResult, applyErr = be.Apply(c, target, d.Artifact)
		return applyErr
	})
	cancelApply()

	if err != nil {
		if o.wasCancelled(d.ID) {
			d.Error = "cancelled by operator"
			d.AppendLog("applying", "cancelled by operator")
			o.setTerminal(d, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityMedium, "cancelled by operator")
			return
		}
		o.rollbackOrFail(ctx, d, be, err)
		return
	}

	for _, line := range applyResult.Logs {
		d.AppendLog("applying", line)
	}

	if err := o.states.ReplaceForDeployment(d.ID, applyResult.ResourceStates); err != nil {
		o.fail(d, "applying", fmt.Errorf("failed to persist resource state: %w", err))
		return
	}
	if err := o.states.SaveRelease(d.TargetKey(), d.ID, d.Artifact); err != nil {
		o.fail(d, "applying", fmt.Errorf("failed to record release: %w", err))
		return
	}

	d.AppendLog("completed", fmt.Sprintf("deployment completed, %d resource(s) converged", len(applyResult.ResourceStates)))
	o.setTerminal(d, domain.DeploymentStatusCompleted, domain.EventDeploymentCompleted, domain.SeverityLow,
		fmt.Sprintf("deployment %s completed", d.ID))

	slog.Info("Deployment completed",
		"layer", "orchestrator",
		"operation", "run_apply",
		"deployment_id", d.ID,
		"resources", len(applyResult.ResourceStates))
}

// rollbackOrFail handles a fatal apply error: re-apply the last known-good
// release when rollback is enabled and a prior release exists, otherwise
// fail with the original error
func (o *Orchestrator) rollbackOrFail(ctx context.Context, d *domain.Deployment, be backend.Backend, applyErr error) {
	d.AppendLog("applying", applyErr.Error())

	if !o.cfg.RollbackEnabled {
		o.fail(d, "applying", applyErr)
		return
	}

	release, err := o.states.FindRelease(d.TargetKey())
	if err != nil {
		slog.Error("Failed to look up last release for rollback",
			"layer", "orchestrator",
			"operation", "rollback",
			"deployment_id", d.ID,
			"error", err)
		o.fail(d, "applying", applyErr)
		return
	}
	if release == nil || release.DeploymentID == d.ID {
		// Nothing known-good to go back to
		o.fail(d, "applying", applyErr)
		return
	}

	d.AppendLog("applying", fmt.Sprintf("rolling back to release from deployment %s", release.DeploymentID))
	slog.Warn("Apply failed, rolling back",
		"layer", "orchestrator",
		"operation", "rollback",
		"deployment_id", d.ID,
		"release_deployment_id", release.DeploymentID,
		"error", applyErr)

	// The worker context may already be done; rollback still has to run
	target := o.target(d)
	rollbackCtx, cancelRollback := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ApplyTimeout)
	rollbackErr := backend.WithRetry(rollbackCtx, "rollback", o.cfg.MaxRetries, o.cfg.RetryBackoff, func(c context.Context) error {
		_, e := be.Apply(c, target, release.Artifact)
		return e
	})
	cancelRollback()

	if rollbackErr != nil {
		d.Error = fmt.Sprintf("%s; rollback failed: %s", applyErr.Error(), rollbackErr.Error())
		d.AppendLog("applying", fmt.Sprintf("rollback failed: %s", rollbackErr.Error()))
		o.setTerminal(d, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityCritical, d.Error)
		return
	}

	d.Error = applyErr.Error()
	d.AppendLog("applying", "rollback succeeded, target restored to last known-good release")
	o.setTerminal(d, domain.DeploymentStatusRolledBack, domain.EventDeploymentRolledBack, domain.SeverityHigh,
		fmt.Sprintf("deployment %s rolled back: %s", d.ID, applyErr.Error()))
}

// fail moves a deployment to failed with a specific error message
func (o *Orchestrator) fail(d *domain.Deployment, phase string, err error) {
	message := err.Error()
	if o.wasCancelled(d.ID) {
		message = "cancelled by operator"
	}
	d.Error = message
	d.AppendLog(phase, message)
	o.setTerminal(d, domain.DeploymentStatusFailed, domain.EventDeploymentFailed, domain.SeverityHigh, message)

	slog.Error("Deployment failed",
		"layer", "orchestrator",
		"operation", phase,
		"deployment_id", d.ID,
		"error", message)
}

// setTerminal persists the terminal status, releases the target lock, and
// emits the terminal-transition event. The lock is released here and
// nowhere else.
func (o *Orchestrator) setTerminal(d *domain.Deployment, status domain.DeploymentStatus, eventType domain.EventType, severity domain.Severity, message string) {
	now := time.Now()
	d.Status = status
	d.CompletedAt = &now
	if err := o.deployments.Update(d); err != nil {
		slog.Error("Failed to persist terminal state",
			"layer", "orchestrator",
			"deployment_id", d.ID,
			"status", status.String(),
			"error", err)
	}

	if err := o.locks.Release(d.TargetKey(), d.ID); err != nil {
		slog.Error("Failed to release target lock",
			"layer", "orchestrator",
			"deployment_id", d.ID,
			"target_key", d.TargetKey(),
			"error", err)
	}

	// Terminal deployments can never be cancelled again, drop the flag
	o.mu.Lock()
	delete(o.cancelled, d.ID)
	o.mu.Unlock()

	if o.events != nil {
		o.events.Publish(domain.Event{
			Type:         eventType,
			Severity:     severity,
			DeploymentID: d.ID.String(),
			Message:      message,
		})
	}
}

func (o *Orchestrator) wasCancelled(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[id]
}

func (o *Orchestrator) target(d *domain.Deployment) backend.Target {
	return backend.Target{Name: d.TargetKey(), Environment: d.Environment}
}

// componentsFromArtifact derives a configuration snapshot from the artifact
// itself when the request did not carry one. Templates with a top-level
// Resources map (CloudFormation and friends) flatten naturally; anything
// else yields no components, which evaluates clean.
func componentsFromArtifact(a domain.Artifact) []domain.ComponentConfig {
	var doc struct {
		Resources map[string]struct {
			Type       string         `yaml:"Type" json:"Type"`
			Properties map[string]any `yaml:"Properties" json:"Properties"`
		} `yaml:"Resources" json:"Resources"`
	}
	if err := yaml.Unmarshal([]byte(a.Payload), &doc); err != nil {
		return nil
	}

	names := make([]string, 0, len(doc.Resources))
	for name := range doc.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make([]domain.ComponentConfig, 0, len(names))
	for _, name := range names {
		resource := doc.Resources[name]
		components = append(components, domain.ComponentConfig{
			Name:   name,
			Type:   resource.Type,
			Fields: resource.Properties,
		})
	}
	return components
}
