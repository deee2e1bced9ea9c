// Package drift provides the periodic scanner comparing persisted desired
// state against live infrastructure for monitoring-enabled deployments.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/backend"
	"github.com/meridian-cd/meridian/config"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/notify"
	"github.com/meridian-cd/meridian/repository"
)

// Property-name fragments that drive default severity. Security-sensitive
// fields report high, cosmetic fields report low, everything else medium.
// Exact-name overrides from configuration win over these defaults.
var (
	securitySensitiveFragments = []string{
		"ingress", "egress", "public", "security", "encryption", "acl", "policy", "iam",
	}
	cosmeticFragments = []string{
		"tags", "description", "comment", "label",
	}
)

type Detector struct {
	deployments repository.DeploymentRepository
	states      repository.StateRepository
	reports     repository.DriftReportRepository
	registry    *backend.Registry
	events      *notify.Dispatcher
	cfg         config.DriftConfig

	lastScan map[uuid.UUID]time.Time
}

func NewDetector(
	deployments repository.DeploymentRepository,
	states repository.StateRepository,
	reports repository.DriftReportRepository,
	registry *backend.Registry,
	events *notify.Dispatcher,
	cfg config.DriftConfig,
) *Detector {
	return &Detector{
		deployments: deployments,
		states:      states,
		reports:     reports,
		registry:    registry,
		events:      events,
		cfg:         cfg,
		lastScan:    make(map[uuid.UUID]time.Time),
	}
}

// Start runs the scan loop until the context is cancelled
func (d *Detector) Start(ctx context.Context) error {
	slog.Info("Drift detector starting",
		"layer", "drift",
		"scan_interval", d.cfg.ScanInterval,
		"auto_fix_enabled", d.cfg.AutoFixEnabled)

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	// Run initial sweep immediately
	if err := d.Sweep(ctx); err != nil {
		slog.Error("Initial drift sweep failed", "layer", "drift", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Drift detector shutting down", "layer", "drift")
			return nil
		case <-ticker.C:
			if err := d.Sweep(ctx); err != nil {
				slog.Error("Drift sweep failed", "layer", "drift", "error", err)
			}
		}
	}
}

// Sweep scans every monitoring-enabled deployment that is due. A failure
// scanning one deployment is recorded on that deployment's report and never
// aborts the rest of the sweep; only a failure listing deployments (the
// store itself unreachable) propagates.
func (d *Detector) Sweep(ctx context.Context) error {
	slog.Debug("Starting drift sweep", "layer", "drift")

	deployments, err := d.deployments.ListMonitored()
	if err != nil {
		return fmt.Errorf("failed to list monitored deployments: %w", err)
	}

	scanned := 0
	for _, deployment := range deployments {
		if !d.due(deployment) {
			continue
		}
		scanned++

		report := d.scanDeployment(ctx, deployment)
		d.lastScan[deployment.ID] = report.Timestamp

		if err := d.reports.Create(report); err != nil {
			slog.Error("Failed to persist drift report",
				"layer", "drift",
				"deployment_id", deployment.ID,
				"error", err)
		}
	}

	slog.Debug("Drift sweep completed",
		"layer", "drift",
		"total_deployments", len(deployments),
		"deployments_scanned", scanned)

	return nil
}

// LatestReport returns the most recent drift report for a deployment
func (d *Detector) LatestReport(deploymentID uuid.UUID) (*domain.DriftReport, error) {
	return d.reports.FindLatestByDeployment(deploymentID)
}

// due reports whether a deployment's per-deployment interval has elapsed
// since its last scan
func (d *Detector) due(deployment *domain.Deployment) bool {
	interval := deployment.MonitorInterval
	if interval <= 0 {
		interval = d.cfg.DefaultInterval
	}
	last, ok := d.lastScan[deployment.ID]
	if !ok {
		return true
	}
	return time.Since(last) >= interval
}

// scanDeployment produces exactly one report: drift items, an empty clean
// report, or a scan-error report when live state cannot be fetched
func (d *Detector) scanDeployment(ctx context.Context, deployment *domain.Deployment) *domain.DriftReport {
	desired, err := d.states.ListByDeployment(deployment.ID)
	if err != nil {
		return d.scanFailed(deployment, fmt.Errorf("failed to load desired state: %w", err))
	}

	be, err := d.registry.Get(deployment.Format)
	if err != nil {
		return d.scanFailed(deployment, err)
	}

	target := backend.Target{Name: deployment.TargetKey(), Environment: deployment.Environment}
	actual, err := be.ReadState(ctx, target)
	if err != nil {
		return d.scanFailed(deployment, err)
	}

	items := d.diff(desired, actual)
	report := domain.NewDriftReport(deployment.ID, items)

	if len(items) > 0 {
		slog.Info("Drift detected",
			"layer", "drift",
			"operation", "scan",
			"deployment_id", deployment.ID,
			"total_drift", report.TotalDrift,
			"high_severity", report.HighSeverityCount)
		d.emitDriftEvents(deployment, items)
		d.autoFix(ctx, deployment, be, items)
	}

	return &report
}

func (d *Detector) scanFailed(deployment *domain.Deployment, err error) *domain.DriftReport {
	scanErr := &domain.ScanError{DeploymentID: deployment.ID, Err: err}
	slog.Error("Drift scan failed",
		"layer", "drift",
		"operation", "scan",
		"deployment_id", deployment.ID,
		"error", scanErr)

	if d.events != nil {
		d.events.Publish(domain.Event{
			Type:         domain.EventDriftScanFailed,
			Severity:     domain.SeverityMedium,
			DeploymentID: deployment.ID.String(),
			Message:      scanErr.Error(),
		})
	}

	report := domain.NewDriftScanErrorReport(deployment.ID, scanErr)
	return &report
}

// diff compares every desired resource against live state. A resource
// absent from live state is a single high-severity item; a present resource
// yields one item per differing property key.
func (d *Detector) diff(desired, actual []domain.ResourceState) []domain.DriftItem {
	actualByID := domain.IndexResourceStates(actual)

	var items []domain.DriftItem
	for _, want := range desired {
		got, present := actualByID[want.ResourceID]
		if !present {
			items = append(items, domain.DriftItem{
				Resource: want.ResourceID,
				Expected: "present",
				Actual:   "missing",
				Severity: domain.SeverityHigh,
				Action:   domain.DriftActionNotify,
			})
			continue
		}

		for _, key := range want.PropertyKeys() {
			expected := want.Properties[key]
			actualValue, exists := got.Properties[key]
			if exists && domain.PropertiesEqual(expected, actualValue) {
				continue
			}
			if !exists {
				actualValue = nil
			}

			severity := d.classifySeverity(key)
			items = append(items, domain.DriftItem{
				Resource: want.ResourceID,
				Property: key,
				Expected: expected,
				Actual:   actualValue,
				Severity: severity,
				Action:   d.resolveAction(key, severity),
			})
		}
	}
	return items
}

// classifySeverity is property-driven: configuration overrides win, then
// security-sensitive names report high, cosmetic names low, the rest medium
func (d *Detector) classifySeverity(property string) domain.Severity {
	if severity, ok := d.cfg.SeverityOverride(property); ok {
		return severity
	}

	name := strings.ToLower(property)
	for _, fragment := range securitySensitiveFragments {
		if strings.Contains(name, fragment) {
			return domain.SeverityHigh
		}
	}
	for _, fragment := range cosmeticFragments {
		if strings.Contains(name, fragment) {
			return domain.SeverityLow
		}
	}
	return domain.SeverityMedium
}

// resolveAction picks the remediation for one drifted property.
// Safe reversible cosmetic fields repair themselves, descriptions are
// recorded but suppressed, anything security-relevant only alerts.
func (d *Detector) resolveAction(property string, severity domain.Severity) domain.DriftAction {
	if action, ok := d.cfg.ActionOverride(property); ok {
		return action
	}

	name := strings.ToLower(property)
	if strings.Contains(name, "description") || strings.Contains(name, "comment") {
		return domain.DriftActionIgnore
	}
	if severity == domain.SeverityLow {
		return domain.DriftActionAutoFix
	}
	return domain.DriftActionNotify
}

// emitDriftEvents publishes one event per high or critical item
func (d *Detector) emitDriftEvents(deployment *domain.Deployment, items []domain.DriftItem) {
	if d.events == nil {
		return
	}
	for _, item := range items {
		if item.Severity != domain.SeverityHigh && item.Severity != domain.SeverityCritical {
			continue
		}
		message := fmt.Sprintf("drift on %s: expected %v, got %v", item.Resource, item.Expected, item.Actual)
		if item.Property != "" {
			message = fmt.Sprintf("drift on %s.%s: expected %v, got %v", item.Resource, item.Property, item.Expected, item.Actual)
		}
		d.events.Publish(domain.Event{
			Type:         domain.EventDriftDetected,
			Severity:     item.Severity,
			DeploymentID: deployment.ID.String(),
			ResourceID:   item.Resource,
			Message:      message,
		})
	}
}

// autoFix re-applies the last known-good release once per scan when any
// item resolved to auto-fix. The adapter's idempotence confines the effect
// to the drifted properties. Failures alert and never fail the scan.
func (d *Detector) autoFix(ctx context.Context, deployment *domain.Deployment, be backend.Backend, items []domain.DriftItem) {
	if !d.cfg.AutoFixEnabled {
		return
	}
	fixable := false
	for _, item := range items {
		if item.Action == domain.DriftActionAutoFix {
			fixable = true
			break
		}
	}
	if !fixable {
		return
	}

	release, err := d.states.FindRelease(deployment.TargetKey())
	if err != nil || release == nil {
		slog.Error("No release available for drift auto-fix",
			"layer", "drift",
			"operation", "auto_fix",
			"deployment_id", deployment.ID,
			"error", err)
		return
	}

	target := backend.Target{Name: deployment.TargetKey(), Environment: deployment.Environment}
	if _, err := be.Apply(ctx, target, release.Artifact); err != nil {
		slog.Error("Drift auto-fix failed",
			"layer", "drift",
			"operation", "auto_fix",
			"deployment_id", deployment.ID,
			"error", err)
		if d.events != nil {
			d.events.Publish(domain.Event{
				Type:         domain.EventDriftDetected,
				Severity:     domain.SeverityHigh,
				DeploymentID: deployment.ID.String(),
				Message:      fmt.Sprintf("drift auto-fix failed: %v", err),
			})
		}
		return
	}

	slog.Info("Drift auto-fix applied",
		"layer", "drift",
		"operation", "auto_fix",
		"deployment_id", deployment.ID,
		"release_deployment_id", release.DeploymentID)
}
