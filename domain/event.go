package domain

import "time"

// EventType categorizes outbound notification events
type EventType string

const (
	EventDeploymentCompleted  EventType = "deployment.completed"
	EventDeploymentFailed     EventType = "deployment.failed"
	EventDeploymentRolledBack EventType = "deployment.rolled_back"
	EventDriftDetected        EventType = "drift.detected"
	EventDriftScanFailed      EventType = "drift.scan_failed"
)

// Event is a structured notification emitted on terminal deployment
// transitions and high/critical drift items. Delivery is fire-and-forget:
// notification failures never block or fail a deployment or drift scan.
type Event struct {
	Type         EventType
	Severity     Severity
	DeploymentID string
	ResourceID   string
	Message      string
	Timestamp    time.Time
}
