// Package domain provides core domain types and entities for Meridian.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// PlanSummary summarizes the resource-level changes a plan would make
type PlanSummary struct {
	ToAdd         int
	ToChange      int
	ToDestroy     int
	ResourceCount int
}

// HasChanges reports whether the plan would modify the target at all
func (p PlanSummary) HasChanges() bool {
	return p.ToAdd > 0 || p.ToChange > 0 || p.ToDestroy > 0
}

func (p PlanSummary) String() string {
	return fmt.Sprintf("%d to add, %d to change, %d to destroy", p.ToAdd, p.ToChange, p.ToDestroy)
}

type Deployment struct {
	ID              uuid.UUID
	BlueprintID     string
	GenerationJobID string
	TargetCloud     string
	Format          string
	Environment     Environment
	Status          DeploymentStatus
	Artifact        Artifact
	PlanSummary     *PlanSummary
	Error           string
	Logs            []string // ordered, append-only phase-marked log lines
	MonitorEnabled  bool     // drift monitoring
	MonitorInterval time.Duration
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewDeployment(blueprintID, generationJobID, targetCloud, format string, env Environment) Deployment {
	return Deployment{
		ID:              uuid.New(),
		BlueprintID:     blueprintID,
		GenerationJobID: generationJobID,
		TargetCloud:     targetCloud,
		Format:          format,
		Environment:     env,
		Status:          DeploymentStatusPending,
	}
}

// TargetKey derives the lock key identifying "where" this deployment
// applies: environment + cloud + logical target. Two deployments with the
// same target key may never plan or apply concurrently.
func (d *Deployment) TargetKey() string {
	return TargetKey(d.Environment, d.TargetCloud, d.BlueprintID)
}

// TargetKey builds a normalized lock key from its parts
func TargetKey(env Environment, targetCloud, blueprintID string) string {
	return slug.Make(fmt.Sprintf("%s-%s-%s", env, targetCloud, blueprintID))
}

// AppendLog appends a phase-marked log line to the deployment's log
func (d *Deployment) AppendLog(phase, message string) {
	line := fmt.Sprintf("[%s] %s", phase, message)
	d.Logs = append(d.Logs, line)
}

// LogText renders the deployment log as a single newline-joined string
func (d *Deployment) LogText() string {
	return strings.Join(d.Logs, "\n")
}

// Lock records exclusive ownership of a deployment target. Exactly one live
// lock exists per target key; it is acquired before planning and released
// only on entry to a terminal state.
type Lock struct {
	TargetKey          string
	HolderDeploymentID uuid.UUID
	AcquiredAt         time.Time
}
