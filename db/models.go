// Package db provides database models and utilities for Meridian.
package db

import (
	"time"

	"github.com/google/uuid"
)

type BaseModel struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DeploymentModel struct {
	BaseModel
	BlueprintID     string  `gorm:"not null;index;check:blueprint_id <> ''"`
	GenerationJobID string  `gorm:"not null"`
	TargetCloud     string  `gorm:"not null;check:target_cloud <> ''"`
	Format          string  `gorm:"not null;check:format <> ''"` // cloudformation, terraform, ...
	Environment     string  `gorm:"not null;check:environment <> ''"`
	TargetKey       string  `gorm:"not null;index"`
	Status          string  `gorm:"not null;check:status <> ''"`
	ArtifactPayload string  `gorm:"type:text"` // rendered IaC document, opaque to the orchestrator
	SourceURL       *string // set when the artifact comes from a Git source
	SourceRef       *string
	SourcePath      *string
	GitAuthType     *string `gorm:"type:varchar(20)"` // "http" or "ssh"
	GitAuthCreds    *string `gorm:"type:text"`        // Encrypted JSON blob containing all auth data
	PlanToAdd       *int
	PlanToChange    *int
	PlanToDestroy   *int
	ResourceCount   *int
	Error           string `gorm:"type:text"`
	Logs            string `gorm:"type:text"` // phase-marked lines separated by null character (\0)
	MonitorEnabled  bool   `gorm:"not null"`  // Enable periodic drift scans
	MonitorInterval int64  // nanoseconds; 0 means the configured default
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

func (DeploymentModel) TableName() string {
	return "deployments"
}

// LockModel enforces one live deployment per target via the unique
// constraint on target_key. Acquisition is a plain INSERT; the constraint
// violation is the conflict signal.
type LockModel struct {
	TargetKey          string    `gorm:"primaryKey"`
	HolderDeploymentID uuid.UUID `gorm:"type:char(36);not null"`
	AcquiredAt         time.Time `gorm:"not null"`
}

func (LockModel) TableName() string {
	return "target_locks"
}

// ResourceStateModel stores one desired resource snapshot captured at apply
// time. Rows are replaced wholesale on each successful apply.
type ResourceStateModel struct {
	BaseModel
	DeploymentID uuid.UUID `gorm:"not null;index;uniqueIndex:idx_deployment_resource"`
	ResourceID   string    `gorm:"not null;uniqueIndex:idx_deployment_resource;check:resource_id <> ''"`
	Type         string    `gorm:"not null"`
	Properties   string    `gorm:"type:text;not null"` // JSON-encoded property map
}

func (ResourceStateModel) TableName() string {
	return "resource_states"
}

// ReleaseModel records the last successfully applied artifact per target.
// It is the rollback and drift auto-fix source.
type ReleaseModel struct {
	BaseModel
	TargetKey       string    `gorm:"not null;unique;check:target_key <> ''"`
	DeploymentID    uuid.UUID `gorm:"type:char(36);not null"`
	Format          string    `gorm:"not null"`
	ArtifactPayload string    `gorm:"type:text;not null"`
}

func (ReleaseModel) TableName() string {
	return "releases"
}

type DriftReportModel struct {
	BaseModel
	DeploymentID      uuid.UUID `gorm:"not null;index"`
	Timestamp         time.Time `gorm:"not null;index"`
	Items             string    `gorm:"type:text"` // JSON-encoded drift items
	TotalDrift        int       `gorm:"not null"`
	HighSeverityCount int       `gorm:"not null"`
	ScanError         string    `gorm:"type:text"` // non-empty when the scan itself failed
}

func (DriftReportModel) TableName() string {
	return "drift_reports"
}

type ApprovalDecisionModel struct {
	BaseModel
	DeploymentID uuid.UUID `gorm:"not null;index"`
	Approved     bool      `gorm:"not null"`
	Reason       string    `gorm:"not null"`
	Conditions   string    `gorm:"type:text;not null"` // JSON-encoded condition snapshot
	Timestamp    time.Time `gorm:"not null"`
}

func (ApprovalDecisionModel) TableName() string {
	return "approval_decisions"
}

type MigrationModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null;unique"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MigrationModel) TableName() string {
	return "migrations"
}
