// Package repository provides the data access layer for deployments,
// locks, resource state, drift reports and approval decisions.
package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/db"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/encryption"
)

type DeploymentMapper struct {
	encryption *encryption.EncryptionService
}

func NewDeploymentMapper(encryptionSvc *encryption.EncryptionService) *DeploymentMapper {
	return &DeploymentMapper{encryption: encryptionSvc}
}

func (m *DeploymentMapper) ToDomain(d *db.DeploymentModel) *domain.Deployment {
	status, err := domain.ParseDeploymentStatus(d.Status)
	if err != nil {
		status = domain.DeploymentStatusUnknown
	}

	var source *domain.GitSourceRef
	if d.SourceURL != nil {
		source = &domain.GitSourceRef{URL: *d.SourceURL}
		if d.SourceRef != nil {
			source.Ref = *d.SourceRef
		}
		if d.SourcePath != nil {
			source.Path = *d.SourcePath
		}

		// Decrypt authentication data if present
		if d.GitAuthType != nil && d.GitAuthCreds != nil && m.encryption != nil {
			decryptedAuth, err := m.encryption.DecryptGitAuthConfig(*d.GitAuthType, *d.GitAuthCreds)
			if err != nil {
				// Log error but don't fail - the deployment record should
				// still be readable. This can happen if the encryption key
				// changed.
				slog.Error("Failed to decrypt Git authentication",
					"deployment_id", d.ID,
					"auth_type", *d.GitAuthType,
					"error", err)
			} else {
				source.Auth = decryptedAuth
			}
		}
	}

	var plan *domain.PlanSummary
	if d.PlanToAdd != nil && d.PlanToChange != nil && d.PlanToDestroy != nil && d.ResourceCount != nil {
		plan = &domain.PlanSummary{
			ToAdd:         *d.PlanToAdd,
			ToChange:      *d.PlanToChange,
			ToDestroy:     *d.PlanToDestroy,
			ResourceCount: *d.ResourceCount,
		}
	}

	return &domain.Deployment{
		ID:              d.ID,
		BlueprintID:     d.BlueprintID,
		GenerationJobID: d.GenerationJobID,
		TargetCloud:     d.TargetCloud,
		Format:          d.Format,
		Environment:     domain.Environment(d.Environment),
		Status:          status,
		Artifact: domain.Artifact{
			Format:  d.Format,
			Payload: d.ArtifactPayload,
			Source:  source,
		},
		PlanSummary:     plan,
		Error:           d.Error,
		Logs:            parseLines(d.Logs),
		MonitorEnabled:  d.MonitorEnabled,
		MonitorInterval: time.Duration(d.MonitorInterval),
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (m *DeploymentMapper) ToModel(d *domain.Deployment) *db.DeploymentModel {
	modelObj := &db.DeploymentModel{
		BaseModel: db.BaseModel{
			ID:        d.ID,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		BlueprintID:     d.BlueprintID,
		GenerationJobID: d.GenerationJobID,
		TargetCloud:     d.TargetCloud,
		Format:          d.Format,
		Environment:     d.Environment.String(),
		TargetKey:       d.TargetKey(),
		Status:          d.Status.String(),
		ArtifactPayload: d.Artifact.Payload,
		Error:           d.Error,
		Logs:            serializeLines(d.Logs),
		MonitorEnabled:  d.MonitorEnabled,
		MonitorInterval: int64(d.MonitorInterval),
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
	}

	if d.PlanSummary != nil {
		modelObj.PlanToAdd = &d.PlanSummary.ToAdd
		modelObj.PlanToChange = &d.PlanSummary.ToChange
		modelObj.PlanToDestroy = &d.PlanSummary.ToDestroy
		modelObj.ResourceCount = &d.PlanSummary.ResourceCount
	}

	if src := d.Artifact.Source; src != nil {
		modelObj.SourceURL = &src.URL
		if src.Ref != "" {
			modelObj.SourceRef = &src.Ref
		}
		if src.Path != "" {
			modelObj.SourcePath = &src.Path
		}

		// Encrypt authentication data if present
		if src.Auth != nil && m.encryption != nil {
			authType, encryptedCredentials, err := m.encryption.EncryptGitAuthConfig(src.Auth)
			if err != nil {
				slog.Error("Failed to encrypt Git authentication",
					"deployment_id", d.ID,
					"error", err)
				return modelObj
			}

			if authType != "" && encryptedCredentials != "" {
				modelObj.GitAuthType = &authType
				modelObj.GitAuthCreds = &encryptedCredentials
			}
		}
	}

	return modelObj
}

type ResourceStateMapper struct{}

func (m *ResourceStateMapper) ToDomain(s *db.ResourceStateModel) (*domain.ResourceState, error) {
	var props map[string]any
	if s.Properties != "" {
		if err := json.Unmarshal([]byte(s.Properties), &props); err != nil {
			return nil, fmt.Errorf("failed to decode resource properties: %w", err)
		}
	}
	return &domain.ResourceState{
		ResourceID: s.ResourceID,
		Type:       s.Type,
		Properties: props,
	}, nil
}

func (m *ResourceStateMapper) ToModel(deploymentID uuid.UUID, s *domain.ResourceState) (*db.ResourceStateModel, error) {
	props, err := json.Marshal(s.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource properties: %w", err)
	}
	return &db.ResourceStateModel{
		DeploymentID: deploymentID,
		ResourceID:   s.ResourceID,
		Type:         s.Type,
		Properties:   string(props),
	}, nil
}

// driftItemRecord is the JSON shape persisted for a drift item
type driftItemRecord struct {
	Resource string `json:"resource"`
	Property string `json:"property"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

type DriftReportMapper struct{}

func (m *DriftReportMapper) ToDomain(r *db.DriftReportModel) (*domain.DriftReport, error) {
	var items []domain.DriftItem
	if r.Items != "" {
		var records []driftItemRecord
		if err := json.Unmarshal([]byte(r.Items), &records); err != nil {
			return nil, fmt.Errorf("failed to decode drift items: %w", err)
		}
		items = make([]domain.DriftItem, len(records))
		for i, rec := range records {
			items[i] = domain.DriftItem{
				Resource: rec.Resource,
				Property: rec.Property,
				Expected: rec.Expected,
				Actual:   rec.Actual,
				Severity: domain.Severity(rec.Severity),
				Action:   domain.DriftAction(rec.Action),
			}
		}
	}

	return &domain.DriftReport{
		ID:                r.ID,
		DeploymentID:      r.DeploymentID,
		Timestamp:         r.Timestamp,
		Items:             items,
		TotalDrift:        r.TotalDrift,
		HighSeverityCount: r.HighSeverityCount,
		ScanError:         r.ScanError,
	}, nil
}

func (m *DriftReportMapper) ToModel(r *domain.DriftReport) (*db.DriftReportModel, error) {
	var itemsJSON string
	if len(r.Items) > 0 {
		records := make([]driftItemRecord, len(r.Items))
		for i, item := range r.Items {
			records[i] = driftItemRecord{
				Resource: item.Resource,
				Property: item.Property,
				Expected: item.Expected,
				Actual:   item.Actual,
				Severity: item.Severity.String(),
				Action:   item.Action.String(),
			}
		}
		data, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to encode drift items: %w", err)
		}
		itemsJSON = string(data)
	}

	return &db.DriftReportModel{
		BaseModel: db.BaseModel{
			ID:        r.ID,
			CreatedAt: r.Timestamp,
			UpdatedAt: r.Timestamp,
		},
		DeploymentID:      r.DeploymentID,
		Timestamp:         r.Timestamp,
		Items:             itemsJSON,
		TotalDrift:        r.TotalDrift,
		HighSeverityCount: r.HighSeverityCount,
		ScanError:         r.ScanError,
	}, nil
}

type ApprovalMapper struct{}

func (m *ApprovalMapper) ToDomain(a *db.ApprovalDecisionModel) (*domain.ApprovalDecision, error) {
	var conditions domain.ApprovalConditions
	if a.Conditions != "" {
		if err := json.Unmarshal([]byte(a.Conditions), &conditions); err != nil {
			return nil, fmt.Errorf("failed to decode approval conditions: %w", err)
		}
	}
	return &domain.ApprovalDecision{
		ID:           a.ID,
		DeploymentID: a.DeploymentID,
		Approved:     a.Approved,
		Reason:       a.Reason,
		Conditions:   conditions,
		Timestamp:    a.Timestamp,
	}, nil
}

func (m *ApprovalMapper) ToModel(a *domain.ApprovalDecision) (*db.ApprovalDecisionModel, error) {
	conditions, err := json.Marshal(a.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval conditions: %w", err)
	}
	return &db.ApprovalDecisionModel{
		BaseModel: db.BaseModel{
			ID:        a.ID,
			CreatedAt: a.Timestamp,
			UpdatedAt: a.Timestamp,
		},
		DeploymentID: a.DeploymentID,
		Approved:     a.Approved,
		Reason:       a.Reason,
		Conditions:   string(conditions),
		Timestamp:    a.Timestamp,
	}, nil
}

// Helper functions
func parseLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00") // null-separated for better handling
}

func serializeLines(lines []string) string {
	return strings.Join(lines, "\x00")
}
