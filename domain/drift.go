package domain

import (
	"time"

	"github.com/google/uuid"
)

// DriftItem is one detected divergence between desired and live state
type DriftItem struct {
	Resource string
	Property string
	Expected any
	Actual   any
	Severity Severity
	Action   DriftAction
}

// DriftReport is the full result of one drift scan for one deployment. A
// report is produced even when no drift is found so "last checked"
// freshness can be verified; ScanError distinguishes a failed scan from a
// clean one.
type DriftReport struct {
	ID                uuid.UUID
	DeploymentID      uuid.UUID
	Timestamp         time.Time
	Items             []DriftItem
	TotalDrift        int
	HighSeverityCount int
	ScanError         string
}

func NewDriftReport(deploymentID uuid.UUID, items []DriftItem) DriftReport {
	high := 0
	for _, item := range items {
		if item.Severity == SeverityHigh || item.Severity == SeverityCritical {
			high++
		}
	}
	return DriftReport{
		ID:                uuid.New(),
		DeploymentID:      deploymentID,
		Timestamp:         time.Now(),
		Items:             items,
		TotalDrift:        len(items),
		HighSeverityCount: high,
	}
}

// NewDriftScanErrorReport records a failed scan. Absence of drift data must
// never be confused with absence of drift.
func NewDriftScanErrorReport(deploymentID uuid.UUID, scanErr error) DriftReport {
	return DriftReport{
		ID:           uuid.New(),
		DeploymentID: deploymentID,
		Timestamp:    time.Now(),
		ScanError:    scanErr.Error(),
	}
}

// Failed reports whether the scan itself failed
func (r *DriftReport) Failed() bool {
	return r.ScanError != ""
}
