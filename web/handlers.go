// Package web exposes the deployment lifecycle over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/orchestrator"
)

// DeploymentService is the slice of the orchestrator the handlers use
type DeploymentService interface {
	CreateDeployment(req orchestrator.CreateDeploymentRequest) (*domain.Deployment, error)
	GetDeployment(id uuid.UUID) (*domain.Deployment, error)
	ListDeployments() ([]*domain.Deployment, error)
	Approve(id uuid.UUID) (*domain.Deployment, error)
	Reject(id uuid.UUID, reason string) (*domain.Deployment, error)
	Cancel(id uuid.UUID) (*domain.Deployment, error)
	EnableMonitoring(id uuid.UUID, interval time.Duration) (*domain.Deployment, error)
	ApprovalHistory(id uuid.UUID) ([]*domain.ApprovalDecision, error)
}

// DriftService is the slice of the drift detector the handlers use
type DriftService interface {
	LatestReport(deploymentID uuid.UUID) (*domain.DriftReport, error)
}

type Handlers struct {
	deployments DeploymentService
	drift       DriftService
}

func NewHandlers(deployments DeploymentService, drift DriftService) *Handlers {
	return &Handlers{deployments: deployments, drift: drift}
}

// ParseDeploymentID extracts and validates the deployment ID from the URL
func ParseDeploymentID(r *http.Request) (uuid.UUID, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return uuid.Nil, errors.New("deployment ID is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, errors.New("invalid deployment ID format")
	}
	return parsed, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "layer", "web", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type artifactSourceRequest struct {
	URL  string `json:"url"`
	Ref  string `json:"ref"`
	Path string `json:"path"`
}

type artifactRequest struct {
	Payload string                 `json:"payload"`
	Source  *artifactSourceRequest `json:"source"`
}

type componentRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

type costRequest struct {
	Monthly      float64 `json:"monthly"`
	Budget       float64 `json:"budget"`
	Currency     string  `json:"currency"`
	WithinBudget bool    `json:"within_budget"`
}

type createDeploymentRequest struct {
	BlueprintID            string             `json:"blueprint_id"`
	GenerationJobID        string             `json:"generation_job_id"`
	TargetCloud            string             `json:"target_cloud"`
	Format                 string             `json:"format"`
	Environment            string             `json:"environment"`
	Artifact               artifactRequest    `json:"artifact"`
	Components             []componentRequest `json:"components"`
	SecurityScore          int                `json:"security_score"`
	RiskLevel              int                `json:"risk_level"`
	Cost                   costRequest        `json:"cost"`
	MonitorEnabled         bool               `json:"monitor_enabled"`
	MonitorIntervalSeconds int                `json:"monitor_interval_seconds"`
}

type planSummaryResponse struct {
	ToAdd         int `json:"to_add"`
	ToChange      int `json:"to_change"`
	ToDestroy     int `json:"to_destroy"`
	ResourceCount int `json:"resource_count"`
}

type deploymentResponse struct {
	ID              string               `json:"id"`
	BlueprintID     string               `json:"blueprint_id"`
	GenerationJobID string               `json:"generation_job_id"`
	TargetCloud     string               `json:"target_cloud"`
	Format          string               `json:"format"`
	Environment     string               `json:"environment"`
	TargetKey       string               `json:"target_key"`
	Status          string               `json:"status"`
	PlanSummary     *planSummaryResponse `json:"plan_summary,omitempty"`
	Error           string               `json:"error,omitempty"`
	Logs            []string             `json:"logs"`
	MonitorEnabled  bool                 `json:"monitor_enabled"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type approvalDecisionResponse struct {
	Approved   bool      `json:"approved"`
	Reason     string    `json:"reason"`
	Conditions struct {
		GuardrailsPassed bool `json:"guardrails_passed"`
		SecurityScore    int  `json:"security_score"`
		CostWithinBudget bool `json:"cost_within_budget"`
		RiskLevel        int  `json:"risk_level"`
	} `json:"conditions"`
	Timestamp time.Time `json:"timestamp"`
}

type driftItemResponse struct {
	Resource string `json:"resource"`
	Property string `json:"property,omitempty"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

type driftReportResponse struct {
	DeploymentID      string              `json:"deployment_id"`
	Timestamp         time.Time           `json:"timestamp"`
	Items             []driftItemResponse `json:"items"`
	TotalDrift        int                 `json:"total_drift"`
	HighSeverityCount int                 `json:"high_severity_count"`
	ScanError         string              `json:"scan_error,omitempty"`
}

func toDeploymentResponse(d *domain.Deployment) deploymentResponse {
	resp := deploymentResponse{
		ID:              d.ID.String(),
		BlueprintID:     d.BlueprintID,
		GenerationJobID: d.GenerationJobID,
		TargetCloud:     d.TargetCloud,
		Format:          d.Format,
		Environment:     d.Environment.String(),
		TargetKey:       d.TargetKey(),
		Status:          d.Status.String(),
		Error:           d.Error,
		Logs:            d.Logs,
		MonitorEnabled:  d.MonitorEnabled,
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
		CreatedAt:       d.CreatedAt,
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	if d.PlanSummary != nil {
		resp.PlanSummary = &planSummaryResponse{
			ToAdd:         d.PlanSummary.ToAdd,
			ToChange:      d.PlanSummary.ToChange,
			ToDestroy:     d.PlanSummary.ToDestroy,
			ResourceCount: d.PlanSummary.ResourceCount,
		}
	}
	return resp
}

func toDriftReportResponse(report *domain.DriftReport) driftReportResponse {
	items := make([]driftItemResponse, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, driftItemResponse{
			Resource: item.Resource,
			Property: item.Property,
			Expected: item.Expected,
			Actual:   item.Actual,
			Severity: item.Severity.String(),
			Action:   item.Action.String(),
		})
	}
	return driftReportResponse{
		DeploymentID:      report.DeploymentID.String(),
		Timestamp:         report.Timestamp,
		Items:             items,
		TotalDrift:        report.TotalDrift,
		HighSeverityCount: report.HighSeverityCount,
		ScanError:         report.ScanError,
	}
}

func (h *Handlers) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req createDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := domain.ParseEnvironment(req.Environment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	artifact := domain.Artifact{Format: req.Format, Payload: req.Artifact.Payload}
	if req.Artifact.Source != nil {
		artifact.Source = &domain.GitSourceRef{
			URL:  req.Artifact.Source.URL,
			Ref:  req.Artifact.Source.Ref,
			Path: req.Artifact.Source.Path,
		}
	}

	components := make([]domain.ComponentConfig, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, domain.ComponentConfig{Name: c.Name, Type: c.Type, Fields: c.Fields})
	}

	deployment, err := h.deployments.CreateDeployment(orchestrator.CreateDeploymentRequest{
		BlueprintID:     req.BlueprintID,
		GenerationJobID: req.GenerationJobID,
		TargetCloud:     req.TargetCloud,
		Format:          req.Format,
		Environment:     env,
		Artifact:        artifact,
		Components:      components,
		SecurityScore:   req.SecurityScore,
		RiskLevel:       req.RiskLevel,
		Cost: domain.CostEstimate{
			Monthly:      req.Cost.Monthly,
			Budget:       req.Cost.Budget,
			Currency:     req.Cost.Currency,
			WithinBudget: req.Cost.WithinBudget,
		},
		MonitorEnabled:  req.MonitorEnabled,
		MonitorInterval: time.Duration(req.MonitorIntervalSeconds) * time.Second,
	})
	if err != nil {
		switch {
		case domain.IsConflict(err):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrUnknownFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("Failed to create deployment", "layer", "web", "operation", "create_deployment", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create deployment")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toDeploymentResponse(deployment))
}

func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.deployments.ListDeployments()
	if err != nil {
		slog.Error("Failed to list deployments", "layer", "web", "operation", "list_deployments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deployments")
		return
	}

	out := make([]deploymentResponse, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, toDeploymentResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deployment, err := h.deployments.GetDeployment(id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handlers) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.deployments.ApprovalHistory(id)
	if err != nil {
		slog.Error("Failed to load approval history", "layer", "web", "deployment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load approval history")
		return
	}

	out := make([]approvalDecisionResponse, 0, len(history))
	for _, decision := range history {
		var resp approvalDecisionResponse
		resp.Approved = decision.Approved
		resp.Reason = decision.Reason
		resp.Timestamp = decision.Timestamp
		resp.Conditions.GuardrailsPassed = decision.Conditions.GuardrailsPassed
		resp.Conditions.SecurityScore = decision.Conditions.SecurityScore
		resp.Conditions.CostWithinBudget = decision.Conditions.CostWithinBudget
		resp.Conditions.RiskLevel = decision.Conditions.RiskLevel
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ApproveDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deployment, err := h.deployments.Approve(id)
	if err != nil {
		h.writeTransitionError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handlers) RejectDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	deployment, err := h.deployments.Reject(id, body.Reason)
	if err != nil {
		h.writeTransitionError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handlers) CancelDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deployment, err := h.deployments.Cancel(id)
	if err != nil {
		h.writeTransitionError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handlers) EnableMonitoring(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		IntervalSeconds int `json:"interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be positive")
		return
	}

	deployment, err := h.deployments.EnableMonitoring(id, time.Duration(body.IntervalSeconds)*time.Second)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handlers) GetLatestDriftReport(w http.ResponseWriter, r *http.Request) {
	id, err := ParseDeploymentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.drift.LatestReport(id)
	if err != nil {
		slog.Error("Failed to load drift report", "layer", "web", "deployment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load drift report")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no drift report recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, toDriftReportResponse(report))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}
	slog.Error("Deployment lookup failed", "layer", "web", "deployment_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) writeTransitionError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		writeError(w, http.StatusNotFound, "deployment not found")
		return
	}
	// State-machine rejections ("is planning, not awaiting approval") are
	// client errors, not server faults
	writeError(w, http.StatusConflict, err.Error())
}
