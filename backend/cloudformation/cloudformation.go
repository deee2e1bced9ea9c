// Package cloudformation implements the execution backend for the
// "cloudformation" artifact format on top of the AWS CloudFormation API.
package cloudformation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/backend"
	"github.com/meridian-cd/meridian/domain"
	"gopkg.in/yaml.v3"
)

// api is the subset of the CloudFormation client the backend uses
type api interface {
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateChangeSet(ctx context.Context, params *cloudformation.CreateChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateChangeSetOutput, error)
	DescribeChangeSet(ctx context.Context, params *cloudformation.DescribeChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeChangeSetOutput, error)
	DeleteChangeSet(ctx context.Context, params *cloudformation.DeleteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteChangeSetOutput, error)
	DetectStackDrift(ctx context.Context, params *cloudformation.DetectStackDriftInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DetectStackDriftOutput, error)
	DescribeStackDriftDetectionStatus(ctx context.Context, params *cloudformation.DescribeStackDriftDetectionStatusInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackDriftDetectionStatusOutput, error)
	DescribeStackResourceDrifts(ctx context.Context, params *cloudformation.DescribeStackResourceDriftsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackResourceDriftsOutput, error)
}

// CloudFormationBackend executes CloudFormation stack operations
type CloudFormationBackend struct {
	client       api
	pollInterval time.Duration
}

func NewBackend(ctx context.Context) (*CloudFormationBackend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &CloudFormationBackend{
		client:       cloudformation.NewFromConfig(cfg),
		pollInterval: 10 * time.Second,
	}, nil
}

// NewBackendWithClient creates a backend with an injected client (for testing)
func NewBackendWithClient(client api, pollInterval time.Duration) *CloudFormationBackend {
	return &CloudFormationBackend{client: client, pollInterval: pollInterval}
}

// templateDoc is the slice of a CloudFormation template the backend needs:
// logical resources with their declared properties
type templateDoc struct {
	Resources map[string]struct {
		Type       string         `yaml:"Type" json:"Type"`
		Properties map[string]any `yaml:"Properties" json:"Properties"`
	} `yaml:"Resources" json:"Resources"`
}

func parseTemplate(payload string) (*templateDoc, error) {
	var doc templateDoc
	if err := yaml.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if len(doc.Resources) == 0 {
		return nil, fmt.Errorf("template declares no resources")
	}
	return &doc, nil
}

// Plan computes a change summary via a change set without touching live
// resources. The change set is deleted before returning.
func (b *CloudFormationBackend) Plan(ctx context.Context, target backend.Target, artifact domain.Artifact) (*backend.PlanResult, error) {
	doc, err := parseTemplate(artifact.Payload)
	if err != nil {
		return nil, &domain.FatalBackendError{Op: "plan", Err: err}
	}

	exists, err := b.stackExists(ctx, target.Name)
	if err != nil {
		return nil, classify("plan", err)
	}

	logs := []string{fmt.Sprintf("planning stack %s (%d declared resources)", target.Name, len(doc.Resources))}

	// A first deployment creates everything the template declares
	if !exists {
		logs = append(logs, fmt.Sprintf("stack does not exist yet, %d to add", len(doc.Resources)))
		return &backend.PlanResult{
			Summary: domain.PlanSummary{
				ToAdd:         len(doc.Resources),
				ResourceCount: len(doc.Resources),
			},
			Logs: logs,
		}, nil
	}

	changeSetName := "meridian-plan-" + uuid.NewString()
	_, err = b.client.CreateChangeSet(ctx, &cloudformation.CreateChangeSetInput{
		StackName:     aws.String(target.Name),
		ChangeSetName: aws.String(changeSetName),
		ChangeSetType: types.ChangeSetTypeUpdate,
		TemplateBody:  aws.String(artifact.Payload),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
			types.CapabilityCapabilityAutoExpand,
		},
	})
	if err != nil {
		return nil, classify("plan", err)
	}
	defer func() {
		_, _ = b.client.DeleteChangeSet(context.WithoutCancel(ctx), &cloudformation.DeleteChangeSetInput{
			StackName:     aws.String(target.Name),
			ChangeSetName: aws.String(changeSetName),
		})
	}()

	changes, noChanges, err := b.waitForChangeSet(ctx, target.Name, changeSetName)
	if err != nil {
		return nil, classify("plan", err)
	}

	summary := domain.PlanSummary{ResourceCount: len(doc.Resources)}
	if !noChanges {
		for _, change := range changes {
			if change.ResourceChange == nil {
				continue
			}
			switch change.ResourceChange.Action {
			case types.ChangeActionAdd:
				summary.ToAdd++
			case types.ChangeActionModify:
				summary.ToChange++
			case types.ChangeActionRemove:
				summary.ToDestroy++
			}
		}
	}
	logs = append(logs, summary.String())

	return &backend.PlanResult{Summary: summary, Logs: logs}, nil
}

// Apply creates or updates the stack and waits for convergence. Applying
// an unchanged template is a successful no-op.
func (b *CloudFormationBackend) Apply(ctx context.Context, target backend.Target, artifact domain.Artifact) (*backend.ApplyResult, error) {
	doc, err := parseTemplate(artifact.Payload)
	if err != nil {
		return nil, &domain.FatalBackendError{Op: "apply", Err: err}
	}

	exists, err := b.stackExists(ctx, target.Name)
	if err != nil {
		return nil, classify("apply", err)
	}

	var logs []string
	noChanges := false
	if exists {
		logs = append(logs, fmt.Sprintf("updating stack %s", target.Name))
		_, err = b.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:    aws.String(target.Name),
			TemplateBody: aws.String(artifact.Payload),
			Capabilities: []types.Capability{
				types.CapabilityCapabilityIam,
				types.CapabilityCapabilityNamedIam,
				types.CapabilityCapabilityAutoExpand,
			},
		})
		if err != nil {
			// Converged targets report zero changes instead of failing
			if isNoUpdatesError(err) {
				logs = append(logs, "no changes, stack already converged")
				noChanges = true
				err = nil
			} else {
				return nil, classify("apply", err)
			}
		}
	} else {
		logs = append(logs, fmt.Sprintf("creating stack %s", target.Name))
		_, err = b.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(target.Name),
			TemplateBody: aws.String(artifact.Payload),
			Capabilities: []types.Capability{
				types.CapabilityCapabilityIam,
				types.CapabilityCapabilityNamedIam,
				types.CapabilityCapabilityAutoExpand,
			},
			OnFailure: types.OnFailureRollback,
		})
		if err != nil {
			return nil, classify("apply", err)
		}
	}

	if !noChanges {
		status, err := b.waitForStack(ctx, target.Name)
		if err != nil {
			return nil, classify("apply", err)
		}
		logs = append(logs, fmt.Sprintf("stack %s reached %s", target.Name, status))
	}

	// Desired state is what the template declares, captured at apply time
	states := make([]domain.ResourceState, 0, len(doc.Resources))
	for logicalID, resource := range doc.Resources {
		states = append(states, domain.ResourceState{
			ResourceID: logicalID,
			Type:       resource.Type,
			Properties: resource.Properties,
		})
	}

	return &backend.ApplyResult{ResourceStates: states, Logs: logs}, nil
}

// Destroy deletes the stack and waits until it is gone. Destroying an
// absent stack succeeds.
func (b *CloudFormationBackend) Destroy(ctx context.Context, target backend.Target) (*backend.DestroyResult, error) {
	exists, err := b.stackExists(ctx, target.Name)
	if err != nil {
		return nil, classify("destroy", err)
	}
	if !exists {
		return &backend.DestroyResult{Logs: []string{fmt.Sprintf("stack %s does not exist", target.Name)}}, nil
	}

	_, err = b.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(target.Name),
	})
	if err != nil {
		return nil, classify("destroy", err)
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, &domain.TransientBackendError{Op: "destroy", Err: ctx.Err()}
		case <-ticker.C:
			exists, err := b.stackExists(ctx, target.Name)
			if err != nil {
				return nil, classify("destroy", err)
			}
			if !exists {
				return &backend.DestroyResult{Logs: []string{fmt.Sprintf("stack %s deleted", target.Name)}}, nil
			}

			status, err := b.stackStatus(ctx, target.Name)
			if err != nil {
				return nil, classify("destroy", err)
			}
			if status == types.StackStatusDeleteComplete {
				return &backend.DestroyResult{Logs: []string{fmt.Sprintf("stack %s deleted", target.Name)}}, nil
			}
			if status == types.StackStatusDeleteFailed {
				return nil, &domain.FatalBackendError{Op: "destroy", Err: fmt.Errorf("stack %s delete failed", target.Name)}
			}
		}
	}
}

// ReadState fetches live resource state through CloudFormation drift
// detection, which reports each resource's actual properties
func (b *CloudFormationBackend) ReadState(ctx context.Context, target backend.Target) ([]domain.ResourceState, error) {
	exists, err := b.stackExists(ctx, target.Name)
	if err != nil {
		return nil, classify("read_state", err)
	}
	if !exists {
		// All desired resources will show up as missing
		return nil, nil
	}

	detectOutput, err := b.client.DetectStackDrift(ctx, &cloudformation.DetectStackDriftInput{
		StackName: aws.String(target.Name),
	})
	if err != nil {
		return nil, classify("read_state", err)
	}
	detectionID := aws.ToString(detectOutput.StackDriftDetectionId)

	if err := b.waitForDriftDetection(ctx, detectionID); err != nil {
		return nil, classify("read_state", err)
	}

	driftsOutput, err := b.client.DescribeStackResourceDrifts(ctx, &cloudformation.DescribeStackResourceDriftsInput{
		StackName: aws.String(target.Name),
		StackResourceDriftStatusFilters: []types.StackResourceDriftStatus{
			types.StackResourceDriftStatusInSync,
			types.StackResourceDriftStatusModified,
			types.StackResourceDriftStatusDeleted,
		},
	})
	if err != nil {
		return nil, classify("read_state", err)
	}

	var states []domain.ResourceState
	for _, drift := range driftsOutput.StackResourceDrifts {
		// Deleted resources are simply absent from actual state
		if drift.StackResourceDriftStatus == types.StackResourceDriftStatusDeleted {
			continue
		}

		var props map[string]any
		if actual := aws.ToString(drift.ActualProperties); actual != "" {
			if err := json.Unmarshal([]byte(actual), &props); err != nil {
				slog.Warn("Failed to decode actual resource properties",
					"layer", "backend",
					"operation", "read_state",
					"stack", target.Name,
					"resource", aws.ToString(drift.LogicalResourceId),
					"error", err)
				props = nil
			}
		}

		states = append(states, domain.ResourceState{
			ResourceID: aws.ToString(drift.LogicalResourceId),
			Type:       aws.ToString(drift.ResourceType),
			Properties: props,
		})
	}

	return states, nil
}

// stackExists checks if a CloudFormation stack exists
func (b *CloudFormationBackend) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := b.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotExistsError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *CloudFormationBackend) stackStatus(ctx context.Context, stackName string) (types.StackStatus, error) {
	output, err := b.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return "", err
	}
	if len(output.Stacks) == 0 {
		return "", fmt.Errorf("stack %s not found", stackName)
	}
	return output.Stacks[0].StackStatus, nil
}

// waitForStack polls until the stack reaches a settled status
func (b *CloudFormationBackend) waitForStack(ctx context.Context, stackName string) (types.StackStatus, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", &domain.TransientBackendError{Op: "wait_for_stack", Err: ctx.Err()}
		case <-ticker.C:
			status, err := b.stackStatus(ctx, stackName)
			if err != nil {
				return "", err
			}

			slog.Debug("Stack status", "stack", stackName, "status", status)

			switch status {
			case types.StackStatusCreateComplete, types.StackStatusUpdateComplete:
				return status, nil
			case types.StackStatusCreateFailed,
				types.StackStatusRollbackComplete,
				types.StackStatusRollbackFailed,
				types.StackStatusUpdateRollbackComplete,
				types.StackStatusUpdateRollbackFailed,
				types.StackStatusDeleteComplete,
				types.StackStatusDeleteFailed:
				return status, &domain.FatalBackendError{
					Op:  "apply",
					Err: fmt.Errorf("stack operation failed with status: %s", status),
				}
			}
		}
	}
}

// waitForChangeSet polls until the change set is computed. Returns the
// changes, or noChanges=true when the template matches the deployed stack.
func (b *CloudFormationBackend) waitForChangeSet(ctx context.Context, stackName, changeSetName string) ([]types.Change, bool, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, &domain.TransientBackendError{Op: "wait_for_change_set", Err: ctx.Err()}
		case <-ticker.C:
			output, err := b.client.DescribeChangeSet(ctx, &cloudformation.DescribeChangeSetInput{
				StackName:     aws.String(stackName),
				ChangeSetName: aws.String(changeSetName),
			})
			if err != nil {
				return nil, false, err
			}

			switch output.Status {
			case types.ChangeSetStatusCreateComplete:
				return output.Changes, false, nil
			case types.ChangeSetStatusFailed:
				reason := aws.ToString(output.StatusReason)
				if strings.Contains(reason, "didn't contain changes") ||
					strings.Contains(reason, "No updates are to be performed") {
					return nil, true, nil
				}
				return nil, false, &domain.FatalBackendError{
					Op:  "plan",
					Err: fmt.Errorf("change set failed: %s", reason),
				}
			}
		}
	}
}

// waitForDriftDetection polls until drift detection completes
func (b *CloudFormationBackend) waitForDriftDetection(ctx context.Context, detectionID string) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &domain.TransientBackendError{Op: "wait_for_drift_detection", Err: ctx.Err()}
		case <-ticker.C:
			output, err := b.client.DescribeStackDriftDetectionStatus(ctx, &cloudformation.DescribeStackDriftDetectionStatusInput{
				StackDriftDetectionId: aws.String(detectionID),
			})
			if err != nil {
				return err
			}

			switch output.DetectionStatus {
			case types.StackDriftDetectionStatusDetectionComplete:
				return nil
			case types.StackDriftDetectionStatusDetectionFailed:
				return fmt.Errorf("drift detection failed: %s", aws.ToString(output.DetectionStatusReason))
			}
		}
	}
}

// isNotExistsError detects CloudFormation's "stack does not exist" error
func isNotExistsError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

// isNoUpdatesError detects the UpdateStack response for an unchanged template
func isNoUpdatesError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
	}
	return false
}

// classify maps an AWS error to the backend error taxonomy. Throttling and
// availability errors are retryable; validation and permission errors are
// not. Errors the API never saw (connection resets, DNS) count as transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var transient *domain.TransientBackendError
	if errors.As(err, &transient) {
		return err
	}
	var fatal *domain.FatalBackendError
	if errors.As(err, &fatal) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"ServiceUnavailable", "InternalFailure", "RequestTimeout":
			return &domain.TransientBackendError{Op: op, Err: err}
		default:
			return &domain.FatalBackendError{Op: op, Err: err}
		}
	}

	return &domain.TransientBackendError{Op: op, Err: err}
}
