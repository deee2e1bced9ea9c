// Package app provides the main application context for Meridian, wiring
// configuration, storage, and services together.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/meridian-cd/meridian/approval"
	"github.com/meridian-cd/meridian/artifact"
	"github.com/meridian-cd/meridian/backend"
	"github.com/meridian-cd/meridian/backend/cloudformation"
	"github.com/meridian-cd/meridian/config"
	"github.com/meridian-cd/meridian/db"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/drift"
	"github.com/meridian-cd/meridian/encryption"
	"github.com/meridian-cd/meridian/notify"
	"github.com/meridian-cd/meridian/orchestrator"
	"github.com/meridian-cd/meridian/policy"
	"github.com/meridian-cd/meridian/repository"
	"gorm.io/gorm"
)

var (
	// Version is set at build time via -ldflags
	Version = "dev"

	database            *gorm.DB
	appConfig           *config.Config
	dispatcher          *notify.Dispatcher
	orchestratorService *orchestrator.Orchestrator
	driftDetector       *drift.Detector
)

// InitializeWithConfig initializes the app with a pre-configured Config
func InitializeWithConfig(cfg *config.Config) error {
	var err error

	appConfig = cfg

	// Ensure required directories exist
	if err := os.MkdirAll(appConfig.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(appConfig.TmpDir, 0755); err != nil {
		return err
	}

	database, err = db.InitDB(appConfig.DatabasePath)
	if err != nil {
		return err
	}

	if err := db.AutoMigrateAll(database); err != nil {
		return err
	}

	encryptionSvc, err := encryption.NewEncryptionService(appConfig.EncryptionKey)
	if err != nil {
		return err
	}

	deploymentRepo := repository.NewDeploymentRepository(database, encryptionSvc)
	lockRepo := repository.NewLockRepository(database)
	stateRepo := repository.NewStateRepository(database)
	driftRepo := repository.NewDriftReportRepository(database)
	approvalRepo := repository.NewApprovalRepository(database)

	var policies []domain.Policy
	if appConfig.PolicyFile != "" {
		policies, err = policy.LoadFile(appConfig.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}

	registry := backend.NewRegistry()
	cfnBackend, err := cloudformation.NewBackend(context.Background())
	if err != nil {
		return fmt.Errorf("failed to initialize cloudformation backend: %w", err)
	}
	registry.Register("cloudformation", cfnBackend)

	dispatcher = notify.NewDispatcher(256, &notify.LogSink{})

	gate := approval.NewGate(
		appConfig.Thresholds,
		domain.AutomationLevel(appConfig.Orchestrator.AutomationLevel),
		approvalRepo,
	)

	resolver := artifact.NewResolver(artifact.NewGitFetcher(appConfig))

	orchestratorService = orchestrator.NewOrchestrator(
		deploymentRepo,
		lockRepo,
		stateRepo,
		registry,
		resolver,
		policy.NewEvaluator(),
		policies,
		gate,
		dispatcher,
		appConfig.Orchestrator,
	)

	driftDetector = drift.NewDetector(
		deploymentRepo,
		stateRepo,
		driftRepo,
		registry,
		dispatcher,
		appConfig.Drift,
	)

	return nil
}

func GetConfig() *config.Config {
	return appConfig
}

func GetOrchestrator() *orchestrator.Orchestrator {
	return orchestratorService
}

func GetDriftDetector() *drift.Detector {
	return driftDetector
}

func GetDispatcher() *notify.Dispatcher {
	return dispatcher
}

// SetOrchestratorForTesting allows overriding the orchestrator for testing purposes
func SetOrchestratorForTesting(o *orchestrator.Orchestrator) {
	orchestratorService = o
}
