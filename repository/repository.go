package repository

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/db"
	"github.com/meridian-cd/meridian/domain"
	"github.com/meridian-cd/meridian/encryption"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	FindByID(id uuid.UUID) (*domain.Deployment, error)
	Create(deployment *domain.Deployment) error
	Update(deployment *domain.Deployment) error
	List() ([]*domain.Deployment, error)
	ListByStatus(status domain.DeploymentStatus) ([]*domain.Deployment, error)
	ListMonitored() ([]*domain.Deployment, error)
}

type deploymentRepository struct {
	db     *gorm.DB
	mapper *DeploymentMapper
}

func (r *deploymentRepository) FindByID(id uuid.UUID) (*domain.Deployment, error) {
	var m db.DeploymentModel
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeploymentNotFound
		}
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "find_deployment",
			"deployment_id", id,
			"error", err)
		return nil, err // Pass through as-is
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *deploymentRepository) Create(deployment *domain.Deployment) error {
	m := r.mapper.ToModel(deployment)
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_deployment",
			"deployment_id", deployment.ID,
			"error", err)
		return err
	}
	// Update the domain object with the timestamps that GORM populated
	*deployment = *r.mapper.ToDomain(m)
	return nil
}

func (r *deploymentRepository) Update(deployment *domain.Deployment) error {
	m := r.mapper.ToModel(deployment)

	// Use Select to explicitly update all fields except CreatedAt, including
	// zero values, so clearing an error message actually clears the column.
	// CreatedAt should never be updated after initial creation.
	return r.db.Model(&db.DeploymentModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func (r *deploymentRepository) List() ([]*domain.Deployment, error) {
	var models []db.DeploymentModel
	if err := r.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	deployments := make([]*domain.Deployment, len(models))
	for i, m := range models {
		deployments[i] = r.mapper.ToDomain(&m)
	}
	return deployments, nil
}

func (r *deploymentRepository) ListByStatus(status domain.DeploymentStatus) ([]*domain.Deployment, error) {
	var models []db.DeploymentModel
	if err := r.db.Where("status = ?", status.String()).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	deployments := make([]*domain.Deployment, len(models))
	for i, m := range models {
		deployments[i] = r.mapper.ToDomain(&m)
	}
	return deployments, nil
}

// ListMonitored returns completed deployments with drift monitoring enabled
func (r *deploymentRepository) ListMonitored() ([]*domain.Deployment, error) {
	var models []db.DeploymentModel
	err := r.db.
		Where("monitor_enabled = ? AND status = ?", true, domain.DeploymentStatusCompleted.String()).
		Order("created_at DESC").
		Find(&models).
		Error
	if err != nil {
		return nil, err
	}

	deployments := make([]*domain.Deployment, len(models))
	for i, m := range models {
		deployments[i] = r.mapper.ToDomain(&m)
	}
	return deployments, nil
}

func NewDeploymentRepository(db *gorm.DB, encryptionSvc *encryption.EncryptionService) DeploymentRepository {
	return &deploymentRepository{
		db:     db,
		mapper: NewDeploymentMapper(encryptionSvc),
	}
}

type LockRepository interface {
	Acquire(targetKey string, holderDeploymentID uuid.UUID) error
	Release(targetKey string, holderDeploymentID uuid.UUID) error
	FindByTargetKey(targetKey string) (*domain.Lock, error)
}

type lockRepository struct {
	db *gorm.DB
}

// Acquire inserts a lock row for the target key. The unique constraint on
// target_key makes the insert the atomic acquisition step; a constraint
// violation means another deployment holds the target.
func (r *lockRepository) Acquire(targetKey string, holderDeploymentID uuid.UUID) error {
	lock := db.LockModel{
		TargetKey:          targetKey,
		HolderDeploymentID: holderDeploymentID,
		AcquiredAt:         time.Now(),
	}
	if err := r.db.Create(&lock).Error; err != nil {
		if isUniqueViolation(err) {
			holder := uuid.Nil
			if existing, findErr := r.FindByTargetKey(targetKey); findErr == nil && existing != nil {
				holder = existing.HolderDeploymentID
			}
			return &domain.ConflictError{TargetKey: targetKey, HolderID: holder}
		}
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "acquire_lock",
			"target_key", targetKey,
			"deployment_id", holderDeploymentID,
			"error", err)
		return err
	}
	return nil
}

// Release deletes the lock only if the caller still holds it. Releasing a
// lock that is absent or held by someone else is a no-op.
func (r *lockRepository) Release(targetKey string, holderDeploymentID uuid.UUID) error {
	err := r.db.
		Where("target_key = ? AND holder_deployment_id = ?", targetKey, holderDeploymentID).
		Delete(&db.LockModel{}).
		Error
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "release_lock",
			"target_key", targetKey,
			"deployment_id", holderDeploymentID,
			"error", err)
	}
	return err
}

func (r *lockRepository) FindByTargetKey(targetKey string) (*domain.Lock, error) {
	var m db.LockModel
	if err := r.db.Where("target_key = ?", targetKey).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Lock{
		TargetKey:          m.TargetKey,
		HolderDeploymentID: m.HolderDeploymentID,
		AcquiredAt:         m.AcquiredAt,
	}, nil
}

func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepository{db: db}
}

type StateRepository interface {
	ReplaceForDeployment(deploymentID uuid.UUID, states []domain.ResourceState) error
	ListByDeployment(deploymentID uuid.UUID) ([]domain.ResourceState, error)
	SaveRelease(targetKey string, deploymentID uuid.UUID, artifact domain.Artifact) error
	FindRelease(targetKey string) (*domain.Release, error)
}

type stateRepository struct {
	db     *gorm.DB
	mapper *ResourceStateMapper
}

// ReplaceForDeployment swaps the stored desired state wholesale inside a
// transaction so readers never observe a partial snapshot
func (r *stateRepository) ReplaceForDeployment(deploymentID uuid.UUID, states []domain.ResourceState) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("deployment_id = ?", deploymentID).Delete(&db.ResourceStateModel{}).Error; err != nil {
			return err
		}
		for i := range states {
			m, err := r.mapper.ToModel(deploymentID, &states[i])
			if err != nil {
				return err
			}
			m.ID = uuid.New()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *stateRepository) ListByDeployment(deploymentID uuid.UUID) ([]domain.ResourceState, error) {
	var models []db.ResourceStateModel
	if err := r.db.Where("deployment_id = ?", deploymentID).Order("resource_id").Find(&models).Error; err != nil {
		return nil, err
	}

	states := make([]domain.ResourceState, len(models))
	for i, m := range models {
		state, err := r.mapper.ToDomain(&m)
		if err != nil {
			return nil, err
		}
		states[i] = *state
	}
	return states, nil
}

// SaveRelease upserts the last successfully applied artifact for a target
func (r *stateRepository) SaveRelease(targetKey string, deploymentID uuid.UUID, artifact domain.Artifact) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_key = ?", targetKey).Delete(&db.ReleaseModel{}).Error; err != nil {
			return err
		}
		release := db.ReleaseModel{
			BaseModel:       db.BaseModel{ID: uuid.New()},
			TargetKey:       targetKey,
			DeploymentID:    deploymentID,
			Format:          artifact.Format,
			ArtifactPayload: artifact.Payload,
		}
		return tx.Create(&release).Error
	})
}

func (r *stateRepository) FindRelease(targetKey string) (*domain.Release, error) {
	var m db.ReleaseModel
	if err := r.db.Where("target_key = ?", targetKey).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Release{
		TargetKey:    m.TargetKey,
		DeploymentID: m.DeploymentID,
		Artifact: domain.Artifact{
			Format:  m.Format,
			Payload: m.ArtifactPayload,
		},
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func NewStateRepository(db *gorm.DB) StateRepository {
	return &stateRepository{
		db:     db,
		mapper: &ResourceStateMapper{},
	}
}

type DriftReportRepository interface {
	Create(report *domain.DriftReport) error
	FindLatestByDeployment(deploymentID uuid.UUID) (*domain.DriftReport, error)
	ListByDeployment(deploymentID uuid.UUID) ([]*domain.DriftReport, error)
}

type driftReportRepository struct {
	db     *gorm.DB
	mapper *DriftReportMapper
}

func (r *driftReportRepository) Create(report *domain.DriftReport) error {
	m, err := r.mapper.ToModel(report)
	if err != nil {
		return err
	}
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_drift_report",
			"deployment_id", report.DeploymentID,
			"error", err)
		return err
	}
	return nil
}

func (r *driftReportRepository) FindLatestByDeployment(deploymentID uuid.UUID) (*domain.DriftReport, error) {
	var m db.DriftReportModel
	err := r.db.
		Where("deployment_id = ?", deploymentID).
		Order("timestamp DESC").
		First(&m).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToDomain(&m)
}

func (r *driftReportRepository) ListByDeployment(deploymentID uuid.UUID) ([]*domain.DriftReport, error) {
	var models []db.DriftReportModel
	err := r.db.
		Where("deployment_id = ?", deploymentID).
		Order("timestamp DESC").
		Find(&models).
		Error
	if err != nil {
		return nil, err
	}

	reports := make([]*domain.DriftReport, len(models))
	for i, m := range models {
		report, err := r.mapper.ToDomain(&m)
		if err != nil {
			return nil, err
		}
		reports[i] = report
	}
	return reports, nil
}

func NewDriftReportRepository(db *gorm.DB) DriftReportRepository {
	return &driftReportRepository{
		db:     db,
		mapper: &DriftReportMapper{},
	}
}

type ApprovalRepository interface {
	Create(decision *domain.ApprovalDecision) error
	ListByDeployment(deploymentID uuid.UUID) ([]*domain.ApprovalDecision, error)
}

type approvalRepository struct {
	db     *gorm.DB
	mapper *ApprovalMapper
}

func (r *approvalRepository) Create(decision *domain.ApprovalDecision) error {
	m, err := r.mapper.ToModel(decision)
	if err != nil {
		return err
	}
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_approval_decision",
			"deployment_id", decision.DeploymentID,
			"error", err)
		return err
	}
	return nil
}

func (r *approvalRepository) ListByDeployment(deploymentID uuid.UUID) ([]*domain.ApprovalDecision, error) {
	var models []db.ApprovalDecisionModel
	err := r.db.
		Where("deployment_id = ?", deploymentID).
		Order("timestamp ASC").
		Find(&models).
		Error
	if err != nil {
		return nil, err
	}

	decisions := make([]*domain.ApprovalDecision, len(models))
	for i, m := range models {
		decision, err := r.mapper.ToDomain(&m)
		if err != nil {
			return nil, err
		}
		decisions[i] = decision
	}
	return decisions, nil
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{
		db:     db,
		mapper: &ApprovalMapper{},
	}
}

// isUniqueViolation detects a SQLite unique constraint error without
// depending on driver error types
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
