package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// TestMigration0001RenameStackLocksToTargetLocks tests migration 1
func TestMigration0001RenameStackLocksToTargetLocks(t *testing.T) {
	db, err := InitDatabase(DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	// Ensure migrations table exists
	err = db.AutoMigrate(&MigrationModel{})
	require.NoError(t, err)

	// Create the old table as it existed before the rename
	err = db.Exec(`
		CREATE TABLE stack_locks (
			target_key TEXT PRIMARY KEY,
			holder_deployment_id TEXT NOT NULL,
			acquired_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)

	holderID := uuid.New()
	err = db.Exec(
		"INSERT INTO stack_locks (target_key, holder_deployment_id, acquired_at) VALUES (?, ?, ?)",
		"prod-aws-bp-1", holderID.String(), time.Now(),
	).Error
	require.NoError(t, err)

	// Apply migration 1
	err = RunMigrations(db, 1)
	require.NoError(t, err)

	// Old table is gone, new table holds the row
	assert.False(t, db.Migrator().HasTable("stack_locks"), "stack_locks table should not exist after migration")
	assert.True(t, db.Migrator().HasTable("target_locks"), "target_locks table should exist after migration")

	type Result struct {
		TargetKey          string
		HolderDeploymentID string
	}
	var result Result
	err = db.Raw("SELECT target_key, holder_deployment_id FROM target_locks").Scan(&result).Error
	require.NoError(t, err)
	assert.Equal(t, "prod-aws-bp-1", result.TargetKey)
	assert.Equal(t, holderID.String(), result.HolderDeploymentID)

	// Verify migration was recorded
	var migrationCount int64
	err = db.Model(&MigrationModel{}).
		Where("name = ?", "0001_rename_stack_locks_to_target_locks").
		Count(&migrationCount).
		Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), migrationCount, "Migration should be recorded once")

	// Verify idempotency - running again should not fail
	err = RunMigrations(db, 1)
	assert.NoError(t, err, "Migration should be idempotent")

	err = db.Model(&MigrationModel{}).
		Where("name = ?", "0001_rename_stack_locks_to_target_locks").
		Count(&migrationCount).
		Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), migrationCount, "Migration should still be recorded only once")
}

// TestAutoMigrateAllFreshDatabase tests AutoMigrateAll on a fresh database
func TestAutoMigrateAllFreshDatabase(t *testing.T) {
	db, err := InitDatabase(DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	// Run AutoMigrateAll on fresh database
	err = AutoMigrateAll(db)
	require.NoError(t, err)

	// Verify tables exist
	assert.True(t, db.Migrator().HasTable(&DeploymentModel{}), "deployments table should exist")
	assert.True(t, db.Migrator().HasTable(&LockModel{}), "target_locks table should exist")
	assert.True(t, db.Migrator().HasTable(&ResourceStateModel{}), "resource_states table should exist")
	assert.True(t, db.Migrator().HasTable(&ReleaseModel{}), "releases table should exist")
	assert.True(t, db.Migrator().HasTable(&DriftReportModel{}), "drift_reports table should exist")
	assert.True(t, db.Migrator().HasTable(&ApprovalDecisionModel{}), "approval_decisions table should exist")

	// Fresh databases skip the table rename but still record the migration
	var count int64
	err = db.Model(&MigrationModel{}).Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "Should have 1 migration record")
}

// TestLockModel_UniqueTargetKey verifies the constraint the locking layer
// relies on for conflict detection
func TestLockModel_UniqueTargetKey(t *testing.T) {
	db, err := InitDatabase(DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrateAll(db))

	lock := LockModel{
		TargetKey:          "staging-aws-bp-42",
		HolderDeploymentID: uuid.New(),
		AcquiredAt:         time.Now(),
	}
	require.NoError(t, db.Create(&lock).Error)

	second := LockModel{
		TargetKey:          "staging-aws-bp-42",
		HolderDeploymentID: uuid.New(),
		AcquiredAt:         time.Now(),
	}
	err = db.Create(&second).Error
	assert.Error(t, err, "second lock on the same target key must be rejected")
}
