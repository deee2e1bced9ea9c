package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration represents a single database migration
type Migration struct {
	ID   int
	Name string
	Up   func(*gorm.DB) error
}

// allMigrations is the ordered list of all migrations
// Each migration has a unique ID and is applied in order
var allMigrations = []Migration{
	{
		ID:   1,
		Name: "0001_rename_stack_locks_to_target_locks",
		Up:   migration0001RenameStackLocksToTargetLocks,
	},
}

// AllModels returns all the models that need to be migrated
// This is the single source of truth for database migrations
func AllModels() []any {
	return []any{
		&MigrationModel{},
		&DeploymentModel{},
		&LockModel{},
		&ResourceStateModel{},
		&ReleaseModel{},
		&DriftReportModel{},
		&ApprovalDecisionModel{},
	}
}

// AutoMigrateAll runs auto-migration for all application models
func AutoMigrateAll(db *gorm.DB) error {
	// First, ensure migrations table exists
	if err := db.AutoMigrate(&MigrationModel{}); err != nil {
		return err
	}

	// Run all manual migrations in order
	if err := RunMigrations(db, len(allMigrations)); err != nil {
		return err
	}

	// Now run AutoMigrate for all models
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}

	return nil
}

// RunMigrations runs all migrations up to and including the specified ID
// If targetID is 0 or negative, all migrations are run
func RunMigrations(db *gorm.DB, targetID int) error {
	if targetID <= 0 {
		targetID = len(allMigrations)
	}

	for _, migration := range allMigrations {
		if migration.ID > targetID {
			break
		}

		// Check if migration has already been applied
		applied, err := migrationApplied(db, migration.Name)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", migration.Name, err)
		}
		if applied {
			continue
		}

		// Run the migration
		if err := migration.Up(db); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}

		// Record that migration was applied
		if err := recordMigration(db, migration.Name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
		}
	}

	return nil
}

// migrationApplied checks if a migration has already been applied
func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var count int64
	err := db.Model(&MigrationModel{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// recordMigration records that a migration has been applied
func recordMigration(db *gorm.DB, name string) error {
	migration := MigrationModel{
		Name:      name,
		AppliedAt: time.Now(),
	}
	return db.Create(&migration).Error
}

// migration0001RenameStackLocksToTargetLocks handles the rename from
// stack_locks, used before locks covered non-CloudFormation targets
func migration0001RenameStackLocksToTargetLocks(db *gorm.DB) error {
	// If the old table is absent this is a fresh database and nothing to migrate
	if !db.Migrator().HasTable("stack_locks") {
		return nil
	}

	return db.Exec("ALTER TABLE stack_locks RENAME TO target_locks").Error
}
