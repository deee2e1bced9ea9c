package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// defaultBusyTimeout bounds how long a writer waits on the sqlite lock.
// Deployment workers, operator transitions, and the drift detector all
// write concurrently, so contention is normal rather than exceptional.
const defaultBusyTimeout = 5 * time.Second

// DBConfig holds the options for opening the database
type DBConfig struct {
	// Path is the database file, or ":memory:" for tests
	Path string
	// LogLevel is the GORM statement logging level
	LogLevel logger.LogLevel
	// BusyTimeout overrides defaultBusyTimeout when positive
	BusyTimeout time.Duration
}

func (c DBConfig) inMemory() bool {
	return c.Path == ":memory:"
}

// InitDatabase opens a SQLite database and applies the pragmas Meridian
// depends on. Migrations are the caller's responsibility.
func InitDatabase(config DBConfig) (*gorm.DB, error) {
	if !config.inMemory() {
		dir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	database, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{
		Logger: logger.Default.LogMode(config.LogLevel),
	})
	if err != nil {
		slog.Error("Failed to connect to database", "path", config.Path, "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Exec(pragmasFor(config)).Error; err != nil {
		slog.Error("Failed to configure database", "path", config.Path, "error", err)
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	slog.Debug("Database initialized", "path", config.Path)
	return database, nil
}

// pragmasFor builds the pragma batch for the configuration. Foreign keys
// back the deployment to resource-state and drift-report relations; the
// busy timeout keeps concurrent lock inserts from failing spuriously with
// SQLITE_BUSY instead of the unique-constraint error the lock repository
// maps to a conflict.
func pragmasFor(config DBConfig) string {
	busyTimeout := config.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	pragmas := fmt.Sprintf(`
	PRAGMA foreign_keys  = ON;
	PRAGMA busy_timeout  = %d;`, busyTimeout.Milliseconds())

	// WAL and the accompanying tuning only apply to file-backed databases
	if !config.inMemory() {
		pragmas += `
	PRAGMA journal_mode       = WAL;
	PRAGMA synchronous        = NORMAL;
	PRAGMA mmap_size          = 134217728;
	PRAGMA journal_size_limit = 27103364;
	PRAGMA cache_size         = 2000;`
	}
	return pragmas
}
