package service

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dodokudo/autostudio/internal/config"
	"github.com/dodokudo/autostudio/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(
		&models.Plan{},
		&models.Job{},
		&models.ScheduledPost{},
		&models.CommentSchedule{},
		&models.PostingLog{},
		&models.TemplateScore{},
		&models.PostMetric{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// isStorageConflict matches the store's transient write-buffer conflict:
// rows recently appended by the analytics sync cannot be updated until the
// buffer flushes. Such updates are skipped and retried on a later
// invocation, never recorded as failures.
func isStorageConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "streaming buffer") ||
		strings.Contains(err.Error(), "write buffer")
}
