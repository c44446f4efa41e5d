package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// CommentStore is the persistence adapter for standalone comment
// schedules.
type CommentStore struct {
	db *gorm.DB
}

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

// ListDue returns rows worth executing at now, oldest first: pending rows
// past their due time plus failed rows past the retry cooldown that still
// have attempts left.
func (s *CommentStore) ListDue(ctx context.Context, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]models.CommentSchedule, error) {
	var rows []models.CommentSchedule
	err := s.db.WithContext(ctx).
		Where("scheduled_at <= ?", now).
		Where(
			s.db.Where("status = ?", models.CommentStatusPending).
				Or("status = ? AND scheduled_at <= ? AND attempt_count < ?",
					models.CommentStatusFailed, now.Add(-cooldown), maxAttempts),
		).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due comment schedules: %w", err)
	}
	return rows, nil
}

func (s *CommentStore) Create(ctx context.Context, row *models.CommentSchedule) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create comment schedule: %w", err)
	}
	return nil
}

// MarkCompleted records a successful execution.
func (s *CommentStore) MarkCompleted(ctx context.Context, scheduleID, postedThreadID string, executedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.CommentSchedule{}).
		Where("schedule_id = ?", scheduleID).
		Updates(map[string]interface{}{
			"status":           models.CommentStatusCompleted,
			"posted_thread_id": postedThreadID,
			"error_message":    "",
			"executed_at":      executedAt,
			"attempt_count":    gorm.Expr("attempt_count + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark comment schedule %s completed: %w", scheduleID, err)
	}
	return nil
}

// MarkFailed records a failed execution. The row becomes eligible again
// after the cooldown, until the attempt cap is reached.
func (s *CommentStore) MarkFailed(ctx context.Context, scheduleID, errorMessage string, executedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.CommentSchedule{}).
		Where("schedule_id = ?", scheduleID).
		Updates(map[string]interface{}{
			"status":        models.CommentStatusFailed,
			"error_message": errorMessage,
			"executed_at":   executedAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark comment schedule %s failed: %w", scheduleID, err)
	}
	return nil
}

// FindCompleted returns the completed row for (planID, order), or nil.
// Used to resolve the parent of a reply that is not the first in its
// chain.
func (s *CommentStore) FindCompleted(ctx context.Context, planID string, order int) (*models.CommentSchedule, error) {
	var row models.CommentSchedule
	err := s.db.WithContext(ctx).
		Where("plan_id = ? AND comment_order = ? AND status = ?", planID, order, models.CommentStatusCompleted).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find completed comment: %w", err)
	}
	return &row, nil
}
