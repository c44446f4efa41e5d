package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// ScheduleStore is the persistence adapter for self-contained scheduled
// posts.
type ScheduleStore struct {
	db *gorm.DB
}

func NewScheduleStore(db *gorm.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) FindByID(ctx context.Context, scheduleID string) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled post %s: %w", scheduleID, err)
	}
	return &post, nil
}

// ListWindow returns scheduled posts due inside [start, end), oldest
// first.
func (s *ScheduleStore) ListWindow(ctx context.Context, start, end time.Time) ([]models.ScheduledPost, error) {
	var posts []models.ScheduledPost
	err := s.db.WithContext(ctx).
		Where("scheduled_at >= ? AND scheduled_at < ?", start, end).
		Order("scheduled_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled posts: %w", err)
	}
	return posts, nil
}

func (s *ScheduleStore) Create(ctx context.Context, post *models.ScheduledPost) error {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("failed to create scheduled post: %w", err)
	}
	return nil
}

// Claim flips scheduled → processing with a single conditional update and
// reports whether this caller won the row.
func (s *ScheduleStore) Claim(ctx context.Context, scheduleID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.ScheduleStatusScheduled).
		Update("status", models.ScheduleStatusProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim scheduled post %s: %w", scheduleID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release flips a stuck processing row back to scheduled so a later
// invocation can pick it up again.
func (s *ScheduleStore) Release(ctx context.Context, scheduleID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.ScheduleStatusProcessing).
		Update("status", models.ScheduleStatusScheduled)
	if res.Error != nil {
		return false, fmt.Errorf("failed to release scheduled post %s: %w", scheduleID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateFields applies a partial update; unset fields are preserved.
func (s *ScheduleStore) UpdateFields(ctx context.Context, scheduleID string, fields map[string]interface{}) error {
	err := s.db.WithContext(ctx).Model(&models.ScheduledPost{}).
		Where("schedule_id = ?", scheduleID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update scheduled post %s: %w", scheduleID, err)
	}
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, scheduleID string) error {
	err := s.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Delete(&models.ScheduledPost{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete scheduled post %s: %w", scheduleID, err)
	}
	return nil
}
