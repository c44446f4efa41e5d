package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// LogStore appends posting audit records. Rows are insert-only.
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Append(ctx context.Context, jobID, planID, status, postedThreadID, errorMessage string) error {
	log := &models.PostingLog{
		LogID:          uuid.NewString(),
		JobID:          jobID,
		PlanID:         planID,
		Status:         status,
		PostedThreadID: postedThreadID,
		ErrorMessage:   errorMessage,
		PostedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to append posting log: %w", err)
	}
	return nil
}

func (s *LogStore) ListRecent(ctx context.Context, limit int) ([]models.PostingLog, error) {
	var logs []models.PostingLog
	err := s.db.WithContext(ctx).
		Order("posted_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posting logs: %w", err)
	}
	return logs, nil
}

// LatestByPlans loads each plan's most recent log keyed by plan id.
func (s *LogStore) LatestByPlans(ctx context.Context, planIDs []string) (map[string]models.PostingLog, error) {
	if len(planIDs) == 0 {
		return map[string]models.PostingLog{}, nil
	}

	var logs []models.PostingLog
	err := s.db.WithContext(ctx).
		Where("plan_id IN ?", planIDs).
		Order("posted_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posting logs: %w", err)
	}

	latest := make(map[string]models.PostingLog, len(logs))
	for _, log := range logs {
		latest[log.PlanID] = log
	}
	return latest, nil
}
