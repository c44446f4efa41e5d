package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// PlanStore is the persistence adapter for content plans.
type PlanStore struct {
	db *gorm.DB
}

func NewPlanStore(db *gorm.DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) FindByID(ctx context.Context, planID string) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan %s: %w", planID, err)
	}
	return &plan, nil
}

// ListByDate returns the plans generated on the given local day, ordered
// by their scheduled slot.
func (s *PlanStore) ListByDate(ctx context.Context, date time.Time) ([]models.Plan, error) {
	var plans []models.Plan
	err := s.db.WithContext(ctx).
		Where("generation_date = ?", date.Format("2006-01-02")).
		Order("scheduled_time ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (s *PlanStore) Create(ctx context.Context, plan *models.Plan) error {
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update; unset fields are preserved.
func (s *PlanStore) UpdateFields(ctx context.Context, planID string, fields map[string]interface{}) error {
	err := s.db.WithContext(ctx).Model(&models.Plan{}).
		Where("plan_id = ?", planID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update plan %s: %w", planID, err)
	}
	return nil
}

func (s *PlanStore) UpdateStatus(ctx context.Context, planID, status string) error {
	return s.UpdateFields(ctx, planID, map[string]interface{}{"status": status})
}
