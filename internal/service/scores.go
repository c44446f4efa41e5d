package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// maturityWindow is how long a post must have been live before its
// engagement numbers count toward a template score. Younger posts are
// still accumulating impressions and would drag averages down.
const maturityWindow = 72 * time.Hour

// TemplateScoreService recomputes per-template engagement averages from
// posts that have matured, appending one score row per template per sweep.
// History is kept; readers take the latest row per template.
type TemplateScoreService struct {
	logger *zap.Logger
	db     *gorm.DB
	now    func() time.Time
}

func NewTemplateScoreService(logger *zap.Logger, db *gorm.DB) *TemplateScoreService {
	return &TemplateScoreService{
		logger: logger.Named("scores"),
		db:     db,
		now:    time.Now,
	}
}

type templateAggregate struct {
	TemplateID    string
	ImpressionAvg float64
	LikeAvg       float64
	PostCount     int
}

// Update aggregates matured successful posts by template and appends the
// resulting score rows. Returns how many templates were scored.
func (s *TemplateScoreService) Update(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-maturityWindow)

	var aggregates []templateAggregate
	err := s.db.WithContext(ctx).
		Table("posting_logs").
		Select("plans.template_id AS template_id, "+
			"AVG(post_metrics.impressions_total) AS impression_avg, "+
			"AVG(post_metrics.likes_total) AS like_avg, "+
			"COUNT(*) AS post_count").
		Joins("JOIN plans ON plans.plan_id = posting_logs.plan_id AND plans.deleted_at IS NULL").
		Joins("JOIN post_metrics ON post_metrics.post_id = posting_logs.posted_thread_id").
		Where("posting_logs.status = ?", models.JobStatusSucceeded).
		Where("posting_logs.posted_thread_id <> ''").
		Where("posting_logs.posted_at <= ?", cutoff).
		Where("plans.template_id <> ''").
		Group("plans.template_id").
		Scan(&aggregates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate template metrics: %w", err)
	}

	if len(aggregates) == 0 {
		s.logger.Info("no matured posts to score")
		return 0, nil
	}

	generatedAt := s.now()
	scores := make([]models.TemplateScore, 0, len(aggregates))
	for _, agg := range aggregates {
		scores = append(scores, models.TemplateScore{
			TemplateID:       agg.TemplateID,
			GeneratedAt:      generatedAt,
			ImpressionAvg72h: agg.ImpressionAvg,
			LikeAvg72h:       agg.LikeAvg,
			PostCount:        agg.PostCount,
			Status:           "calculated",
			Notes:            fmt.Sprintf("posts=%d", agg.PostCount),
		})
	}

	if err := s.db.WithContext(ctx).Create(&scores).Error; err != nil {
		return 0, fmt.Errorf("failed to append template scores: %w", err)
	}

	s.logger.Info("template scores updated",
		zap.Int("templates", len(scores)))
	return len(scores), nil
}

// Latest returns the most recent score row per template.
func (s *TemplateScoreService) Latest(ctx context.Context) ([]models.TemplateScore, error) {
	var scores []models.TemplateScore
	err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (template_id) *
		     FROM template_scores
		     ORDER BY template_id, generated_at DESC`).
		Scan(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load template scores: %w", err)
	}
	return scores, nil
}
