package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

// ScheduleService is the authoring surface for self-contained scheduled
// posts: create, list, edit and delete, plus an immediate publish path
// that bypasses the queue.
type ScheduleService struct {
	logger    *zap.Logger
	schedules *ScheduleStore
	engine    *Engine
	delay     DelayPolicy
	loc       *time.Location
}

func NewScheduleService(logger *zap.Logger, schedules *ScheduleStore, engine *Engine, delay DelayPolicy, loc *time.Location) *ScheduleService {
	return &ScheduleService{
		logger:    logger.Named("schedule_authoring"),
		schedules: schedules,
		engine:    engine,
		delay:     delay,
		loc:       loc,
	}
}

// ScheduleInput is the authoring payload for a scheduled post.
type ScheduleInput struct {
	PlanID      string    `json:"plan_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	MainText    string    `json:"main_text"`
	Comment1    string    `json:"comment1"`
	Comment2    string    `json:"comment2"`
}

// pastGrace tolerates clock skew between the authoring client and the
// server when checking that a new schedule is not in the past.
const pastGrace = 5 * time.Minute

// Create validates and stores a new scheduled post.
func (s *ScheduleService) Create(ctx context.Context, input *ScheduleInput) (*models.ScheduledPost, error) {
	post := &models.ScheduledPost{
		ScheduleID:  uuid.New().String(),
		PlanID:      input.PlanID,
		ScheduledAt: input.ScheduledAt,
		Status:      models.ScheduleStatusScheduled,
		MainText:    input.MainText,
		Comment1:    input.Comment1,
		Comment2:    input.Comment2,
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if post.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("scheduled time is required")
	}
	if post.ScheduledAt.Before(time.Now().Add(-pastGrace)) {
		return nil, fmt.Errorf("scheduled time %s is in the past", post.ScheduledAt.In(s.loc).Format(time.RFC3339))
	}

	if err := s.schedules.Create(ctx, post); err != nil {
		return nil, err
	}
	s.logger.Info("scheduled post created",
		zap.String("schedule_id", post.ScheduleID),
		zap.Time("scheduled_at", post.ScheduledAt))
	return post, nil
}

// List returns the scheduled posts of a local-date range, both bounds
// inclusive. Empty bounds default to today.
func (s *ScheduleService) List(ctx context.Context, startDate, endDate string) ([]models.ScheduledPost, error) {
	now := time.Now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	start, end := today, today
	var err error
	if startDate != "" {
		if start, err = time.ParseInLocation("2006-01-02", startDate, s.loc); err != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
		}
	}
	if endDate != "" {
		if end, err = time.ParseInLocation("2006-01-02", endDate, s.loc); err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
		}
	}

	return s.schedules.ListWindow(ctx, start, end.AddDate(0, 0, 1))
}

// Update edits the payload or due time of a schedule that has not been
// claimed. Processing and posted rows are immutable.
func (s *ScheduleService) Update(ctx context.Context, scheduleID string, input *ScheduleInput) (*models.ScheduledPost, error) {
	post, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("scheduled post %s not found", scheduleID)
	}
	if post.Status == models.ScheduleStatusProcessing || post.Status == models.ScheduleStatusPosted {
		return nil, fmt.Errorf("scheduled post %s is %s and can no longer be edited", scheduleID, post.Status)
	}

	updated := *post
	updated.MainText = input.MainText
	updated.Comment1 = input.Comment1
	updated.Comment2 = input.Comment2
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"main_text": input.MainText,
		"comment1":  input.Comment1,
		"comment2":  input.Comment2,
		// Editing a failed row re-queues it
		"status":        models.ScheduleStatusScheduled,
		"error_message": "",
	}
	if !input.ScheduledAt.IsZero() {
		fields["scheduled_at"] = input.ScheduledAt
	}
	if err := s.schedules.UpdateFields(ctx, scheduleID, fields); err != nil {
		return nil, err
	}
	return s.schedules.FindByID(ctx, scheduleID)
}

// Delete removes a schedule that has not been published. Posted rows are
// kept as the audit trail.
func (s *ScheduleService) Delete(ctx context.Context, scheduleID string) error {
	post, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("scheduled post %s not found", scheduleID)
	}
	if post.Status == models.ScheduleStatusProcessing || post.Status == models.ScheduleStatusPosted {
		return fmt.Errorf("scheduled post %s is %s and cannot be deleted", scheduleID, post.Status)
	}
	return s.schedules.Delete(ctx, scheduleID)
}

// PublishNow publishes the chain immediately, skipping the queue, and
// records a posted row for the audit trail. Used for manual sends from
// the review surface.
func (s *ScheduleService) PublishNow(ctx context.Context, input *ScheduleInput) (*models.ScheduledPost, error) {
	post := &models.ScheduledPost{
		ScheduleID:  uuid.New().String(),
		PlanID:      input.PlanID,
		ScheduledAt: time.Now(),
		Status:      models.ScheduleStatusProcessing,
		MainText:    input.MainText,
		Comment1:    input.Comment1,
		Comment2:    input.Comment2,
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if err := s.schedules.Create(ctx, post); err != nil {
		return nil, err
	}

	items := []ChainItem{{Text: post.MainText}}
	if post.Comment1 != "" {
		items = append(items, ChainItem{Text: post.Comment1})
	}
	if post.Comment2 != "" {
		items = append(items, ChainItem{Text: post.Comment2})
	}

	ids, err := s.engine.Publish(ctx, items, s.delay, func(step int, threadID string) error {
		if step >= len(threadIDColumns) {
			return nil
		}
		return s.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
			threadIDColumns[step]: threadID,
		})
	})
	if err != nil {
		if uerr := s.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
			"status":        models.ScheduleStatusFailed,
			"error_message": err.Error(),
		}); uerr != nil {
			s.logger.Error("failed to mark immediate publish as failed",
				zap.String("schedule_id", post.ScheduleID), zap.Error(uerr))
		}
		return nil, err
	}

	if err := s.schedules.UpdateFields(ctx, post.ScheduleID, map[string]interface{}{
		"status": models.ScheduleStatusPosted,
	}); err != nil {
		s.logger.Error("failed to mark immediate publish as posted",
			zap.String("schedule_id", post.ScheduleID), zap.Error(err))
	}

	if len(ids) > 0 {
		post.MainThreadID = ids[0]
	}
	post.Status = models.ScheduleStatusPosted

	s.logger.Info("published immediately",
		zap.String("schedule_id", post.ScheduleID),
		zap.String("main_thread_id", post.MainThreadID))
	return post, nil
}
