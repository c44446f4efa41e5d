package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/models"
)

// JobStore is the persistence adapter for publish jobs.
type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// CreateForPlan inserts a pending job for the plan, due at the plan's
// scheduled wall-clock time in loc on its generation date.
func (s *JobStore) CreateForPlan(ctx context.Context, plan *models.Plan, loc *time.Location) (*models.Job, error) {
	scheduledAt, err := planDueTime(plan, loc)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		JobID:       uuid.NewString(),
		PlanID:      plan.PlanID,
		ScheduledAt: scheduledAt,
		Status:      models.JobStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// FindActiveByPlan returns the plan's pending or processing job, or nil.
// Used at the approval call-site to keep job creation idempotent.
func (s *JobStore) FindActiveByPlan(ctx context.Context, planID string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Where("plan_id = ? AND status IN ?", planID, []string{models.JobStatusPending, models.JobStatusProcessing}).
		Order("updated_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return &job, nil
}

// ClaimNext atomically claims the oldest due pending job. The status flip
// is a single conditional update keyed on the previous status, so two
// overlapping invocations can both see the row but only one wins it; the
// loser gets nil and treats the cycle as idle.
func (s *JobStore) ClaimNext(ctx context.Context, now time.Time) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.JobStatusPending, now).
		Order("scheduled_at ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status = ?", job.JobID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":        models.JobStatusProcessing,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.JobID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race to another invocation
		return nil, nil
	}

	job.Status = models.JobStatusProcessing
	job.AttemptCount++
	return &job, nil
}

// MarkResult finalizes a claimed job. postedThreadID and errorMessage may
// be empty; unset fields are preserved.
func (s *JobStore) MarkResult(ctx context.Context, jobID, status, postedThreadID, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	if postedThreadID != "" {
		updates["posted_thread_id"] = postedThreadID
	}

	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to mark job %s %s: %w", jobID, status, err)
	}
	return nil
}

// SetPostedThreadID persists the chain anchor as soon as the main post
// succeeds, so a crash later in the chain does not lose it.
func (s *JobStore) SetPostedThreadID(ctx context.Context, jobID, threadID string) error {
	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("posted_thread_id", threadID).Error
	if err != nil {
		return fmt.Errorf("failed to store posted thread id for job %s: %w", jobID, err)
	}
	return nil
}

// ResetFailed flips failed jobs back to pending for manual recovery. With
// a non-empty messageFilter only jobs whose error contains it are reset.
func (s *JobStore) ResetFailed(ctx context.Context, messageFilter string) ([]string, error) {
	query := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusFailed).
		Order("updated_at DESC").
		Limit(50)
	if messageFilter != "" {
		query = query.Where("error_message LIKE ?", "%"+messageFilter+"%")
	}

	var jobs []models.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	reset := make([]string, 0, len(jobs))
	for _, job := range jobs {
		err := s.db.WithContext(ctx).Model(&models.Job{}).
			Where("job_id = ? AND status = ?", job.JobID, models.JobStatusFailed).
			Updates(map[string]interface{}{
				"status":        models.JobStatusPending,
				"error_message": "",
			}).Error
		if err != nil {
			return reset, fmt.Errorf("failed to reset job %s: %w", job.JobID, err)
		}
		reset = append(reset, job.JobID)
	}
	return reset, nil
}

// LatestByPlans loads each plan's most recent job keyed by plan id.
func (s *JobStore) LatestByPlans(ctx context.Context, planIDs []string) (map[string]models.Job, error) {
	if len(planIDs) == 0 {
		return map[string]models.Job{}, nil
	}

	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("plan_id IN ?", planIDs).
		Order("updated_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	latest := make(map[string]models.Job, len(jobs))
	for _, job := range jobs {
		latest[job.PlanID] = job
	}
	return latest, nil
}

// planDueTime resolves "HH:mm on the generation date, in loc" to an
// instant.
func planDueTime(plan *models.Plan, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", plan.ScheduledTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled time %q: %w", plan.ScheduledTime, err)
	}
	date := plan.GenerationDate
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
