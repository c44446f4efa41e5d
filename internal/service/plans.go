package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
)

// PlanService is the authoring surface for plans: listing with publish
// state attached, creating and editing drafts, and driving the status
// machine. Approval is where jobs enter the system.
type PlanService struct {
	logger *zap.Logger
	plans  *PlanStore
	jobs   *JobStore
	logs   *LogStore
	loc    *time.Location
}

func NewPlanService(logger *zap.Logger, plans *PlanStore, jobs *JobStore, logs *LogStore, loc *time.Location) *PlanService {
	return &PlanService{
		logger: logger.Named("plans"),
		plans:  plans,
		jobs:   jobs,
		logs:   logs,
		loc:    loc,
	}
}

// PlanInput is the authoring payload. A zero GenerationDate defaults to
// today in the service timezone.
type PlanInput struct {
	PlanID         string               `json:"plan_id"`
	GenerationDate string               `json:"generation_date"` // YYYY-MM-DD
	ScheduledTime  string               `json:"scheduled_time"`  // HH:mm
	TemplateID     string               `json:"template_id"`
	Theme          string               `json:"theme"`
	MainText       string               `json:"main_text"`
	Comments       []models.PlanComment `json:"comments"`
}

// PlanSummary is a plan joined with its latest job and posting log, the
// shape the review UI reads.
type PlanSummary struct {
	Plan      models.Plan        `json:"plan"`
	LatestJob *models.Job        `json:"latest_job,omitempty"`
	LatestLog *models.PostingLog `json:"latest_log,omitempty"`
}

func (s *PlanService) parseDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().In(s.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", value, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid generation date %q: %w", value, err)
	}
	return d, nil
}

// Upsert creates a draft plan, or updates the editable fields of an
// existing one. Editing a plan already handed to publishing is refused.
func (s *PlanService) Upsert(ctx context.Context, input *PlanInput) (*models.Plan, error) {
	date, err := s.parseDate(input.GenerationDate)
	if err != nil {
		return nil, err
	}

	if input.PlanID != "" {
		existing, err := s.plans.FindByID(ctx, input.PlanID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Status == models.PlanStatusScheduled || existing.Status == models.PlanStatusPosted {
				return nil, fmt.Errorf("plan %s is %s and can no longer be edited", existing.PlanID, existing.Status)
			}
			fields := map[string]interface{}{
				"main_text":   input.MainText,
				"theme":       input.Theme,
				"template_id": input.TemplateID,
				"comments":    models.CommentList(input.Comments),
			}
			if input.ScheduledTime != "" {
				fields["scheduled_time"] = input.ScheduledTime
			}
			if err := s.plans.UpdateFields(ctx, existing.PlanID, fields); err != nil {
				return nil, err
			}
			return s.plans.FindByID(ctx, existing.PlanID)
		}
	}

	plan := &models.Plan{
		PlanID:         input.PlanID,
		GenerationDate: date,
		ScheduledTime:  input.ScheduledTime,
		TemplateID:     input.TemplateID,
		Theme:          input.Theme,
		Status:         models.PlanStatusDraft,
		MainText:       input.MainText,
		Comments:       models.CommentList(input.Comments),
	}
	if plan.PlanID == "" {
		plan.PlanID = uuid.New().String()
	}
	if plan.ScheduledTime == "" {
		plan.ScheduledTime = "07:00"
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("plan created",
		zap.String("plan_id", plan.PlanID),
		zap.String("generation_date", date.Format("2006-01-02")))
	return plan, nil
}

// UpdateStatus drives the plan status machine. Approving validates the
// payload and guarantees exactly one active job for the plan; transitions
// the machine does not allow are rejected.
func (s *PlanService) UpdateStatus(ctx context.Context, planID, status string) (*models.Plan, *models.Job, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		return nil, nil, fmt.Errorf("plan %s not found", planID)
	}
	if !plan.CanTransition(status) {
		return nil, nil, fmt.Errorf("plan %s cannot move from %s to %s", planID, plan.Status, status)
	}

	var job *models.Job
	if status == models.PlanStatusApproved {
		if err := plan.Validate(); err != nil {
			return nil, nil, err
		}
		job, err = s.ensureJob(ctx, plan)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := s.plans.UpdateStatus(ctx, planID, status); err != nil {
		return nil, nil, err
	}
	plan.Status = status

	s.logger.Info("plan status updated",
		zap.String("plan_id", planID),
		zap.String("status", status))
	return plan, job, nil
}

// ensureJob returns the plan's active job, creating one only when none
// exists. Re-approval after a failure therefore queues a fresh attempt
// without ever doubling up.
func (s *PlanService) ensureJob(ctx context.Context, plan *models.Plan) (*models.Job, error) {
	existing, err := s.jobs.FindActiveByPlan(ctx, plan.PlanID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("active job already exists, skipping creation",
			zap.String("plan_id", plan.PlanID),
			zap.String("job_id", existing.JobID))
		return existing, nil
	}

	job, err := s.jobs.CreateForPlan(ctx, plan, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create job for plan %s: %w", plan.PlanID, err)
	}
	s.logger.Info("job created",
		zap.String("plan_id", plan.PlanID),
		zap.String("job_id", job.JobID),
		zap.Time("scheduled_at", job.ScheduledAt))
	return job, nil
}

// ListByDate returns the plans of one generation date with their latest
// job and posting log attached.
func (s *PlanService) ListByDate(ctx context.Context, date string) ([]PlanSummary, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}

	plans, err := s.plans.ListByDate(ctx, day)
	if err != nil {
		return nil, err
	}

	planIDs := make([]string, 0, len(plans))
	for _, p := range plans {
		planIDs = append(planIDs, p.PlanID)
	}

	jobsByPlan, err := s.jobs.LatestByPlans(ctx, planIDs)
	if err != nil {
		return nil, err
	}
	logsByPlan, err := s.logs.LatestByPlans(ctx, planIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]PlanSummary, 0, len(plans))
	for _, p := range plans {
		summary := PlanSummary{Plan: p}
		if job, ok := jobsByPlan[p.PlanID]; ok {
			j := job
			summary.LatestJob = &j
		}
		if log, ok := logsByPlan[p.PlanID]; ok {
			l := log
			summary.LatestLog = &l
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ResetFailedJobs flips failed jobs whose error matches the filter back to
// pending so the next dispatch retries them. Recovery tool, capped by the
// store.
func (s *PlanService) ResetFailedJobs(ctx context.Context, messageFilter string) ([]string, error) {
	jobIDs, err := s.jobs.ResetFailed(ctx, messageFilter)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reset failed jobs",
		zap.Int("count", len(jobIDs)),
		zap.String("filter", messageFilter))
	return jobIDs, nil
}
