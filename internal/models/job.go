package models

import (
	"time"

	"gorm.io/gorm"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// Job is one claimable unit of dispatch work bound to a Plan. At most one
// active (pending/processing) job should exist per plan; the approval
// call-site enforces this before creating a new one.
type Job struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	JobID          string         `gorm:"uniqueIndex;not null;size:64" json:"job_id"`
	PlanID         string         `gorm:"index;not null;size:64" json:"plan_id"`
	ScheduledAt    time.Time      `gorm:"index;not null" json:"scheduled_at"`
	Status         string         `gorm:"size:50;default:'pending';index" json:"status"`
	AttemptCount   int            `gorm:"default:0" json:"attempt_count"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	PostedThreadID string         `gorm:"size:64" json:"posted_thread_id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Active reports whether the job still owns its plan's publish slot.
func (j *Job) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}
