package models

import (
	"time"
)

// PostingLog is the append-only audit record of one publish attempt.
// Rows are never updated after insert.
type PostingLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LogID          string    `gorm:"uniqueIndex;not null;size:64" json:"log_id"`
	JobID          string    `gorm:"index;size:64" json:"job_id"`
	PlanID         string    `gorm:"index;size:64" json:"plan_id"`
	Status         string    `gorm:"size:50;not null" json:"status"`
	PostedThreadID string    `gorm:"size:64" json:"posted_thread_id"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	PostedAt       time.Time `gorm:"index;not null" json:"posted_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
