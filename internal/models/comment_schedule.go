package models

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/pkg/textutil"
)

// CommentSchedule statuses
const (
	CommentStatusPending   = "pending"
	CommentStatusCompleted = "completed"
	CommentStatusFailed    = "failed"
)

// CommentSchedule is a single follow-up reply scheduled on its own, nested
// under an already published thread. Order 1 replies to the parent thread
// directly; higher orders reply to the previously completed row of the
// same plan.
type CommentSchedule struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ScheduleID     string         `gorm:"uniqueIndex;not null;size:64" json:"schedule_id"`
	PlanID         string         `gorm:"index;not null;size:64" json:"plan_id"`
	ParentThreadID string         `gorm:"size:64;not null" json:"parent_thread_id"`
	CommentOrder   int            `gorm:"not null" json:"comment_order"`
	CommentText    string         `gorm:"type:text;not null" json:"comment_text"`
	ScheduledAt    time.Time      `gorm:"index;not null" json:"scheduled_at"`
	Status         string         `gorm:"size:50;default:'pending';index" json:"status"`
	AttemptCount   int            `gorm:"default:0" json:"attempt_count"`
	PostedThreadID string         `gorm:"size:64" json:"posted_thread_id"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	ExecutedAt     *time.Time     `json:"executed_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Validate checks the character ceiling on the comment text, counted the
// way the platform sees it: any embedded URL goes out as a link
// attachment, so it is excluded first.
func (c *CommentSchedule) Validate() error {
	if c.CommentText == "" {
		return errors.New("comment text is required")
	}
	text, _ := textutil.ExtractURL(c.CommentText)
	if n := utf8.RuneCountInString(text); n > MaxPostLength {
		return fmt.Errorf("comment text exceeds %d characters (%d)", MaxPostLength, n)
	}
	return nil
}

// Eligible reports whether the row may be picked up: pending rows whose
// due time has passed, or failed rows past the cooldown that still have
// attempts left. Retry is expressed purely through this eligibility, not
// through a scheduler.
func (c *CommentSchedule) Eligible(now time.Time, cooldown time.Duration, maxAttempts int) bool {
	if c.ScheduledAt.After(now) {
		return false
	}
	switch c.Status {
	case CommentStatusPending:
		return true
	case CommentStatusFailed:
		return c.AttemptCount < maxAttempts && now.Sub(c.ScheduledAt) >= cooldown
	default:
		return false
	}
}
