package models

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// ScheduledPost statuses
const (
	ScheduleStatusScheduled  = "scheduled"
	ScheduleStatusProcessing = "processing"
	ScheduleStatusPosted     = "posted"
	ScheduleStatusFailed     = "failed"
)

// ScheduledPost is the self-contained scheduling unit: the full payload of
// a three-part chain (main plus up to two replies) with its own due time.
// Thread ids are persisted per step as soon as the platform returns them,
// so a claim after a crash resumes from the last posted part instead of
// double-posting.
type ScheduledPost struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ScheduleID       string         `gorm:"uniqueIndex;not null;size:64" json:"schedule_id"`
	PlanID           string         `gorm:"index;size:64" json:"plan_id"` // optional linkage
	ScheduledAt      time.Time      `gorm:"index;not null" json:"scheduled_at"`
	Status           string         `gorm:"size:50;default:'scheduled';index" json:"status"`
	MainText         string         `gorm:"type:text" json:"main_text"`
	Comment1         string         `gorm:"type:text" json:"comment1"`
	Comment2         string         `gorm:"type:text" json:"comment2"`
	MainThreadID     string         `gorm:"size:64" json:"main_thread_id"`
	Comment1ThreadID string         `gorm:"size:64" json:"comment1_thread_id"`
	Comment2ThreadID string         `gorm:"size:64" json:"comment2_thread_id"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Validate checks the character ceiling on all three parts.
func (s *ScheduledPost) Validate() error {
	if s.MainText == "" {
		return errors.New("main text is required")
	}
	parts := map[string]string{
		"main text": s.MainText,
		"comment1":  s.Comment1,
		"comment2":  s.Comment2,
	}
	for name, text := range parts {
		if n := utf8.RuneCountInString(text); n > MaxPostLength {
			return fmt.Errorf("%s exceeds %d characters (%d)", name, MaxPostLength, n)
		}
	}
	return nil
}

// Due reports whether the post is claimable at the given instant.
func (s *ScheduledPost) Due(now time.Time) bool {
	return s.Status == ScheduleStatusScheduled && !s.ScheduledAt.After(now)
}

// StuckSince reports whether the post has sat in processing longer than
// the threshold, meaning a previous invocation died mid-chain.
func (s *ScheduledPost) StuckSince(now time.Time, threshold time.Duration) bool {
	return s.Status == ScheduleStatusProcessing && now.Sub(s.UpdatedAt) > threshold
}
