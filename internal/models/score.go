package models

import (
	"time"
)

// TemplateScore is one appended snapshot of a template's performance,
// recomputed by the sweep that runs after each dispatcher invocation.
type TemplateScore struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TemplateID       string    `gorm:"index;not null;size:64" json:"template_id"`
	GeneratedAt      time.Time `gorm:"index;not null" json:"generated_at"`
	ImpressionAvg72h float64   `gorm:"default:0" json:"impression_avg_72h"`
	LikeAvg72h       float64   `gorm:"default:0" json:"like_avg_72h"`
	PostCount        int       `gorm:"default:0" json:"post_count"`
	Status           string    `gorm:"size:50;default:'calculated'" json:"status"`
	Notes            string    `gorm:"size:255" json:"notes"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PostMetric holds per-post engagement numbers ingested by the external
// analytics sync. The score sweep only reads it.
type PostMetric struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PostID           string    `gorm:"uniqueIndex;not null;size:64" json:"post_id"`
	ImpressionsTotal int64     `gorm:"default:0" json:"impressions_total"`
	LikesTotal       int64     `gorm:"default:0" json:"likes_total"`
	SyncedAt         time.Time `json:"synced_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
