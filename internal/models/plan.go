package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// MaxPostLength is the platform's per-post character ceiling. It applies
// to the main text and to every comment, counted in runes.
const MaxPostLength = 500

// Plan statuses
const (
	PlanStatusDraft     = "draft"
	PlanStatusApproved  = "approved"
	PlanStatusScheduled = "scheduled"
	PlanStatusPosted    = "posted"
	PlanStatusRejected  = "rejected"
)

// PlanComment is one follow-up reply, posted in ascending Order under the
// previous item of the chain.
type PlanComment struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// CommentList is stored as a JSON array in a single text column.
type CommentList []PlanComment

// Scan implements the sql.Scanner interface
func (c *CommentList) Scan(value interface{}) error {
	if value == nil {
		*c = CommentList{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*c = CommentList{}
			return nil
		}
		return json.Unmarshal([]byte(v), c)
	case []byte:
		if len(v) == 0 {
			*c = CommentList{}
			return nil
		}
		return json.Unmarshal(v, c)
	default:
		return fmt.Errorf("cannot scan %T into CommentList", value)
	}
}

// Value implements the driver.Valuer interface
func (c CommentList) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Sorted returns the comments in ascending order without mutating the list.
func (c CommentList) Sorted() []PlanComment {
	out := make([]PlanComment, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

type Plan struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	PlanID         string         `gorm:"uniqueIndex;not null;size:64" json:"plan_id"`
	GenerationDate time.Time      `gorm:"type:date;index;not null" json:"generation_date"`
	ScheduledTime  string         `gorm:"size:5;default:'07:00'" json:"scheduled_time"` // HH:mm, local day
	TemplateID     string         `gorm:"size:64;index" json:"template_id"`
	Theme          string         `gorm:"size:255" json:"theme"`
	Status         string         `gorm:"size:50;default:'draft';index" json:"status"`
	MainText       string         `gorm:"type:text" json:"main_text"`
	Comments       CommentList    `gorm:"type:text" json:"comments"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Validate checks the character ceiling on the main text and on every
// comment. It must pass before any transition that leads to publishing.
func (p *Plan) Validate() error {
	if p.MainText == "" {
		return errors.New("main text is required")
	}
	if n := utf8.RuneCountInString(p.MainText); n > MaxPostLength {
		return fmt.Errorf("main text exceeds %d characters (%d)", MaxPostLength, n)
	}
	for _, comment := range p.Comments {
		if n := utf8.RuneCountInString(comment.Text); n > MaxPostLength {
			return fmt.Errorf("comment %d exceeds %d characters (%d)", comment.Order, MaxPostLength, n)
		}
	}
	return nil
}

var planTransitions = map[string][]string{
	PlanStatusDraft:     {PlanStatusApproved, PlanStatusRejected},
	PlanStatusApproved:  {PlanStatusScheduled, PlanStatusRejected, PlanStatusApproved},
	PlanStatusScheduled: {PlanStatusPosted, PlanStatusRejected},
	PlanStatusPosted:    {},
	PlanStatusRejected:  {},
}

// CanTransition reports whether the plan may move to the given status.
// Re-approving an already approved plan is allowed as the recovery path
// after a failed job.
func (p *Plan) CanTransition(status string) bool {
	for _, next := range planTransitions[p.Status] {
		if next == status {
			return true
		}
	}
	return false
}
