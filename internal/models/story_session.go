package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session status values. Status only moves from active to one of the
// terminal values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

// StorySession is one story-generation run and its durable state.
type StorySession struct {
	ID             string            `gorm:"primaryKey;size:36"`
	UserRef        string            `gorm:"size:64;not null;index"`
	Config         datatypes.JSONMap `gorm:"type:json"`
	Status         string            `gorm:"size:16;default:active;index"`
	CurrentVersion int               `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time `gorm:"not null;index"`

	Drafts   []SessionDraft   `gorm:"foreignKey:SessionID"`
	Messages []SessionMessage `gorm:"foreignKey:SessionID"`
}

// TableName maps StorySession to story_sessions.
func (StorySession) TableName() string { return "story_sessions" }

// Terminal reports whether the session can no longer change status.
func (s StorySession) Terminal() bool {
	return s.Status != StatusActive
}

// SessionDraft is one saved version of the story text. Versions start at 1
// and are never rewritten.
type SessionDraft struct {
	ID        uint              `gorm:"primaryKey;autoIncrement"`
	SessionID string            `gorm:"size:36;not null;uniqueIndex:idx_session_version"`
	Version   int               `gorm:"not null;uniqueIndex:idx_session_version"`
	Content   string            `gorm:"type:mediumtext;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:json"`
	CreatedAt time.Time
}

// TableName maps SessionDraft to session_drafts.
func (SessionDraft) TableName() string { return "session_drafts" }

// IsFinal reports whether the draft was saved on completion.
func (d SessionDraft) IsFinal() bool {
	v, ok := d.Metadata["is_final"].(bool)
	return ok && v
}

// SessionMessage is one completed conversation turn.
type SessionMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:36;not null;index:idx_session_turn"`
	Speaker   string `gorm:"size:32;not null"`
	Content   string `gorm:"type:mediumtext;not null"`
	Turn      int    `gorm:"not null;index:idx_session_turn"`
	Phase     string `gorm:"size:32"`
	CreatedAt time.Time
}

// TableName maps SessionMessage to session_messages.
func (SessionMessage) TableName() string { return "session_messages" }
