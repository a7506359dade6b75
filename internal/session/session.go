// Package session persists story sessions, their drafts and their messages,
// and keeps active sessions in an in-memory cache for the running
// conversation.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/plotcraft/internal/models"
	"github.com/zulandar/plotcraft/internal/story"
	"gorm.io/datatypes"
)

var (
	// ErrNotFound means the session is not cached (or, for Recover, not
	// durably stored or already expired).
	ErrNotFound = errors.New("session: not found")
	// ErrStorage wraps every backing-store failure.
	ErrStorage = errors.New("session: storage failure")
	// ErrNotActive means the session already reached a terminal status.
	ErrNotActive = errors.New("session: not active")
)

// Session is a point-in-time copy of a cached session. Mutating it has no
// effect on the store.
type Session struct {
	ID             string
	UserRef        string
	Config         story.Config
	Status         string
	CurrentVersion int
	CurrentDraft   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
	Drafts         []Draft
	Messages       []Message
}

// Draft is one saved version of the story text. Final marks the draft
// saved on completion.
type Draft struct {
	Version   int
	Content   string
	Metadata  map[string]any
	Final     bool
	CreatedAt time.Time
}

// Message is one completed conversation turn.
type Message struct {
	Speaker   string
	Content   string
	Turn      int
	Phase     string
	CreatedAt time.Time
}

// Story extracts the authoritative story from the current draft.
func (s Session) Story() (string, bool) {
	return story.Extract(s.CurrentDraft)
}

func (s Session) clone() Session {
	out := s
	out.Drafts = make([]Draft, len(s.Drafts))
	for i, d := range s.Drafts {
		d.Metadata = copyMeta(d.Metadata)
		out.Drafts[i] = d
	}
	out.Messages = append([]Message(nil), s.Messages...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Config.ThemeOptions != nil {
		opts := make(map[string]any, len(s.Config.ThemeOptions))
		for k, v := range s.Config.ThemeOptions {
			opts[k] = v
		}
		out.Config.ThemeOptions = opts
	}
	return out
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// configToMap converts a story config into its stored JSON column.
func configToMap(c story.Config) (datatypes.JSONMap, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("session: encode config: %w", err)
	}
	var m datatypes.JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("session: encode config: %w", err)
	}
	return m, nil
}

// mapToConfig decodes a stored JSON column back into a story config.
func mapToConfig(m datatypes.JSONMap) (story.Config, error) {
	var c story.Config
	if len(m) == 0 {
		return c, nil
	}
	data, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return c, fmt.Errorf("session: decode config: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("session: decode config: %w", err)
	}
	return c, nil
}

// fromModel builds a Session from a row with preloaded drafts and messages.
func fromModel(row *models.StorySession) (Session, error) {
	cfg, err := mapToConfig(row.Config)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		ID:             row.ID,
		UserRef:        row.UserRef,
		Config:         cfg,
		Status:         row.Status,
		CurrentVersion: row.CurrentVersion,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		CompletedAt:    row.CompletedAt,
		ExpiresAt:      row.ExpiresAt,
	}
	for _, d := range row.Drafts {
		s.Drafts = append(s.Drafts, Draft{
			Version:   d.Version,
			Content:   d.Content,
			Metadata:  copyMeta(d.Metadata),
			Final:     d.IsFinal(),
			CreatedAt: d.CreatedAt,
		})
	}
	for _, m := range row.Messages {
		s.Messages = append(s.Messages, Message{
			Speaker:   m.Speaker,
			Content:   m.Content,
			Turn:      m.Turn,
			Phase:     m.Phase,
			CreatedAt: m.CreatedAt,
		})
	}
	// The draft list is authoritative for the version counter.
	if n := len(s.Drafts); n > 0 {
		s.CurrentVersion = s.Drafts[n-1].Version
		s.CurrentDraft = s.Drafts[n-1].Content
	}
	return s, nil
}
