// Package progress carries structured run events from the orchestrator to
// whatever is watching: an SSE stream, Redis, chat channels or the log.
package progress

import (
	"context"
	"errors"
	"log"
	"time"
)

// Type names an event.
type Type string

const (
	PhaseChange Type = "phase_change"
	TurnStart   Type = "turn_start"
	TurnEnd     Type = "turn_end"
	Chunk       Type = "chunk"
	DraftSaved  Type = "draft_saved"
	Checkpoint  Type = "checkpoint"
	Advisory    Type = "advisory"
	Completed   Type = "completed"
	Failed      Type = "failed"
	Summary     Type = "summary"
)

// Terminal reports whether t ends a run.
func (t Type) Terminal() bool {
	return t == Completed || t == Failed
}

// Event is one progress notification.
type Event struct {
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq,omitempty"`
	Speaker   string         `json:"speaker,omitempty"`
	Turn      int            `json:"turn,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Content   string         `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// Sink accepts events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans events out to every sink. A failing sink does not stop the
// others; all failures are returned joined.
type Multi []Sink

// Emit sends ev to each sink in order.
func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events as log lines. Chunks are skipped.
type LogSink struct{}

// Emit logs ev.
func (LogSink) Emit(_ context.Context, ev Event) error {
	switch ev.Type {
	case Chunk:
		return nil
	case TurnStart:
		log.Printf("progress: %s turn %d: %s speaking (phase=%s)", short(ev.SessionID), ev.Turn, ev.Speaker, ev.Phase)
	case TurnEnd:
		log.Printf("progress: %s turn %d: %s done (%d chars)", short(ev.SessionID), ev.Turn, ev.Speaker, len(ev.Content))
	case PhaseChange:
		log.Printf("progress: %s phase -> %s", short(ev.SessionID), ev.Phase)
	default:
		if ev.Content != "" {
			log.Printf("progress: %s %s: %s", short(ev.SessionID), ev.Type, ev.Content)
		} else {
			log.Printf("progress: %s %s", short(ev.SessionID), ev.Type)
		}
	}
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
