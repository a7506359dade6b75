// Package notify posts run milestones (checkpoints, completion, failure) to
// chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/plotcraft/internal/progress"
)

// Color constants for notice severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// maxBodyLen caps the body text; chat platforms reject long messages.
const maxBodyLen = 1500

// Notice is a chat-ready rendering of a progress event.
type Notice struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string
	Fields   []Field
}

// Field is a key-value pair shown alongside a notice.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Notifier delivers notices to one chat platform.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notice) error
}

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Format renders ev as a Notice. ok is false for event types that are not
// worth a chat message.
func Format(ev progress.Event) (Notice, bool) {
	var n Notice
	switch ev.Type {
	case progress.Checkpoint:
		n = Notice{
			Title:    fmt.Sprintf("Story %s reached %s", short(ev.SessionID), ev.Phase),
			Body:     ev.Content,
			Severity: "info",
		}
	case progress.Completed:
		n = Notice{
			Title:    fmt.Sprintf("Story %s completed", short(ev.SessionID)),
			Body:     ev.Content,
			Severity: "success",
		}
	case progress.Failed:
		n = Notice{
			Title:    fmt.Sprintf("Story %s failed", short(ev.SessionID)),
			Body:     ev.Content,
			Severity: "error",
		}
	default:
		return Notice{}, false
	}
	n.Color = severityColor(n.Severity)
	n.Body = truncate(n.Body, maxBodyLen)
	n.Fields = append(n.Fields, Field{Name: "Session", Value: ev.SessionID, Short: true})
	if ev.Turn > 0 {
		n.Fields = append(n.Fields, Field{Name: "Turn", Value: fmt.Sprint(ev.Turn), Short: true})
	}
	for _, key := range []string{"word_count", "outcome", "theme"} {
		if v, ok := ev.Data[key]; ok {
			n.Fields = append(n.Fields, Field{Name: fieldName(key), Value: fmt.Sprint(v), Short: true})
		}
	}
	return n, true
}

func fieldName(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Sink is a progress.Sink that forwards notable events to notifiers.
type Sink struct {
	notifiers []Notifier
}

// NewSink creates a Sink. Nil notifiers are ignored.
func NewSink(notifiers ...Notifier) *Sink {
	s := &Sink{}
	for _, n := range notifiers {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
	return s
}

// Len returns the number of configured notifiers.
func (s *Sink) Len() int { return len(s.notifiers) }

// Emit sends ev to every notifier. Failures are logged and returned joined;
// one failing platform does not block the others.
func (s *Sink) Emit(ctx context.Context, ev progress.Event) error {
	n, ok := Format(ev)
	if !ok {
		return nil
	}
	var errs []error
	for _, nt := range s.notifiers {
		if err := nt.Send(ctx, n); err != nil {
			log.Printf("notify: %s: %v", nt.Name(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
