package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/plotcraft/internal/progress"
)

type mockNotifier struct {
	mu   sync.Mutex
	name string
	err  error
	sent []Notice
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(_ context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func TestFormat_Skips(t *testing.T) {
	for _, typ := range []progress.Type{progress.Chunk, progress.TurnStart, progress.TurnEnd, progress.DraftSaved, progress.PhaseChange} {
		if _, ok := Format(progress.Event{Type: typ}); ok {
			t.Errorf("Format(%s) should be skipped", typ)
		}
	}
}

func TestFormat_Completed(t *testing.T) {
	n, ok := Format(progress.Event{
		Type:      progress.Completed,
		SessionID: "0123456789abcdef",
		Turn:      12,
		Content:   "The story is done.",
		Data:      map[string]any{"word_count": 910},
	})
	if !ok {
		t.Fatal("completed should format")
	}
	if n.Title != "Story 01234567 completed" {
		t.Errorf("Title = %q", n.Title)
	}
	if n.Severity != "success" || n.Color != ColorSuccess {
		t.Errorf("severity = %s color = %s", n.Severity, n.Color)
	}
	want := map[string]string{"Session": "0123456789abcdef", "Turn": "12", "Word Count": "910"}
	for _, f := range n.Fields {
		if v, ok := want[f.Name]; ok && v == f.Value {
			delete(want, f.Name)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing fields %v in %+v", want, n.Fields)
	}
}

func TestFormat_FailedAndCheckpoint(t *testing.T) {
	n, _ := Format(progress.Event{Type: progress.Failed, SessionID: "s1", Content: "turn timeout"})
	if n.Color != ColorError || !strings.Contains(n.Title, "failed") {
		t.Errorf("failed notice = %+v", n)
	}
	n, _ = Format(progress.Event{Type: progress.Checkpoint, SessionID: "s1", Phase: "checkpoint_1"})
	if n.Color != ColorInfo || !strings.Contains(n.Title, "checkpoint_1") {
		t.Errorf("checkpoint notice = %+v", n)
	}
}

func TestFormat_TruncatesBody(t *testing.T) {
	n, _ := Format(progress.Event{Type: progress.Failed, Content: strings.Repeat("x", 5000)})
	if len(n.Body) != maxBodyLen+3 {
		t.Errorf("body len = %d", len(n.Body))
	}
}

func TestSink_Emit(t *testing.T) {
	good := &mockNotifier{name: "good"}
	bad := &mockNotifier{name: "bad", err: errors.New("channel_not_found")}
	s := NewSink(bad, nil, good)
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}

	if err := s.Emit(context.Background(), progress.Event{Type: progress.Chunk}); err != nil {
		t.Errorf("chunk: %v", err)
	}
	err := s.Emit(context.Background(), progress.Event{Type: progress.Completed, SessionID: "s1"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("err = %v", err)
	}
	if len(good.sent) != 1 {
		t.Errorf("good notifier got %d notices, want 1", len(good.sent))
	}
}
