package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/role"
)

// fakeCompleter replays canned replies and records requests.
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []string
	chunks   []string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompleter) next(req openai.ChatCompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeCompleter) Complete(_ context.Context, req openai.ChatCompletionRequest) (string, error) {
	return f.next(req)
}

func (f *fakeCompleter) Stream(_ context.Context, req openai.ChatCompletionRequest, onChunk func(string)) (string, error) {
	if _, err := f.next(req); err != nil {
		return "", err
	}
	for _, c := range f.chunks {
		onChunk(c)
	}
	return strings.Join(f.chunks, ""), nil
}

type recordSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordSink) Emit(_ context.Context, ev progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestNewBuffered_Validation(t *testing.T) {
	fc := &fakeCompleter{}
	tests := []struct {
		name string
		opts Opts
	}{
		{"bad role", Opts{Role: "Editor", Model: "m", Completer: fc}},
		{"no completer", Opts{Role: role.Writer, Model: "m"}},
		{"no model", Opts{Role: role.Writer, Completer: fc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBuffered(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBufferedAgent_Respond(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"  Here is my outline. [@Reader]  \n"}}
	a, err := NewBuffered(Opts{Role: role.Writer, SystemPrompt: "You are the Writer.", Model: "test/model", Completer: fc})
	if err != nil {
		t.Fatal(err)
	}
	if a.Role() != role.Writer {
		t.Errorf("Role() = %s", a.Role())
	}

	got, err := a.Respond(context.Background(), TurnInput{Prompt: "Write an outline", Transcript: "(empty)", Turn: 1, Phase: "outline"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Here is my outline. [@Reader]" {
		t.Errorf("Respond = %q, want trimmed reply", got)
	}

	req := fc.requests[0]
	if req.Model != "test/model" || req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"Current discussion:\n(empty)", "Write an outline", "---BEGIN STORY---"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}

	hist := a.remembered()
	if len(hist) != 2 || hist[0].Content != "Write an outline" || hist[1].Content != got {
		t.Errorf("history = %+v", hist)
	}
}

func TestBufferedAgent_HistoryCap(t *testing.T) {
	fc := &fakeCompleter{}
	for i := 0; i < 15; i++ {
		fc.replies = append(fc.replies, fmt.Sprintf("reply %d", i))
	}
	a, _ := NewBuffered(Opts{Role: role.Reader, Model: "m", Completer: fc})
	for i := 0; i < 15; i++ {
		if _, err := a.Respond(context.Background(), TurnInput{Prompt: fmt.Sprintf("prompt %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	hist := a.remembered()
	if len(hist) != DefaultHistoryLimit {
		t.Fatalf("history len = %d, want %d", len(hist), DefaultHistoryLimit)
	}
	if hist[0].Content != "prompt 5" || hist[len(hist)-1].Content != "reply 14" {
		t.Errorf("history window = %q .. %q", hist[0].Content, hist[len(hist)-1].Content)
	}
	// system + 20 history + user
	last := fc.requests[len(fc.requests)-1]
	if len(last.Messages) != 1+DefaultHistoryLimit+1 {
		t.Errorf("last request has %d messages", len(last.Messages))
	}
}

func TestBufferedAgent_Error(t *testing.T) {
	boom := errors.New("upstream 502")
	a, _ := NewBuffered(Opts{Role: role.Expert, Model: "m", Completer: &fakeCompleter{err: boom}})
	_, err := a.Respond(context.Background(), TurnInput{Prompt: "review"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped upstream error", err)
	}
	if len(a.remembered()) != 0 {
		t.Error("failed turn must not be remembered")
	}
}

func TestBufferedAgent_EmptyReply(t *testing.T) {
	a, _ := NewBuffered(Opts{Role: role.Reader, Model: "m", Completer: &fakeCompleter{replies: []string{"   "}}})
	got, err := a.Respond(context.Background(), TurnInput{Prompt: "p"})
	if err != nil || got != "" {
		t.Errorf("Respond = %q, %v; want empty reply and no error", got, err)
	}
}

func TestStreamingAgent_EmitsChunks(t *testing.T) {
	fc := &fakeCompleter{chunks: []string{"Once ", "upon ", "a time. [@Reader]"}}
	sink := &recordSink{}
	a, err := NewStreaming(Opts{Role: role.Writer, Model: "m", Completer: fc, Sink: sink})
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.Respond(context.Background(), TurnInput{SessionID: "s1", Prompt: "go", Turn: 3, Phase: "writing"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Once upon a time. [@Reader]" {
		t.Errorf("Respond = %q", got)
	}
	if len(sink.events) != 3 {
		t.Fatalf("chunk events = %d, want 3", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Type != progress.Chunk || ev.SessionID != "s1" || ev.Speaker != "Writer" || ev.Turn != 3 || ev.Phase != "writing" || ev.Content != "Once " {
		t.Errorf("first chunk = %+v", ev)
	}
}

func TestNew_SelectsKind(t *testing.T) {
	opts := Opts{Role: role.Writer, Model: "m", Completer: &fakeCompleter{}}
	a, err := New(opts, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*StreamingAgent); !ok {
		t.Errorf("New(streaming) = %T", a)
	}
	b, _ := New(opts, false)
	if _, ok := b.(*BufferedAgent); !ok {
		t.Errorf("New(buffered) = %T", b)
	}
	if c, err := New(Opts{}, true); err == nil || c != nil {
		t.Errorf("New(invalid) = %v, %v; want nil agent and error", c, err)
	}
}
