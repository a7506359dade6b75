// Package agent implements the role-played conversation participants on top
// of an OpenAI-compatible chat completion API.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/story"
)

// Defaults for generation requests.
const (
	DefaultHistoryLimit = 20 // 10 exchanges
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 4000
)

// TurnInput is everything an agent needs to take one turn.
type TurnInput struct {
	SessionID  string
	Prompt     string
	Transcript string
	Turn       int
	Phase      string
}

// Agent produces one response per turn.
type Agent interface {
	Role() role.Role
	Respond(ctx context.Context, in TurnInput) (string, error)
}

// Opts holds parameters for creating an agent.
type Opts struct {
	Role         role.Role
	SystemPrompt string
	Model        string
	Temperature  float32 // defaults to DefaultTemperature
	MaxTokens    int     // defaults to DefaultMaxTokens
	HistoryLimit int     // defaults to DefaultHistoryLimit
	Completer    Completer
	// Sink receives chunk events from streaming agents.
	Sink progress.Sink
}

// base holds the state shared by both agent kinds: the system prompt and
// a rolling window of the agent's own exchanges.
type base struct {
	role         role.Role
	system       string
	model        string
	temperature  float32
	maxTokens    int
	historyLimit int
	completer    Completer

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func newBase(opts Opts) (*base, error) {
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("agent: unknown role %q", opts.Role)
	}
	if opts.Completer == nil {
		return nil, errors.New("agent: completer is required")
	}
	if opts.Model == "" {
		return nil, errors.New("agent: model is required")
	}
	b := &base{
		role:         opts.Role,
		system:       opts.SystemPrompt,
		model:        opts.Model,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		historyLimit: opts.HistoryLimit,
		completer:    opts.Completer,
	}
	if b.temperature == 0 {
		b.temperature = DefaultTemperature
	}
	if b.maxTokens <= 0 {
		b.maxTokens = DefaultMaxTokens
	}
	if b.historyLimit <= 0 {
		b.historyLimit = DefaultHistoryLimit
	}
	return b, nil
}

// Role returns the role the agent plays.
func (b *base) Role() role.Role { return b.role }

// userMessage frames the shared transcript and the triggering prompt.
func userMessage(in TurnInput) string {
	return fmt.Sprintf(`Current discussion:
%s

The latest message triggering your response:
%s

Based on your role and the current context, provide an appropriate response.
Remember to include the complete story text when sharing drafts or revisions.
Use %s and %s markers when sharing story content.`,
		in.Transcript, in.Prompt, story.BeginMarker, story.EndMarker)
}

func (b *base) request(in TurnInput) openai.ChatCompletionRequest {
	b.mu.Lock()
	msgs := make([]openai.ChatCompletionMessage, 0, len(b.history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.system})
	msgs = append(msgs, b.history...)
	b.mu.Unlock()
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage(in)})

	return openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    msgs,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}
}

// remember records an exchange and trims history to the limit.
func (b *base) remember(prompt, reply string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append([]openai.ChatCompletionMessage(nil), b.history[over:]...)
	}
}

// remembered returns a copy of the agent's stored exchanges.
func (b *base) remembered() []openai.ChatCompletionMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), b.history...)
}

// BufferedAgent waits for the whole completion.
type BufferedAgent struct {
	*base
}

// NewBuffered creates a BufferedAgent.
func NewBuffered(opts Opts) (*BufferedAgent, error) {
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &BufferedAgent{base: b}, nil
}

// Respond generates the agent's reply for one turn.
func (a *BufferedAgent) Respond(ctx context.Context, in TurnInput) (string, error) {
	text, err := a.completer.Complete(ctx, a.request(in))
	if err != nil {
		return "", fmt.Errorf("agent: %s: %w", a.role, err)
	}
	text = strings.TrimSpace(text)
	a.remember(in.Prompt, text)
	log.Printf("agent: %s generated %d chars (turn %d)", a.role, len(text), in.Turn)
	return text, nil
}

// StreamingAgent forwards each fragment to its sink as a chunk event while
// the completion is generated.
type StreamingAgent struct {
	*base
	sink progress.Sink
}

// NewStreaming creates a StreamingAgent.
func NewStreaming(opts Opts) (*StreamingAgent, error) {
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	sink := opts.Sink
	if sink == nil {
		sink = progress.Discard
	}
	return &StreamingAgent{base: b, sink: sink}, nil
}

// Respond generates the agent's reply for one turn, streaming chunks.
func (a *StreamingAgent) Respond(ctx context.Context, in TurnInput) (string, error) {
	onChunk := func(text string) {
		ev := progress.Event{
			Type:      progress.Chunk,
			SessionID: in.SessionID,
			Speaker:   string(a.role),
			Turn:      in.Turn,
			Phase:     in.Phase,
			Content:   text,
		}
		if err := a.sink.Emit(ctx, ev); err != nil {
			log.Printf("agent: %s chunk: %v", a.role, err)
		}
	}
	text, err := a.completer.Stream(ctx, a.request(in), onChunk)
	if err != nil {
		return "", fmt.Errorf("agent: %s: %w", a.role, err)
	}
	text = strings.TrimSpace(text)
	a.remember(in.Prompt, text)
	log.Printf("agent: %s streamed %d chars (turn %d)", a.role, len(text), in.Turn)
	return text, nil
}

// New creates a streaming or buffered agent.
func New(opts Opts, streaming bool) (Agent, error) {
	if streaming {
		a, err := NewStreaming(opts)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	a, err := NewBuffered(opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}
