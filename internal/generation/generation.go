// Package generation wires a story request to a session, three agents and an
// orchestrated run, and records the run's failure when it does not complete.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/plotcraft/internal/agent"
	"github.com/zulandar/plotcraft/internal/common/clock"
	"github.com/zulandar/plotcraft/internal/config"
	"github.com/zulandar/plotcraft/internal/orchestrator"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/session"
	"github.com/zulandar/plotcraft/internal/story"
	"github.com/zulandar/plotcraft/internal/theme"
)

// ErrInvalidRequest means the request cannot start a run.
var ErrInvalidRequest = errors.New("generation: invalid request")

// Request describes the story a caller wants.
type Request struct {
	User         string         `json:"user"`
	Request      string         `json:"request"`
	Pages        int            `json:"pages"`
	Protagonist  string         `json:"protagonist"`
	Model        string         `json:"model"`
	Theme        string         `json:"theme"`
	ThemeOptions map[string]any `json:"theme_options"`
}

// Opts holds parameters for creating a Service.
type Opts struct {
	Store        *session.Store
	Completer    agent.Completer
	Generation   config.GenerationConfig
	Conversation config.ConversationConfig
	// Sink receives every run's events in addition to the per-run sink.
	Sink  progress.Sink
	Clock clock.Clock
}

// Service starts and tracks story runs.
type Service struct {
	store     *session.Store
	completer agent.Completer
	gen       config.GenerationConfig
	conv      config.ConversationConfig
	sink      progress.Sink
	clock     clock.Clock

	mu      sync.Mutex
	running map[string]struct{}
}

// New creates a Service.
func New(opts Opts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("generation: store is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("generation: completer is required")
	}
	s := &Service{
		store:     opts.Store,
		completer: opts.Completer,
		gen:       opts.Generation,
		conv:      opts.Conversation,
		sink:      opts.Sink,
		clock:     opts.Clock,
		running:   make(map[string]struct{}),
	}
	if s.sink == nil {
		s.sink = progress.Discard
	}
	if s.clock == nil {
		s.clock = clock.DefaultClock{}
	}
	return s, nil
}

// Running returns the number of in-flight runs.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// StoryConfig resolves req against the configured defaults.
func (s *Service) StoryConfig(req Request) (story.Config, error) {
	if strings.TrimSpace(req.Request) == "" {
		return story.Config{}, fmt.Errorf("%w: request text is required", ErrInvalidRequest)
	}
	if req.Pages < 0 {
		return story.Config{}, fmt.Errorf("%w: pages must not be negative", ErrInvalidRequest)
	}
	cfg := story.Config{
		PageLimit:    req.Pages,
		WordsPerPage: s.conv.WordsPerPage,
		Theme:        req.Theme,
		Protagonist:  strings.TrimSpace(req.Protagonist),
		Model:        req.Model,
		ThemeOptions: req.ThemeOptions,
	}
	if cfg.PageLimit == 0 {
		cfg.PageLimit = s.conv.DefaultPages
	}
	if cfg.Theme == "" {
		cfg.Theme = s.conv.DefaultTheme
	}
	if cfg.Model == "" {
		cfg.Model = s.gen.Model
	}
	cfg = cfg.WithDefaults()
	if _, ok := theme.Lookup(cfg.Theme); !ok {
		return story.Config{}, fmt.Errorf("%w: unknown theme %q", ErrInvalidRequest, cfg.Theme)
	}
	if cfg.Model == "" {
		return story.Config{}, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	return cfg, nil
}

func (s *Service) buildAgents(req Request, cfg story.Config, th *theme.Descriptor, sink progress.Sink) ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, len(role.All()))
	for _, r := range role.All() {
		a, err := agent.New(agent.Opts{
			Role:         r,
			SystemPrompt: th.Prompt(r, req.Request, cfg),
			Model:        cfg.Model,
			Temperature:  s.gen.Temperature,
			MaxTokens:    s.gen.MaxTokens,
			HistoryLimit: s.gen.HistoryLimit,
			Completer:    s.completer,
			Sink:         sink,
		}, s.gen.StreamingEnabled())
		if err != nil {
			return nil, fmt.Errorf("generation: build %s: %w", r, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// Start creates a session for req and runs the conversation to the end.
// Events go to the service sink and to sink. Any run that does not complete
// (error, natural end, turn limit, disconnect) is marked failed and a failed
// event is emitted.
func (s *Service) Start(ctx context.Context, req Request, sink progress.Sink) (*orchestrator.Result, error) {
	cfg, err := s.StoryConfig(req)
	if err != nil {
		return nil, err
	}
	th := theme.Get(cfg.Theme)

	id, err := s.store.Create(ctx, req.User, cfg)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	log.Printf("generation: session %s started (theme=%s pages=%d model=%s)", id, cfg.Theme, cfg.PageLimit, cfg.Model)

	var deadline time.Time
	if sess, ok := s.store.Get(id); ok {
		deadline = sess.ExpiresAt
	}
	runSink := progress.Multi{s.sink, sink}
	bg := context.WithoutCancel(ctx)

	agents, err := s.buildAgents(req, cfg, th, runSink)
	if err != nil {
		s.fail(bg, id, runSink, orchestrator.OutcomeFailed, err.Error())
		return nil, err
	}
	orch, err := orchestrator.New(orchestrator.Opts{
		SessionID:           id,
		Store:               s.store,
		Agents:              agents,
		Config:              cfg,
		AnomalyTerm:         th.AnomalyTerm,
		Sink:                runSink,
		Clock:               s.clock,
		MaxTurns:            s.conv.MaxTurns,
		TurnTimeout:         s.conv.TurnTimeout,
		CheckpointTolerance: s.conv.CheckpointTolerance,
		Deadline:            deadline,
	})
	if err != nil {
		s.fail(bg, id, runSink, orchestrator.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("generation: %w", err)
	}

	s.mu.Lock()
	s.running[id] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	res, runErr := orch.Run(ctx)
	switch {
	case runErr != nil:
		s.fail(bg, id, runSink, res.Outcome, runErr.Error())
		return res, fmt.Errorf("generation: %w", runErr)
	case res.Outcome == orchestrator.OutcomeSignalled:
		s.finishSignalled(bg, id, runSink, res)
	case !res.Completed:
		s.fail(bg, id, runSink, res.Outcome, fmt.Sprintf("story not approved (%s after %d turns)", res.Outcome, res.Turns))
	}
	return res, nil
}

// finishSignalled completes a run that ended on a completion signal with the
// latest extracted draft. Without a draft there is nothing to keep, so the
// session is failed with its own reason.
func (s *Service) finishSignalled(ctx context.Context, id string, sink progress.Sink, res *orchestrator.Result) {
	text, ok := s.store.ExtractStory(id)
	if !ok {
		s.fail(ctx, id, sink, res.Outcome, fmt.Sprintf("completion signalled without a story draft (after %d turns)", res.Turns))
		return
	}
	if err := s.store.Complete(ctx, id, text); err != nil {
		s.fail(ctx, id, sink, orchestrator.OutcomeFailed, fmt.Sprintf("complete signalled story: %v", err))
		return
	}
	res.Completed = true
	res.Phase = orchestrator.PhaseCompleted
	log.Printf("generation: session %s completed on a completion signal (%d words)", id, story.WordCount(text))
	ev := progress.Event{
		Type:      progress.Completed,
		SessionID: id,
		Turn:      res.Turns,
		Phase:     string(orchestrator.PhaseCompleted),
		Content:   text,
		Data: map[string]any{
			"word_count": story.WordCount(text),
			"outcome":    string(res.Outcome),
		},
		Time: s.clock.Now(),
	}
	if err := sink.Emit(ctx, ev); err != nil {
		log.Printf("generation: session %s: emit completed: %v", id, err)
	}
}

// fail records a failed run. Errors are logged, not returned, so they never
// mask the run's own outcome.
func (s *Service) fail(ctx context.Context, id string, sink progress.Sink, outcome orchestrator.Outcome, reason string) {
	log.Printf("generation: session %s failed: %s", id, reason)
	if err := s.store.Fail(ctx, id, reason); err != nil {
		log.Printf("generation: session %s: record failure: %v", id, err)
	}
	ev := progress.Event{
		Type:      progress.Failed,
		SessionID: id,
		Content:   reason,
		Data:      map[string]any{"outcome": string(outcome)},
		Time:      s.clock.Now(),
	}
	if err := sink.Emit(ctx, ev); err != nil {
		log.Printf("generation: session %s: emit failed: %v", id, err)
	}
}

// Resume returns a session by id from the cache, or from durable storage when
// it is no longer cached.
func (s *Service) Resume(ctx context.Context, id string) (session.Session, error) {
	if sess, ok := s.store.Get(id); ok {
		return sess, nil
	}
	sess, err := s.store.Recover(ctx, id)
	if err != nil {
		return session.Session{}, fmt.Errorf("generation: resume %s: %w", id, err)
	}
	return sess, nil
}
