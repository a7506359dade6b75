// Package orchestrator drives the Writer, Reader and Expert through one story
// run: it picks the speaker for each turn, injects checkpoints, persists
// messages and drafts, and decides when the story is done.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/plotcraft/internal/agent"
	"github.com/zulandar/plotcraft/internal/checkpoint"
	"github.com/zulandar/plotcraft/internal/common/clock"
	"github.com/zulandar/plotcraft/internal/directive"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/story"
)

// Phase is a coarse label for where the conversation is. It is carried
// alongside the loop, not enforced as a strict state machine.
type Phase string

const (
	PhaseOutline      Phase = "outline"
	PhaseWriting      Phase = "writing"
	PhaseCheckpoint1  Phase = "checkpoint_1"
	PhaseCheckpoint2  Phase = "checkpoint_2"
	PhaseExpertReview Phase = "expert_review"
	PhaseCompleted    Phase = "completed"
)

// Outcome is how a run ended. OutcomeSignalled means the last speaker
// addressed nobody but declared the story finished without Expert approval.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeNaturalEnd   Outcome = "ended"
	OutcomeSignalled    Outcome = "signalled_complete"
	OutcomeExpired      Outcome = "session_expired"
	OutcomeTurnLimit    Outcome = "turn_limit_exceeded"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeFailed       Outcome = "failed"
)

// Defaults for run bounds.
const (
	DefaultMaxTurns    = 100
	DefaultTurnTimeout = 120 * time.Second
)

var (
	// ErrTurnTimeout means a generation call exceeded the per-turn bound.
	ErrTurnTimeout = errors.New("orchestrator: turn timed out")
	// ErrDisconnected means the run context was cancelled; observed between turns.
	ErrDisconnected = errors.New("orchestrator: client disconnected")
	// ErrUnknownSpeaker means the next speaker has no agent.
	ErrUnknownSpeaker = errors.New("orchestrator: unknown speaker")
)

// Store is the part of the session store a run needs.
type Store interface {
	SaveMessage(ctx context.Context, id, speaker, text string, turn int, phase string) error
	SaveDraft(ctx context.Context, id, text string, metadata map[string]any) (int, error)
	CurrentWordCount(id string) int
	ExtractStory(id string) (string, bool)
	Complete(ctx context.Context, id, finalText string) error
}

// Result describes a finished run.
type Result struct {
	SessionID string
	Outcome   Outcome
	Completed bool
	Turns     int
	Phase     Phase
	Summary   Summary
}

// Opts holds parameters for creating an Orchestrator.
type Opts struct {
	SessionID string
	Store     Store
	Agents    []agent.Agent
	Config    story.Config
	// AnomalyTerm is the theme's word for the story's central hook.
	AnomalyTerm         string
	Sink                progress.Sink
	Clock               clock.Clock
	MaxTurns            int           // defaults to DefaultMaxTurns
	TurnTimeout         time.Duration // defaults to DefaultTurnTimeout
	CheckpointTolerance int           // defaults to checkpoint.DefaultTolerance
	// Deadline is when the session expires. No turn starts unless it can
	// finish before then. Zero means no deadline.
	Deadline time.Time
}

type transcriptEntry struct {
	speaker role.Role
	turn    int
	text    string
}

// Orchestrator runs a single story conversation. It is not reusable.
type Orchestrator struct {
	sessionID   string
	store       Store
	agents      map[role.Role]agent.Agent
	known       []role.Role
	policy      *checkpoint.Policy
	cfg         story.Config
	anomalyTerm string
	sink        progress.Sink
	clock       clock.Clock
	maxTurns    int
	turnTimeout time.Duration
	deadline    time.Time

	phase             Phase
	outlineIterations int
	transcript        []transcriptEntry
	records           []TurnRecord
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("orchestrator: session id is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	cfg := opts.Config.WithDefaults()
	policy, err := checkpoint.NewPolicy(checkpoint.Opts{
		PageLimit:    cfg.PageLimit,
		WordsPerPage: cfg.WordsPerPage,
		Tolerance:    opts.CheckpointTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o := &Orchestrator{
		sessionID:   opts.SessionID,
		store:       opts.Store,
		agents:      make(map[role.Role]agent.Agent, len(opts.Agents)),
		policy:      policy,
		cfg:         cfg,
		anomalyTerm: opts.AnomalyTerm,
		sink:        opts.Sink,
		clock:       opts.Clock,
		maxTurns:    opts.MaxTurns,
		turnTimeout: opts.TurnTimeout,
		deadline:    opts.Deadline,
	}
	for _, a := range opts.Agents {
		if a == nil {
			continue
		}
		if _, dup := o.agents[a.Role()]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate agent for %s", a.Role())
		}
		o.agents[a.Role()] = a
	}
	// Known speakers keep routing priority order.
	for _, r := range role.All() {
		if _, ok := o.agents[r]; ok {
			o.known = append(o.known, r)
		}
	}
	if _, ok := o.agents[role.Writer]; !ok {
		return nil, fmt.Errorf("orchestrator: a %s agent is required", role.Writer)
	}
	if o.sink == nil {
		o.sink = progress.Discard
	}
	if o.clock == nil {
		o.clock = clock.DefaultClock{}
	}
	if o.maxTurns <= 0 {
		o.maxTurns = DefaultMaxTurns
	}
	if o.turnTimeout <= 0 {
		o.turnTimeout = DefaultTurnTimeout
	}
	log.Printf("orchestrator: %s targets %d words, checkpoints at %d and %d",
		o.sessionID, cfg.TotalWords(), policy.Threshold(checkpoint.First), policy.Threshold(checkpoint.Second))
	return o, nil
}

// Phase returns the current phase label.
func (o *Orchestrator) Phase() Phase { return o.phase }

// Records returns the per-turn bookkeeping collected so far.
func (o *Orchestrator) Records() []TurnRecord {
	return append([]TurnRecord(nil), o.records...)
}

func (o *Orchestrator) emit(ctx context.Context, ev progress.Event) {
	ev.SessionID = o.sessionID
	if ev.Time.IsZero() {
		ev.Time = o.clock.Now()
	}
	if err := o.sink.Emit(ctx, ev); err != nil {
		log.Printf("orchestrator: %s: emit %s: %v", o.sessionID, ev.Type, err)
	}
}

func (o *Orchestrator) setPhase(ctx context.Context, p Phase) {
	if o.phase == p {
		return
	}
	log.Printf("orchestrator: %s phase %s -> %s", o.sessionID, o.phase, p)
	o.phase = p
	o.emit(ctx, progress.Event{Type: progress.PhaseChange, Phase: string(p)})
}

func (o *Orchestrator) transcriptText() string {
	if len(o.transcript) == 0 {
		return "(no discussion yet)"
	}
	var b strings.Builder
	for _, e := range o.transcript {
		fmt.Fprintf(&b, "## [%s] - turn %d\n%s\n---\n", e.speaker, e.turn, e.text)
	}
	return b.String()
}

// generate calls the agent under the per-turn timeout. The call context is
// detached from run cancellation so a disconnect never interrupts a turn.
func (o *Orchestrator) generate(ctx context.Context, a agent.Agent, in agent.TurnInput) (string, error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := a.Respond(tctx, in)
		done <- reply{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return "", ErrTurnTimeout
		}
		return r.text, r.err
	case <-tctx.Done():
		return "", ErrTurnTimeout
	}
}

// Run drives the conversation until the story completes, no speaker is
// addressed, the turn limit is reached, or a fatal error occurs. A summary
// event is always emitted on exit.
//
// Cancelling ctx is treated as a client disconnect: the in-flight turn is
// finished and persisted, then Run returns ErrDisconnected.
func (o *Orchestrator) Run(ctx context.Context) (res *Result, err error) {
	// Persistence and events outlive a disconnect.
	bg := context.WithoutCancel(ctx)
	res = &Result{SessionID: o.sessionID}

	defer func() {
		res.Turns = len(o.records)
		res.Phase = o.phase
		res.Completed = res.Outcome == OutcomeCompleted
		res.Summary = Summarize(o.records, res.Outcome)
		log.Printf("orchestrator: %s ended after %d turns (%s)", o.sessionID, res.Turns, res.Outcome)
		o.emit(bg, progress.Event{
			Type:    progress.Summary,
			Phase:   string(o.phase),
			Content: res.Summary.String(),
			Data:    res.Summary.data(),
		})
	}()

	speaker := role.Writer
	prompt := OpeningPrompt(o.anomalyTerm)
	o.setPhase(bg, PhaseOutline)

	for turn := 1; turn <= o.maxTurns; turn++ {
		if ctx.Err() != nil {
			res.Outcome = OutcomeDisconnected
			return res, fmt.Errorf("orchestrator: %s before turn %d: %w", o.sessionID, turn, ErrDisconnected)
		}
		if !o.deadline.IsZero() && o.clock.Now().Add(o.turnTimeout).After(o.deadline) {
			log.Printf("orchestrator: %s expires at %s, not starting turn %d", o.sessionID, o.deadline.Format(time.RFC3339), turn)
			res.Outcome = OutcomeExpired
			return res, nil
		}

		// 1. A due checkpoint replaces the Writer's turn with a Reader review.
		var cp *checkpoint.Checkpoint
		if speaker == role.Writer {
			if c, ok := o.policy.Evaluate(o.store.CurrentWordCount(o.sessionID)); ok {
				cp = c
				prompt = c.Instruction
				speaker = role.Reader
				o.setPhase(bg, Phase(c.Stage.Name()))
				o.emit(bg, progress.Event{
					Type:    progress.Checkpoint,
					Turn:    turn,
					Phase:   c.Stage.Name(),
					Content: c.Instruction,
					Data:    map[string]any{"word_count": c.WordCount, "threshold": c.Threshold},
				})
			}
		}

		a, ok := o.agents[speaker]
		if !ok {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("orchestrator: turn %d: %w: %s", turn, ErrUnknownSpeaker, speaker)
		}

		// 2. Generate under the timeout.
		phase := o.phase
		o.emit(bg, progress.Event{Type: progress.TurnStart, Speaker: string(speaker), Turn: turn, Phase: string(phase)})
		started := o.clock.Now()
		text, genErr := o.generate(ctx, a, agent.TurnInput{
			SessionID:  o.sessionID,
			Prompt:     prompt,
			Transcript: o.transcriptText(),
			Turn:       turn,
			Phase:      string(phase),
		})
		elapsed := o.clock.Now().Sub(started)
		if genErr != nil {
			if errors.Is(genErr, ErrTurnTimeout) {
				log.Printf("orchestrator: %s turn %d: %s timed out after %s", o.sessionID, turn, speaker, o.turnTimeout)
				res.Outcome = OutcomeTimeout
				return res, fmt.Errorf("orchestrator: turn %d: %s: %w", turn, speaker, ErrTurnTimeout)
			}
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("orchestrator: turn %d: %s: %w", turn, speaker, genErr)
		}
		log.Printf("orchestrator: %s turn %d: %s responded in %.1fs", o.sessionID, turn, speaker, elapsed.Seconds())

		// 3. Persist the message, and a draft when both markers are present.
		if err := o.store.SaveMessage(bg, o.sessionID, string(speaker), text, turn, string(phase)); err != nil {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("orchestrator: turn %d: %w", turn, err)
		}
		o.records = append(o.records, TurnRecord{Turn: turn, Speaker: speaker, Phase: phase, Chars: len(text), Duration: elapsed})
		if text != "" {
			o.transcript = append(o.transcript, transcriptEntry{speaker: speaker, turn: turn, text: text})
		}
		if err := o.saveDraft(bg, speaker, text, turn, phase); err != nil {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("orchestrator: turn %d: %w", turn, err)
		}
		o.emit(bg, progress.Event{
			Type:    progress.TurnEnd,
			Speaker: string(speaker),
			Turn:    turn,
			Phase:   string(phase),
			Content: text,
			Data:    map[string]any{"elapsed_ms": elapsed.Milliseconds()},
		})

		// 4-5. Approvals, outline tracking and conflicts.
		var (
			forced          role.Role
			readerApproved  bool
			outlineApproved bool
			conflict        bool
			completed       bool
		)
		approved := directive.IsApproved(text, speaker)

		if o.phase == PhaseOutline {
			if speaker == role.Writer && strings.Contains(strings.ToLower(text), "outline") {
				o.outlineIterations++
				if o.outlineIterations == 1 {
					o.checkScope(bg, text, turn)
				}
			}
			if speaker == role.Reader && directive.ApprovesOutline(text) {
				log.Printf("orchestrator: %s outline approved by %s", o.sessionID, speaker)
				outlineApproved = true
				o.setPhase(bg, PhaseWriting)
			}
		} else if speaker == role.Reader && approved {
			log.Printf("orchestrator: %s %s approved, moving to technical review", o.sessionID, speaker)
			readerApproved = true
			forced = role.Expert
			o.setPhase(bg, PhaseExpertReview)
		}

		if speaker == role.Expert && approved {
			done, err := o.complete(bg, turn)
			if err != nil {
				res.Outcome = OutcomeFailed
				return res, err
			}
			completed = done
		}
		if completed {
			res.Outcome = OutcomeCompleted
			return res, nil
		}

		if forced == "" && speaker != role.Expert && directive.HasConflict(text) {
			if _, ok := o.agents[role.Expert]; ok {
				log.Printf("orchestrator: %s conflict raised by %s, bringing in %s", o.sessionID, speaker, role.Expert)
				conflict = true
				forced = role.Expert
			}
		}

		// Checkpoint phases are transient.
		if cp != nil && o.phase == Phase(cp.Stage.Name()) {
			o.setPhase(bg, PhaseWriting)
		}

		// 6. Next speaker.
		next := forced
		if next == "" {
			r, ok := directive.ParseNextSpeaker(text, o.known)
			if !ok {
				if directive.IsComplete(text) {
					log.Printf("orchestrator: %s %s signalled the story complete", o.sessionID, speaker)
					res.Outcome = OutcomeSignalled
					return res, nil
				}
				log.Printf("orchestrator: %s no next speaker indicated by %s, ending", o.sessionID, speaker)
				res.Outcome = OutcomeNaturalEnd
				return res, nil
			}
			next = r
		}
		if next == speaker {
			next = role.Fallback(speaker)
			log.Printf("orchestrator: %s %s tried to speak again, handing to %s", o.sessionID, speaker, next)
		}

		// 7. Next prompt.
		switch {
		case next == role.Expert && readerApproved:
			if storyText, ok := o.store.ExtractStory(o.sessionID); ok {
				prompt = expertReviewPrompt(storyText, speaker, text)
			} else {
				log.Printf("orchestrator: %s could not extract story for technical review", o.sessionID)
				prompt = extractionMissPrompt(speaker, text)
			}
		case next == role.Expert:
			if !conflict {
				log.Printf("orchestrator: %s %s addressed %s directly", o.sessionID, speaker, next)
			}
			prompt = conflictPrompt(speaker, text)
		case next == role.Writer && outlineApproved:
			prompt = writeFullStoryPrompt(o.cfg.TotalWords(), speaker, text)
		default:
			prompt = handoffPrompt(speaker, text)
		}
		speaker = next
	}

	log.Printf("orchestrator: %s reached the turn limit (%d)", o.sessionID, o.maxTurns)
	res.Outcome = OutcomeTurnLimit
	return res, nil
}

func (o *Orchestrator) saveDraft(ctx context.Context, speaker role.Role, text string, turn int, phase Phase) error {
	begin, end := story.HasMarkers(text)
	switch {
	case begin && end:
		version, err := o.store.SaveDraft(ctx, o.sessionID, text, map[string]any{
			"agent": string(speaker),
			"phase": string(phase),
			"turn":  turn,
		})
		if err != nil {
			return err
		}
		words := o.store.CurrentWordCount(o.sessionID)
		log.Printf("orchestrator: %s draft v%d saved (turn %d, %d words)", o.sessionID, version, turn, words)
		o.emit(ctx, progress.Event{
			Type:    progress.DraftSaved,
			Speaker: string(speaker),
			Turn:    turn,
			Phase:   string(phase),
			Data:    map[string]any{"version": version, "word_count": words},
		})
	case begin:
		log.Printf("orchestrator: %s draft not saved: missing %s marker (turn %d)", o.sessionID, story.EndMarker, turn)
	case end:
		log.Printf("orchestrator: %s draft not saved: missing %s marker (turn %d)", o.sessionID, story.BeginMarker, turn)
	case speaker == role.Writer && phase == PhaseWriting:
		log.Printf("orchestrator: %s draft not saved: writer produced no story markers (turn %d)", o.sessionID, turn)
	}
	return nil
}

func (o *Orchestrator) checkScope(ctx context.Context, outline string, turn int) {
	report := EvaluateScope(outline, o.cfg.PageLimit)
	if report.Fits && !report.Ambitious() {
		return
	}
	log.Printf("orchestrator: %s outline scope: %s", o.sessionID, report.Message)
	if report.Fits {
		return
	}
	o.emit(ctx, progress.Event{
		Type:    progress.Advisory,
		Turn:    turn,
		Phase:   string(o.phase),
		Content: report.Message + "\nPlease simplify the outline to fit the target length.",
		Data:    map[string]any{"score": report.Score, "limit": report.Limit},
	})
}

// complete finalizes the session after an Expert approval. A missing draft is
// logged and the run continues.
func (o *Orchestrator) complete(ctx context.Context, turn int) (bool, error) {
	storyText, ok := o.store.ExtractStory(o.sessionID)
	if !ok {
		log.Printf("orchestrator: %s expert approved but no story could be extracted (turn %d)", o.sessionID, turn)
		return false, nil
	}
	if err := o.store.Complete(ctx, o.sessionID, storyText); err != nil {
		return false, fmt.Errorf("orchestrator: turn %d: %w", turn, err)
	}
	o.setPhase(ctx, PhaseCompleted)
	o.emit(ctx, progress.Event{
		Type:    progress.Completed,
		Turn:    turn,
		Phase:   string(PhaseCompleted),
		Content: storyText,
		Data:    map[string]any{"word_count": story.WordCount(storyText)},
	})
	return true, nil
}
