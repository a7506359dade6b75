// Package checkpoint decides when the Writer should be paused for an interim
// review, based on the running word count of the current draft.
package checkpoint

import (
	"fmt"
	"log"
)

// DefaultTolerance is the width, in words, of the window around a threshold
// inside which a draft counts as having reached it.
const DefaultTolerance = 50

// Threshold ratios of the target word count.
const (
	firstRatio  = 0.33
	secondRatio = 0.66
)

// Stage identifies a checkpoint.
type Stage int

const (
	First  Stage = 1
	Second Stage = 2
)

// Name returns the checkpoint flag name.
func (s Stage) Name() string {
	return fmt.Sprintf("checkpoint_%d", int(s))
}

// Checkpoint is a fired review milestone.
type Checkpoint struct {
	Stage       Stage
	WordCount   int
	Threshold   int
	Instruction string
}

type threshold struct {
	stage Stage
	words int
	fired bool
}

// Policy tracks the two word-count thresholds for a single run. A Policy
// must not be shared between runs.
type Policy struct {
	targetWords  int
	wordsPerPage int
	pageLimit    int
	tolerance    int
	thresholds   [2]threshold
}

// Opts holds parameters for creating a Policy.
type Opts struct {
	PageLimit    int
	WordsPerPage int
	Tolerance    int // defaults to DefaultTolerance
}

// NewPolicy creates a Policy targeting PageLimit*WordsPerPage words.
func NewPolicy(opts Opts) (*Policy, error) {
	if opts.PageLimit <= 0 {
		return nil, fmt.Errorf("checkpoint: page limit must be positive")
	}
	if opts.WordsPerPage <= 0 {
		return nil, fmt.Errorf("checkpoint: words per page must be positive")
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	target := opts.PageLimit * opts.WordsPerPage
	return &Policy{
		targetWords:  target,
		wordsPerPage: opts.WordsPerPage,
		pageLimit:    opts.PageLimit,
		tolerance:    tol,
		thresholds: [2]threshold{
			{stage: First, words: int(float64(target) * firstRatio)},
			{stage: Second, words: int(float64(target) * secondRatio)},
		},
	}, nil
}

// Threshold returns the word count at which stage fires.
func (p *Policy) Threshold(s Stage) int {
	return p.thresholds[int(s)-1].words
}

// Fired reports whether stage has already fired.
func (p *Policy) Fired(s Stage) bool {
	return p.thresholds[int(s)-1].fired
}

// Due returns the earliest unfired stage that wordCount has reached, without
// marking it. A count reaches a threshold once it is inside the tolerance
// window below it or anywhere above it.
func (p *Policy) Due(wordCount int) (Stage, bool) {
	for _, th := range p.thresholds {
		if th.fired {
			continue
		}
		if wordCount >= th.words-p.tolerance/2 {
			return th.stage, true
		}
		// Thresholds are ordered; a later one cannot be reached first.
		return 0, false
	}
	return 0, false
}

// Evaluate fires the earliest due stage and returns its review instruction.
// A stage fires at most once; ok is false when nothing is due.
func (p *Policy) Evaluate(wordCount int) (*Checkpoint, bool) {
	stage, ok := p.Due(wordCount)
	if !ok {
		return nil, false
	}
	th := &p.thresholds[int(stage)-1]
	th.fired = true

	log.Printf("checkpoint: %s fired at %d words (threshold %d)", stage.Name(), wordCount, th.words)
	return &Checkpoint{
		Stage:       stage,
		WordCount:   wordCount,
		Threshold:   th.words,
		Instruction: p.instruction(stage, wordCount),
	}, true
}

func (p *Policy) instruction(s Stage, wordCount int) string {
	pagesDone := float64(wordCount) / float64(p.wordsPerPage)
	if s == First {
		return fmt.Sprintf(`[CHECKPOINT] You've reached approximately %.1f pages (%d words).

Writer: Please pause your writing.
[@Reader]: Please review the story so far and provide feedback on:
- Engagement and atmosphere
- Pacing and flow
- Any concerns or suggestions for the remaining %.1f pages`,
			pagesDone, wordCount, float64(p.pageLimit)-pagesDone)
	}

	remaining := p.targetWords - wordCount
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf(`[CRITICAL CHECKPOINT] You've reached approximately %.1f pages (%d words).

Writer: Please pause your writing.
[@Reader]: This is critical - please evaluate:
- Can the story reach a satisfying conclusion in ~%d words?
- What plot threads need resolution?
- Is the pacing appropriate for a strong ending?
- Specific suggestions for the conclusion`,
		pagesDone, wordCount, remaining)
}
