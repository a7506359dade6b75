package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/plotcraft/internal/role"
)

// TurnRecord is the bookkeeping kept for one completed turn.
type TurnRecord struct {
	Turn     int
	Speaker  role.Role
	Phase    Phase
	Chars    int
	Duration time.Duration
}

// PhaseStat aggregates the turns spent in one phase.
type PhaseStat struct {
	Phase    Phase         `json:"phase"`
	Turns    int           `json:"turns"`
	Duration time.Duration `json:"duration"`
}

// SpeakerStat aggregates the turns taken by one speaker.
type SpeakerStat struct {
	Speaker  role.Role     `json:"speaker"`
	Turns    int           `json:"turns"`
	Duration time.Duration `json:"duration"`
}

// Average returns the mean turn duration.
func (s SpeakerStat) Average() time.Duration {
	if s.Turns == 0 {
		return 0
	}
	return s.Duration / time.Duration(s.Turns)
}

// Summary describes a finished run. Phases and Speakers keep first-seen order.
type Summary struct {
	Turns     int           `json:"turns"`
	Total     time.Duration `json:"total"`
	Phases    []PhaseStat   `json:"phases"`
	Speakers  []SpeakerStat `json:"speakers"`
	Outcome   Outcome       `json:"outcome"`
	Completed bool          `json:"completed"`
}

// Summarize aggregates turn records.
func Summarize(records []TurnRecord, outcome Outcome) Summary {
	s := Summary{Turns: len(records), Outcome: outcome, Completed: outcome == OutcomeCompleted}
	phaseIdx := map[Phase]int{}
	speakerIdx := map[role.Role]int{}
	for _, r := range records {
		s.Total += r.Duration

		i, ok := phaseIdx[r.Phase]
		if !ok {
			i = len(s.Phases)
			phaseIdx[r.Phase] = i
			s.Phases = append(s.Phases, PhaseStat{Phase: r.Phase})
		}
		s.Phases[i].Turns++
		s.Phases[i].Duration += r.Duration

		j, ok := speakerIdx[r.Speaker]
		if !ok {
			j = len(s.Speakers)
			speakerIdx[r.Speaker] = j
			s.Speakers = append(s.Speakers, SpeakerStat{Speaker: r.Speaker})
		}
		s.Speakers[j].Turns++
		s.Speakers[j].Duration += r.Duration
	}
	return s
}

// String renders the summary as a multi-line report.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total turns: %d\n", s.Turns)
	fmt.Fprintf(&b, "Total time: %s\n", s.Total.Round(100*time.Millisecond))
	if s.Turns > 0 {
		fmt.Fprintf(&b, "Average time per turn: %s\n", (s.Total / time.Duration(s.Turns)).Round(100*time.Millisecond))
	}
	if len(s.Phases) > 0 {
		b.WriteString("\nPhase breakdown:\n")
		for _, p := range s.Phases {
			fmt.Fprintf(&b, "  %s: %d turns, %s total\n", p.Phase, p.Turns, p.Duration.Round(100*time.Millisecond))
		}
	}
	if len(s.Speakers) > 0 {
		b.WriteString("\nSpeaker statistics:\n")
		for _, sp := range s.Speakers {
			fmt.Fprintf(&b, "  %s: %d turns, avg %s/turn\n", sp.Speaker, sp.Turns, sp.Average().Round(100*time.Millisecond))
		}
	}
	status := "IN PROGRESS"
	if s.Completed {
		status = "COMPLETED"
	}
	fmt.Fprintf(&b, "\nOutcome: %s\nStory status: %s\n", s.Outcome, status)
	return b.String()
}

// data flattens the summary for a progress event.
func (s Summary) data() map[string]any {
	phases := make(map[string]any, len(s.Phases))
	for _, p := range s.Phases {
		phases[string(p.Phase)] = map[string]any{"turns": p.Turns, "seconds": p.Duration.Seconds()}
	}
	speakers := make(map[string]any, len(s.Speakers))
	for _, sp := range s.Speakers {
		speakers[string(sp.Speaker)] = map[string]any{"turns": sp.Turns, "seconds": sp.Duration.Seconds()}
	}
	return map[string]any{
		"turns":         s.Turns,
		"total_seconds": s.Total.Seconds(),
		"outcome":       string(s.Outcome),
		"completed":     s.Completed,
		"phases":        phases,
		"speakers":      speakers,
	}
}
