package orchestrator

import (
	"fmt"
	"regexp"
)

// Outline complexity indicators. Matches are substring counts, so "part"
// also counts inside "department"; the score is a rough heuristic.
var (
	scenePattern     = regexp.MustCompile(`(?i)scene|moment|sequence|vignette|chapter|part`)
	characterPattern = regexp.MustCompile(`(?i)character|protagonist|antagonist|dr\.|mr\.|ms\.|prof\.`)
	plotPattern      = regexp.MustCompile(`(?i)then|next|after|finally|revelation|twist|discovers|realizes`)
	detailPattern    = regexp.MustCompile(`(?i)page \d+|specifically|detailed|extensive|multiple`)
)

// complexityPerPage is the score budget for each target page.
const complexityPerPage = 5

// ScopeReport is the result of checking an outline against the page limit.
type ScopeReport struct {
	Score   float64
	Limit   int
	Fits    bool // false when the score exceeds 1.5x the limit
	Message string
}

// Ambitious reports whether the outline fits but is over the limit.
func (r ScopeReport) Ambitious() bool {
	return r.Fits && r.Score > float64(r.Limit)
}

// EvaluateScope scores an outline's complexity against pageLimit. The result
// is advisory only.
func EvaluateScope(outline string, pageLimit int) ScopeReport {
	count := func(re *regexp.Regexp) float64 {
		return float64(len(re.FindAllStringIndex(outline, -1)))
	}
	score := count(scenePattern) + count(characterPattern) + count(plotPattern)*0.5 + count(detailPattern)
	limit := pageLimit * complexityPerPage

	r := ScopeReport{Score: score, Limit: limit, Fits: true}
	switch {
	case score > float64(limit)*1.5:
		r.Fits = false
		r.Message = fmt.Sprintf("This outline appears too complex for %d pages (complexity score: %.1f, recommended max: %d)", pageLimit, score, limit)
	case score > float64(limit):
		r.Message = fmt.Sprintf("This outline is ambitious for %d pages - focus on the core elements during writing", pageLimit)
	default:
		r.Message = "Outline scope appears appropriate for the target length"
	}
	return r
}
