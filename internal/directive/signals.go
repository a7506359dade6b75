// Package directive interprets the free-text conventions agents use to
// steer the conversation: addressing the next speaker, approving a story,
// declaring completion, and escalating a disagreement.
//
// Everything here is best-effort pattern matching. A miss means "no state
// change" and is never an error.
package directive

import (
	"strings"

	"github.com/zulandar/plotcraft/internal/role"
)

// Phrase lists are matched case-insensitively as substrings. The exact
// wording is what the theme prompts instruct agents to write.
var (
	completionSignals = []string{
		"[STORY COMPLETE]",
		"[END]",
		"[FINISHED]",
		"story is complete and satisfying",
	}

	approvalPhrases = []string{
		"I APPROVE this story",
		"I APPROVE the story",
		"story is approved",
		"I approve this story",
		"I approve the story",
	}

	conflictIndicators = []string{
		"strongly disagree",
		"major concern",
		"fundamental issue",
		"cannot accept",
		"this won't work",
		"completely wrong direction",
	}

	outlineApprovalPhrases = []string{
		"approved",
		"i approve",
	}
)

// TechnicalReviewPhrase must accompany an Expert approval.
const TechnicalReviewPhrase = "technical review passed"

// ExpertApproval is the sentence the Expert is told to use.
const ExpertApproval = "I APPROVE this story as Expert - technical review passed"

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// IsComplete reports whether text carries a completion signal.
func IsComplete(text string) bool {
	return containsAny(text, completionSignals)
}

// IsApproved reports whether speaker approved the story in text. The Expert
// must also confirm the technical review.
func IsApproved(text string, speaker role.Role) bool {
	if !containsAny(text, approvalPhrases) {
		return false
	}
	if speaker == role.Expert {
		return strings.Contains(strings.ToLower(text), TechnicalReviewPhrase)
	}
	return true
}

// HasConflict reports whether text signals a disagreement strong enough to
// bring in the Expert.
func HasConflict(text string) bool {
	return containsAny(text, conflictIndicators)
}

// ApprovesOutline reports the looser acceptance used while the outline is
// being negotiated.
func ApprovesOutline(text string) bool {
	return containsAny(text, outlineApprovalPhrases)
}
