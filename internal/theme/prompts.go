package theme

import (
	"fmt"
	"strings"

	"github.com/zulandar/plotcraft/internal/directive"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/story"
)

// Prompt returns the system prompt for r.
func (d *Descriptor) Prompt(r role.Role, request string, cfg story.Config) string {
	switch r {
	case role.Reader:
		return d.ReaderPrompt(request, cfg)
	case role.Expert:
		return d.ExpertPrompt(request, cfg)
	default:
		return d.WriterPrompt(request, cfg)
	}
}

func (d *Descriptor) dialLines(cfg story.Config) []string {
	lines := make([]string, 0, len(d.Dials))
	for _, dial := range d.Dials {
		level := cfg.Level(dial.Key, dial.Default)
		lines = append(lines, fmt.Sprintf("- %s (%d%%): %s", dial.Label, level, dial.Guidance(level)))
	}
	return lines
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// WriterPrompt builds the Writer's system prompt.
func (d *Descriptor) WriterPrompt(request string, cfg story.Config) string {
	p := d.Persona(role.Writer)
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. Your job: %s. Voice: %s.\n\n", p.Title, p.Duty, p.Voice)
	fmt.Fprintf(&b, "Story request: %s\n", request)
	fmt.Fprintf(&b, "Target length: %d pages (~%d words)\n", cfg.PageLimit, cfg.TotalWords())
	if cfg.Protagonist != "" {
		fmt.Fprintf(&b, "Protagonist name: %s\n", cfg.Protagonist)
	}
	fmt.Fprintf(&b, "Format: %s\n\n", d.Format)
	if len(d.Dials) > 0 {
		b.WriteString("Theme settings:\n")
		b.WriteString(strings.Join(d.dialLines(cfg), "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Your approach:\n")
	b.WriteString(bullets(d.Approach))
	b.WriteString("\n\n")
	b.WriteString(d.Motto)
	b.WriteString(writerAddendum(cfg))
	return b.String()
}

// ReaderPrompt builds the Reader's system prompt.
func (d *Descriptor) ReaderPrompt(request string, cfg story.Config) string {
	p := d.Persona(role.Reader)
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. Your job: %s. Voice: %s.\n\n", p.Title, p.Duty, p.Voice)
	fmt.Fprintf(&b, "Story under review: %s\n", request)
	fmt.Fprintf(&b, "Expected length: %d pages (~%d words)\n\n", cfg.PageLimit, cfg.TotalWords())
	if len(d.Dials) > 0 {
		b.WriteString("User preferences (respect these while demanding excellence):\n")
		b.WriteString(strings.Join(d.dialLines(cfg), "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("What makes the story work:\n")
	b.WriteString(bullets(d.Criteria))
	fmt.Fprintf(&b, `

Review protocol:
1. Review drafts shared between %s and %s markers
2. Count the words (skip the markers); the story needs ~%d words
3. If it is under 85%% of the target, send it back to [@Writer]
4. When the outline works, say "I approve" the outline and hand to [@Writer]
5. When the finished story meets every criterion, state "I APPROVE this story" and immediately call [@Expert] for the technical review

Communication:
- Use [@Writer] for feedback and revision requests
- Use [@Expert] for fundamental disagreements or final sign-off`, story.BeginMarker, story.EndMarker, cfg.TotalWords())
	b.WriteString(readerAddendum)
	return b.String()
}

// ExpertPrompt builds the Expert's system prompt.
func (d *Descriptor) ExpertPrompt(request string, cfg story.Config) string {
	p := d.Persona(role.Expert)
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. Your job: %s. Voice: %s.\n\n", p.Title, p.Duty, p.Voice)
	fmt.Fprintf(&b, "Story project: %s\n\n", request)
	if len(d.Dials) > 0 {
		b.WriteString("Quality standards from the user's settings:\n")
		b.WriteString(strings.Join(d.dialLines(cfg), "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(`Your roles:
1. Conflict resolution: intervene only when called via [@Expert], make a balanced decision and move the project forward.
2. Final quality assurance: after Writer and Reader approve, perform the technical review below.

Communication:
- Direct [@Writer] or [@Reader] on next steps`)
	b.WriteString(expertAddendum(cfg))
	return b.String()
}

func writerAddendum(cfg story.Config) string {
	return fmt.Sprintf(`

Character creation:
- Create unique character names for each story; avoid overused defaults like "Dr. Chen"
- Draw names from diverse cultural backgrounds and vary roles beyond "Dr." or "Researcher"

Story writing process:

PHASE 1 - OUTLINE ONLY:
- When asked for an outline, share only your outline
- Do not write the full story yet and do not use story markers for outlines
- Pass to [@Reader] for feedback on your outline

PHASE 2 - STORY WRITING (after Reader approval):
- The Reader will explicitly say "approved" or "I approve" your outline
- Only then write your complete story wrapped in these exact markers:
   %s
   [Your complete story here]
   %s
- Put each marker on its own line
- The story is NOT saved without both markers
- When revising, always include the complete story with markers; never just describe changes

Scope guidance:
Your story should be %s. Create an outline that can realistically fit within %d words.

Write like a human:
1. Let your perspective show
2. Cut the filler ("Firstly," "Furthermore," "It is important to note")
3. Vary sentence rhythm; fragments are fine
4. Use active, concrete verbs
5. Show, don't tell
6. Use contractions and natural language
7. Trust the reader; don't over-explain
8. End honestly, without canned conclusions
Avoid LLM-isms like "X wasn't just Y. It was Z.", "But here's the thing:", "Little did they know" and rhetorical questions answered immediately.

Communication:
- Always indicate who should respond next using [@Reader] or [@Expert]
- Use [@Reader] for normal feedback cycles
- Use [@Expert] only for a fundamental disagreement

Start by creating an outline appropriate for %d pages, then wait for Reader feedback before writing.`,
		story.BeginMarker, story.EndMarker, cfg.ScopeGuidance(), cfg.TotalWords(), cfg.PageLimit)
}

const readerAddendum = `

Human writing standards. Flag and reject:
- Stock AI phrases: "Furthermore," "It is important to note," "In conclusion"
- Perfectly balanced structures and predictable patterns
- Excessive passive voice or academic hedging
- Robotic transitions and over-explanation
- LLM-isms: "X wasn't just Y. It was Z.", "But here's the thing:", "Little did they know"
- Constructions that sacrifice clarity for style
Encourage natural voice, varied rhythm, concrete detail and the "friend-sent-this" feel.
Suggest alternatives when character names repeat across stories.`

func expertAddendum(cfg story.Config) string {
	return fmt.Sprintf(`

Technical quality assurance (mandatory):
- After Writer and Reader both approve, you MUST perform a final technical review
- Check spelling and typos (including joined words), grammar, punctuation and formatting
- Check tense and subject-verb agreement
- Verify the word count: the story must be ~%d words; under 85%% is a critical issue
- Check that it sounds human: no stock transitions, symmetrical structures, hedging or LLM-isms
- Flag sentences that need re-reading to understand
- If you find ANY issue, list it specifically with a suggested rewrite and send the story back to [@Writer]
- Do not approve until every issue is fixed
- Only approve with: "%s"`, cfg.TotalWords(), directive.ExpertApproval)
}
