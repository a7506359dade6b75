package orchestrator

import (
	"fmt"

	"github.com/zulandar/plotcraft/internal/directive"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/story"
)

// OpeningPrompt asks the Writer for the initial outline.
func OpeningPrompt(anomalyTerm string) string {
	if anomalyTerm == "" {
		anomalyTerm = "anomaly"
	}
	return fmt.Sprintf(`Please create a story outline including:
1. Core concept/%s
2. Main character(s)
3. Narrative arc (beginning, middle, end)
4. Key scenes or moments
5. How it will conclude

After sharing your outline, pass to [@Reader] for feedback.`, anomalyTerm)
}

func handoffPrompt(prev role.Role, response string) string {
	return fmt.Sprintf("%s said: %s\n\nPlease respond.", prev, response)
}

func writeFullStoryPrompt(totalWords int, prev role.Role, response string) string {
	return fmt.Sprintf(`The Reader has approved your outline!

Now write the complete story following these requirements:
1. Write the full story (~%d words)
2. MANDATORY: Wrap your story with these exact markers:
   %s
   [Your complete story here]
   %s
3. Include the ENTIRE story between the markers
4. The markers must be on their own lines with no extra spaces
5. Pass to [@Reader] when complete

%s said: %s`, totalWords, story.BeginMarker, story.EndMarker, prev, response)
}

func expertReviewPrompt(storyText string, prev role.Role, response string) string {
	return fmt.Sprintf(`The Writer and Reader have both approved the story.

You must now perform a MANDATORY FINAL TECHNICAL REVIEW before the story can be published.

Here is the complete story to review:

%s

Please carefully read the story above and check for:
- Spelling errors and typos (including joined words)
- Grammar and punctuation issues
- Formatting consistency
- Any technical errors that would detract from professional presentation

If you find ANY errors, list them specifically and send back to [@Writer].
If the story passes all technical checks, approve with: "%s"

%s said: %s`, story.Wrap(storyText), directive.ExpertApproval, prev, response)
}

func extractionMissPrompt(prev role.Role, response string) string {
	return fmt.Sprintf(`The Writer and Reader have both approved the story, but I cannot find the story content in the session.

Please check the conversation history and extract the latest story marked between %s and %s markers.

%s said: %s`, story.BeginMarker, story.EndMarker, prev, response)
}

func conflictPrompt(prev role.Role, response string) string {
	return fmt.Sprintf(`There appears to be a disagreement that needs resolution.

%s said: %s

Please review the discussion and make a balanced decision to move the project forward.`, prev, response)
}
