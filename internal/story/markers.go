package story

import (
	"regexp"
	"strings"
)

// Marker literals delimiting the authoritative story text.
const (
	BeginMarker = "---BEGIN STORY---"
	EndMarker   = "---END STORY---"
)

// storyPattern matches a marker pair where each marker sits alone on its
// line. Non-greedy so consecutive pairs stay separate.
var storyPattern = regexp.MustCompile(`(?ms)^[ \t]*` + regexp.QuoteMeta(BeginMarker) + `[ \t\r]*$(.*?)^[ \t]*` + regexp.QuoteMeta(EndMarker) + `[ \t\r]*$`)

// Extract returns the trimmed text of the last complete marker pair in text.
// ok is false when no complete pair exists.
func Extract(text string) (string, bool) {
	matches := storyPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

// HasMarkers reports whether each marker literal appears anywhere in text.
func HasMarkers(text string) (begin, end bool) {
	return strings.Contains(text, BeginMarker), strings.Contains(text, EndMarker)
}

// Wrap places body between marker lines.
func Wrap(body string) string {
	return BeginMarker + "\n" + strings.TrimSpace(body) + "\n" + EndMarker
}

// WordCount splits on whitespace.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
