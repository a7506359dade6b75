package directive

import (
	"regexp"
	"strings"

	"github.com/zulandar/plotcraft/internal/role"
)

// addressPatterns are tried in priority order.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[@(\w+)\]`),
	regexp.MustCompile(`(?i)\[Next:\s*(\w+)\]`),
	regexp.MustCompile(`(?i)\[(\w+)'s turn\]`),
	regexp.MustCompile(`(?i)@(\w+)`),
}

// ParseNextSpeaker finds the speaker text hands off to. Patterns are tried in
// priority order; within a pattern the first occurrence is used. The captured
// name resolves against known by exact case-insensitive match first, then by
// substring containment in either direction. A capture that resolves to no
// known speaker falls through to the next pattern.
func ParseNextSpeaker(text string, known []role.Role) (role.Role, bool) {
	for _, re := range addressPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if r, ok := Resolve(m[1], known); ok {
			return r, true
		}
	}
	return "", false
}

// Resolve matches a captured name against known speakers.
func Resolve(name string, known []role.Role) (role.Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	for _, k := range known {
		if strings.ToLower(string(k)) == name {
			return k, true
		}
	}
	for _, k := range known {
		id := strings.ToLower(string(k))
		if strings.Contains(id, name) || strings.Contains(name, id) {
			return k, true
		}
	}
	return "", false
}
