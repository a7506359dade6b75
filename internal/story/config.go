// Package story holds the story configuration and the marker-based draft
// extraction shared by the session store and the orchestrator.
package story

// Default sizing values.
const (
	DefaultPageLimit    = 3
	DefaultWordsPerPage = 300
	DefaultTheme        = "scp"
)

// Config describes the story a session should produce.
type Config struct {
	PageLimit    int            `json:"page_limit"`
	WordsPerPage int            `json:"words_per_page"`
	Theme        string         `json:"theme"`
	Protagonist  string         `json:"protagonist_name,omitempty"`
	Model        string         `json:"model,omitempty"`
	ThemeOptions map[string]any `json:"theme_options,omitempty"`
	// Error carries the failure reason once a session has failed.
	Error string `json:"error,omitempty"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.PageLimit <= 0 {
		c.PageLimit = DefaultPageLimit
	}
	if c.WordsPerPage <= 0 {
		c.WordsPerPage = DefaultWordsPerPage
	}
	if c.Theme == "" {
		c.Theme = DefaultTheme
	}
	return c
}

// TotalWords is the target length of the finished story.
func (c Config) TotalWords() int {
	return c.PageLimit * c.WordsPerPage
}

// ScopeGuidance describes the story scope that fits the page limit.
func (c Config) ScopeGuidance() string {
	switch {
	case c.PageLimit <= 3:
		return "a focused, single-scene story with minimal cast"
	case c.PageLimit <= 5:
		return "a story with 2-3 key scenes and small cast"
	case c.PageLimit <= 10:
		return "a multi-scene narrative with developed characters"
	default:
		return "a complex narrative with multiple plot threads"
	}
}

// Option returns a theme option as a string, or def when unset.
func (c Config) Option(key, def string) string {
	v, ok := c.ThemeOptions[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// CheckpointWords returns the word count of checkpoint 1 (33%) or 2 (66%).
func (c Config) CheckpointWords(n int) int {
	switch n {
	case 1:
		return int(float64(c.TotalWords()) * 0.33)
	case 2:
		return int(float64(c.TotalWords()) * 0.66)
	}
	return 0
}

// Level returns a numeric theme option clamped to 0..100, or def when unset.
// Options decoded from JSON arrive as float64.
func (c Config) Level(key string, def int) int {
	var n int
	switch v := c.ThemeOptions[key].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	default:
		return def
	}
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
