package theme

import (
	"strings"
	"testing"

	"github.com/zulandar/plotcraft/internal/directive"
	"github.com/zulandar/plotcraft/internal/role"
	"github.com/zulandar/plotcraft/internal/story"
)

func TestRegistry_Complete(t *testing.T) {
	want := []string{"cyberpunk", "fantasy", "noir", "romance", "scifi", "scp"}
	got := IDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	for _, id := range got {
		d, ok := Lookup(id)
		if !ok {
			t.Fatalf("Lookup(%q) failed", id)
		}
		if d.ID != id {
			t.Errorf("descriptor %q has ID %q", id, d.ID)
		}
		if d.AnomalyTerm == "" || d.Name == "" || d.Motto == "" {
			t.Errorf("descriptor %q missing fields: %+v", id, d)
		}
		for _, r := range role.All() {
			if d.Persona(r).Title == "" {
				t.Errorf("descriptor %q has no persona for %s", id, r)
			}
		}
		for _, dial := range d.Dials {
			if len(dial.Bands) == 0 || dial.Bands[len(dial.Bands)-1].Max != 100 {
				t.Errorf("%s dial %s must end its bands at 100", id, dial.Key)
			}
		}
	}
}

func TestGet_FallsBackToDefault(t *testing.T) {
	if Get("western").ID != DefaultID {
		t.Error("unknown theme should fall back to the default")
	}
	if _, ok := Lookup("western"); ok {
		t.Error("Lookup should not find unknown themes")
	}
	if Get("noir").ID != "noir" {
		t.Error("Get(noir) returned the wrong theme")
	}
}

func TestDial_Guidance(t *testing.T) {
	d := Get("scp").Dials[0]
	tests := []struct {
		level int
		want  string
	}{
		{0, "mild"},
		{25, "mild"},
		{26, "moderate"},
		{76, "extreme"},
		{150, "extreme"},
	}
	for _, tt := range tests {
		if got := d.Guidance(tt.level); !strings.Contains(got, tt.want) {
			t.Errorf("Guidance(%d) = %q, want to contain %q", tt.level, got, tt.want)
		}
	}
	if (Dial{}).Guidance(10) != "" {
		t.Error("dial without bands should give empty guidance")
	}
}

func TestWriterPrompt(t *testing.T) {
	cfg := story.Config{PageLimit: 3, WordsPerPage: 300, Protagonist: "Agent Okafor",
		ThemeOptions: map[string]any{"horrorLevel": float64(90)}}
	p := Get("scp").WriterPrompt("a library whose books rewrite themselves", cfg)

	for _, want := range []string{
		"a library whose books rewrite themselves",
		"3 pages (~900 words)",
		"Protagonist name: Agent Okafor",
		"extreme cosmic horror",
		story.BeginMarker,
		story.EndMarker,
		"a focused, single-scene story with minimal cast",
		"[@Reader]",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("writer prompt missing %q", want)
		}
	}
}

func TestWriterPrompt_NoProtagonist(t *testing.T) {
	p := Get("noir").WriterPrompt("a missing jazz singer", story.Config{PageLimit: 5, WordsPerPage: 300})
	if strings.Contains(p, "Protagonist name") {
		t.Error("prompt should omit the protagonist line when unset")
	}
	if !strings.Contains(p, "Private Eye") {
		t.Error("prompt should use the noir persona")
	}
}

func TestExpertPrompt_ApprovalSentence(t *testing.T) {
	for _, id := range IDs() {
		p := Get(id).Prompt(role.Expert, "req", story.Config{PageLimit: 3, WordsPerPage: 300})
		if !strings.Contains(p, directive.ExpertApproval) {
			t.Errorf("%s expert prompt missing the approval sentence", id)
		}
		if !strings.Contains(p, "~900 words") {
			t.Errorf("%s expert prompt missing the word target", id)
		}
	}
}

func TestReaderPrompt(t *testing.T) {
	p := Get("romance").Prompt(role.Reader, "two rival bakers", story.Config{PageLimit: 2, WordsPerPage: 250})
	for _, want := range []string{"Romantic Soul", "two rival bakers", "~500 words", "I APPROVE this story", "[@Expert]"} {
		if !strings.Contains(p, want) {
			t.Errorf("reader prompt missing %q", want)
		}
	}
}
