package directive

import (
	"testing"

	"github.com/zulandar/plotcraft/internal/role"
)

func TestParseNextSpeaker(t *testing.T) {
	known := role.All()
	tests := []struct {
		name   string
		text   string
		want   role.Role
		wantOK bool
	}{
		{"bracket at", "Outline attached. [@Reader]", role.Reader, true},
		{"next tag", "Done here. [Next: Expert]", role.Expert, true},
		{"turn tag", "[Writer's turn]", role.Writer, true},
		{"bare at", "Over to @expert for a ruling", role.Expert, true},
		{"case insensitive", "[@READER]", role.Reader, true},
		{"partial name", "[@Read]", role.Reader, true},
		{"longer name", "[@WriterBot]", role.Writer, true},
		{"pattern priority beats position", "@Expert, thoughts? [@Writer]", role.Writer, true},
		{"unknown falls through", "[@Editor] [Next: Reader]", role.Reader, true},
		{"nothing", "No handoff here.", "", false},
		{"unknown only", "[@Publisher]", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNextSpeaker(tt.text, known)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseNextSpeaker(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolve_ExactBeforeFuzzy(t *testing.T) {
	known := []role.Role{"Leader", "Reader"}
	got, ok := Resolve("reader", known)
	if !ok || got != "Reader" {
		t.Errorf("Resolve(reader) = (%q, %v), want exact match Reader", got, ok)
	}
	got, ok = Resolve("eader", known)
	if !ok || got != "Leader" {
		t.Errorf("Resolve(eader) = (%q, %v), want first fuzzy match Leader", got, ok)
	}
}

func TestResolve_Empty(t *testing.T) {
	if _, ok := Resolve("  ", role.All()); ok {
		t.Error("blank name should not resolve")
	}
}
