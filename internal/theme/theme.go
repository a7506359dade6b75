// Package theme holds the closed table of story themes and builds the
// role prompts for each of them.
package theme

import (
	"sort"

	"github.com/zulandar/plotcraft/internal/role"
)

// Persona is the character an agent plays within a theme.
type Persona struct {
	Title string // e.g. "Private Eye"
	Duty  string
	Voice string
}

// Band maps a dial value range (inclusive upper bound) to prompt guidance.
type Band struct {
	Max  int
	Text string
}

// Dial is a 0..100 theme option that shapes the prompts.
type Dial struct {
	Key     string
	Label   string
	Default int
	Bands   []Band
}

// Guidance returns the band text for level. Bands are ordered by Max.
func (d Dial) Guidance(level int) string {
	for _, b := range d.Bands {
		if level <= b.Max {
			return b.Text
		}
	}
	if len(d.Bands) == 0 {
		return ""
	}
	return d.Bands[len(d.Bands)-1].Text
}

// Descriptor is one theme.
type Descriptor struct {
	ID          string
	Name        string
	Format      string
	AnomalyTerm string
	Personas    map[role.Role]Persona
	Dials       []Dial
	// Approach lines specific to the Writer in this theme.
	Approach []string
	// Criteria the Reader holds the story to.
	Criteria []string
	// Closing line appended to the Writer prompt.
	Motto string
}

// Persona returns the persona for r.
func (d *Descriptor) Persona(r role.Role) Persona {
	return d.Personas[r]
}

// Lookup returns the theme with id.
func Lookup(id string) (*Descriptor, bool) {
	d, ok := registry[id]
	return d, ok
}

// Get returns the theme with id, falling back to the default theme.
func Get(id string) *Descriptor {
	if d, ok := registry[id]; ok {
		return d
	}
	return registry[DefaultID]
}

// IDs returns the known theme ids in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultID is used when a request names no theme.
const DefaultID = "scp"

var registry = map[string]*Descriptor{
	"scp": {
		ID:          "scp",
		Name:        "SCP Foundation",
		Format:      "narrative-style SCP stories in the vein of \"There Is No Antimemetics Division\"",
		AnomalyTerm: "anomaly",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "SCP Writer", Duty: "write narrative-style SCP fiction", Voice: "professional, atmospheric, building tension and mystery"},
			role.Reader: {Title: "Classification Officer", Duty: "review SCP narratives and refuse mediocrity", Voice: "analytical, focused on Foundation authenticity"},
			role.Expert: {Title: "O5 Council Representative", Duty: "oversee narrative documentation and settle disputes", Voice: "authoritative, decisive, focused on Foundation standards"},
		},
		Dials: []Dial{
			{Key: "horrorLevel", Label: "Horror intensity", Default: 40, Bands: []Band{
				{25, "mild anomalous effects with minimal psychological impact"},
				{50, "moderate horror elements with psychological tension"},
				{75, "intense horror with reality-bending elements"},
				{100, "extreme cosmic horror with reality-breaking phenomena"},
			}},
			{Key: "containmentClass", Label: "Containment scope", Default: 30, Bands: []Band{
				{30, "a Safe or Euclid class anomaly with manageable containment"},
				{60, "a Keter class anomaly with significant containment challenges"},
				{100, "an Apollyon class threat with reality-threatening implications"},
			}},
			{Key: "redactionLevel", Label: "Documentation style", Default: 50, Bands: []Band{
				{30, "minimal redaction with clear, detailed documentation"},
				{70, "moderate redaction leaving some mysterious elements"},
				{100, "heavy redaction creating atmosphere through hidden information"},
			}},
		},
		Approach: []string{
			"Focus on atmospheric, character-driven narrative rather than clinical documentation",
			"Explore what the anomaly does to the people around it",
			"Focus on a single anomaly and its effects",
			"Build to a meaningful revelation",
		},
		Criteria: []string{
			"The anomaly is original, not another monster",
			"Foundation personnel feel like real people under impossible stress",
			"Dread builds naturally instead of relying on shock",
			"The story means something beyond surface horror",
		},
		Motto: "SCP containment procedures can be clinical, but the narrative must feel human.",
	},
	"fantasy": {
		ID:          "fantasy",
		Name:        "Enchanted Tales",
		Format:      "enchanting fairy tales and fantasy adventures",
		AnomalyTerm: "magic",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "Royal Scribe", Duty: "chronicle tales of magic and wonder", Voice: "eloquent, whimsical, painting vivid magical worlds"},
			role.Reader: {Title: "Court Storyteller", Duty: "make sure tales captivate the kingdom", Voice: "warm, encouraging, seeking wonder and magic"},
			role.Expert: {Title: "Archmage", Duty: "guide narrative enchantments and settle disputes", Voice: "wise, patient, speaking in mystical terms"},
		},
		Dials: []Dial{
			{Key: "magicLevel", Label: "Magic", Default: 60, Bands: []Band{
				{33, "low magic in a grounded, realistic world"},
				{66, "present but costly magic"},
				{100, "high magic with reality-bending powers"},
			}},
			{Key: "tone", Label: "Tone", Default: 50, Bands: []Band{
				{33, "dark, gritty fantasy"},
				{66, "a balance of peril and wonder"},
				{100, "light, whimsical adventure"},
			}},
			{Key: "questScale", Label: "Quest scale", Default: 50, Bands: []Band{
				{33, "a personal, intimate story"},
				{66, "a quest that changes a town or kingdom"},
				{100, "an epic, world-changing quest"},
			}},
			{Key: "timePeriod", Label: "Setting", Default: 20, Bands: []Band{
				{50, "a medieval fantasy setting"},
				{100, "a modern urban fantasy setting"},
			}},
		},
		Approach: []string{
			"Make the magic feel wondrous and bound by rules",
			"Give the hero a real choice with a real cost",
			"Let the world show itself through detail, not exposition",
		},
		Criteria: []string{
			"The magic has rules and consequences",
			"The hero's choice matters",
			"The world feels lived in",
		},
		Motto: "Every spell has a price, and every tale a heart.",
	},
	"noir": {
		ID:          "noir",
		Name:        "Dark Cases",
		Format:      "hard-boiled detective stories with shadows and secrets",
		AnomalyTerm: "mystery",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "Private Eye", Duty: "document cases from the rain-soaked streets", Voice: "cynical, world-weary, speaking in noir metaphors"},
			role.Reader: {Title: "Case Reviewer", Duty: "examine case files for holes", Voice: "analytical, looking for holes in the story"},
			role.Expert: {Title: "Chief Detective", Duty: "close cases with authority and cut through disputes", Voice: "gruff, no-nonsense, focused on facts"},
		},
		Dials: []Dial{
			{Key: "grittiness", Label: "Grittiness", Default: 60, Bands: []Band{
				{33, "a light, cozy mystery"},
				{66, "a tough case with real danger"},
				{100, "hard-boiled, violent crime"},
			}},
			{Key: "mysteryComplexity", Label: "Mystery", Default: 50, Bands: []Band{
				{33, "a simple case with clear motives"},
				{66, "a layered case with a few false leads"},
				{100, "a labyrinthine conspiracy full of red herrings"},
			}},
			{Key: "timePeriod", Label: "Era", Default: 30, Bands: []Band{
				{50, "classic 1940s noir"},
				{100, "modern neo-noir"},
			}},
			{Key: "moralAmbiguity", Label: "Morality", Default: 60, Bands: []Band{
				{33, "clear heroes and villains"},
				{66, "good people making bad choices"},
				{100, "everyone morally compromised"},
			}},
		},
		Approach: []string{
			"Write first person, cynical and metaphor-heavy",
			"Paint the city as another character",
			"Plant clues the reader can follow",
			"Build to a revelation that changes everything",
		},
		Criteria: []string{
			"The noir voice doesn't try too hard",
			"Clues are fair and the payoff is earned",
			"Every player has a believable motive",
		},
		Motto: "In this city, everyone's guilty of something.",
	},
	"scifi": {
		ID:          "scifi",
		Name:        "Stellar Chronicles",
		Format:      "science fiction tales of exploration and discovery",
		AnomalyTerm: "spatial anomaly",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "Ship's Chronicler", Duty: "record tales from the final frontier", Voice: "precise, wonder-filled, balancing science and humanity"},
			role.Reader: {Title: "Mission Specialist", Duty: "review expedition logs for accuracy and wonder", Voice: "scientific, curious, seeking both accuracy and wonder"},
			role.Expert: {Title: "Fleet Admiral", Duty: "oversee every narrative mission and settle disputes", Voice: "authoritative, strategic, focused on the bigger picture"},
		},
		Dials: []Dial{
			{Key: "techLevel", Label: "Technology", Default: 50, Bands: []Band{
				{33, "hard science with realistic physics"},
				{66, "plausible near-future technology"},
				{100, "space opera with impossible technology"},
			}},
			{Key: "scienceType", Label: "Science focus", Default: 50, Bands: []Band{
				{50, "physics and engineering"},
				{100, "biology and consciousness"},
			}},
			{Key: "scope", Label: "Scope", Default: 40, Bands: []Band{
				{33, "a personal, character-driven story"},
				{66, "a crew or colony at stake"},
				{100, "galactic, civilization-scale stakes"},
			}},
			{Key: "outlook", Label: "Outlook", Default: 50, Bands: []Band{
				{33, "a dystopian, cautionary tale"},
				{66, "a future that could go either way"},
				{100, "a utopian, optimistic future"},
			}},
		},
		Approach: []string{
			"Ground the speculation in consistent science",
			"Keep the human cost in view",
			"Let discovery drive the plot",
		},
		Criteria: []string{
			"The science holds together",
			"The sense of wonder survives the technical detail",
			"The characters react like people, not crew manifests",
		},
		Motto: "The universe is strange; the people in it should still be real.",
	},
	"cyberpunk": {
		ID:          "cyberpunk",
		Name:        "Neural Network",
		Format:      "gritty cyberpunk narratives of hackers and megacorps",
		AnomalyTerm: "glitch",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "Data Scribe", Duty: "document tales from the digital underground", Voice: "sharp, technical, peppered with net slang"},
			role.Reader: {Title: "NetRunner", Duty: "review data streams for authenticity", Voice: "skeptical, street-smart, values authenticity"},
			role.Expert: {Title: "AI Overseer", Duty: "maintain narrative protocols and settle disputes", Voice: "coldly logical, efficiency-focused"},
		},
		Dials: []Dial{
			{Key: "techLevel", Label: "Technology", Default: 70, Bands: []Band{
				{33, "near-future, limited tech"},
				{66, "ubiquitous implants and smart cities"},
				{100, "post-singularity tech with mind uploading"},
			}},
			{Key: "dystopiaLevel", Label: "Dystopia", Default: 60, Bands: []Band{
				{33, "a hopeful future where tech helps"},
				{66, "a city where the corps are winning"},
				{100, "oppressive megacorps and a total surveillance state"},
			}},
			{Key: "perspective", Label: "Perspective", Default: 30, Bands: []Band{
				{33, "a street-level criminal"},
				{66, "a fixer caught between worlds"},
				{100, "a corporate executive"},
			}},
			{Key: "augmentation", Label: "Augmentation", Default: 50, Bands: []Band{
				{33, "minimal cybernetics"},
				{66, "common chrome with a human cost"},
				{100, "full-body modification and AI integration"},
			}},
		},
		Approach: []string{
			"High tech, low life: keep the streets dirty",
			"Make the tech matter to the plot",
			"Show what the chrome costs the people wearing it",
		},
		Criteria: []string{
			"The slang is flavor, not noise",
			"The tech serves the story",
			"The stakes are personal",
		},
		Motto: "The street finds its own uses for things.",
	},
	"romance": {
		ID:          "romance",
		Name:        "Hearts & Letters",
		Format:      "heartfelt romance stories that make hearts flutter",
		AnomalyTerm: "spark",
		Personas: map[role.Role]Persona{
			role.Writer: {Title: "Romance Author", Duty: "craft tales of love and passion", Voice: "warm, emotional, focusing on feelings and connections"},
			role.Reader: {Title: "Romantic Soul", Duty: "make sure love stories touch the heart", Voice: "empathetic, seeking authentic emotion"},
			role.Expert: {Title: "Love Sage", Duty: "guide matters of the heart and settle disputes", Voice: "wise, gentle, understanding of love's complexities"},
		},
		Dials: []Dial{
			{Key: "heatLevel", Label: "Heat", Default: 30, Bands: []Band{
				{33, "sweet, innocent romance"},
				{66, "warm romance with some tension"},
				{100, "steamy passion, tastefully written"},
			}},
			{Key: "dramaLevel", Label: "Drama", Default: 50, Bands: []Band{
				{33, "gentle, low-conflict love"},
				{66, "real obstacles worth overcoming"},
				{100, "intense drama with major obstacles"},
			}},
			{Key: "relationshipType", Label: "Relationship", Default: 50, Bands: []Band{
				{33, "friends to lovers"},
				{66, "strangers to lovers"},
				{100, "enemies to lovers"},
			}},
			{Key: "settingEra", Label: "Era", Default: 50, Bands: []Band{
				{33, "a historical setting"},
				{66, "a contemporary setting"},
				{100, "a futuristic setting"},
			}},
		},
		Approach: []string{
			"Build chemistry through small moments",
			"Give both leads their own wants and wounds",
			"Earn the ending",
		},
		Criteria: []string{
			"The chemistry is on the page, not asserted",
			"Both leads are whole people",
			"The ending is earned",
		},
		Motto: "Love stories live in the details.",
	},
}
