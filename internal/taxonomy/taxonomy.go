// Package taxonomy holds the rule tables shared by adapters, enrichment and
// scoring: region aliases, stack detection patterns, link ranking hints,
// vendor/partner names and source trust mappings. A single Ruleset value is
// constructed at startup and passed to every component that needs it.
package taxonomy

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Stack tags recognized across the pipeline.
const (
	TagEtherCAT   = "EtherCAT"
	TagTwinCAT    = "TwinCAT"
	TagPROFINET   = "PROFINET"
	TagTIA        = "TIA"
	TagEtherNetIP = "EtherNet/IP"
	TagStudio5000 = "Studio5000"
	TagROS2       = "ROS2"
	TagUR         = "UR"
)

// Source names for the registered directory adapters.
const (
	SourceETG      = "ETG"
	SourceUR       = "UR"
	SourceSiemens  = "SIEMENS"
	SourceBeckhoff = "BECKHOFF"
	SourcePI       = "PI_PROFINET"
	SourceODVA     = "ODVA_ENIP"
	SourceROS2     = "ROS2"
)

// Segments a lead can be classified into.
const (
	SegmentOEM         = "OEM"
	SegmentSI          = "SI"
	SegmentDistributor = "Distributor"
	SegmentRnD         = "R&D"
	SegmentUniversity  = "University"
	SegmentOther       = "Other"
)

// SourceProfile describes how a directory source seeds a new lead.
type SourceProfile struct {
	DefaultSegment string   `yaml:"default_segment"`
	SeedTags       []string `yaml:"seed_tags"`
	Strength       float64  `yaml:"strength"`
}

// Ruleset bundles every keyword/weight/regex table used by the pipeline.
type Ruleset struct {
	Regions        map[string][]string `yaml:"regions"`
	SignalWeight   int                 `yaml:"signal_weight"`
	StackWeights   map[string]int      `yaml:"stack_weights"`
	LinkHints      map[string]float64  `yaml:"link_hints"`
	VendorPartners []string            `yaml:"vendor_partners"`
	LangHints      map[string]string   `yaml:"lang_hints"`
	SectorWords    []string            `yaml:"sector_words"`
	ProjectWords   []string            `yaml:"project_words"`
	Sources        map[string]SourceProfile

	// Compiled patterns (not serialized).
	StackPatterns    map[string]*regexp.Regexp `yaml:"-"`
	FieldbusGeneric  *regexp.Regexp            `yaml:"-"`
	MotionPLC        *regexp.Regexp            `yaml:"-"`
	Email            *regexp.Regexp            `yaml:"-"`
	EmailObfuscated  *regexp.Regexp            `yaml:"-"`
	Phone            *regexp.Regexp            `yaml:"-"`
	ContactLink      *regexp.Regexp            `yaml:"-"`
	PersonName       *regexp.Regexp            `yaml:"-"`
	PersonRole       *regexp.Regexp            `yaml:"-"`
	TeamSectionWords *regexp.Regexp            `yaml:"-"`
}

var euCountries = []string{
	"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU",
	"IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI", "ES", "SE",
}

var eeaExtra = []string{"NO", "IS", "LI"}

// DefaultRuleset returns the built-in rule tables.
func DefaultRuleset() *Ruleset {
	rs := &Ruleset{
		Regions: map[string][]string{
			"EU":          euCountries,
			"EU_EEA_PLUS": concat(euCountries, eeaExtra, []string{"UK", "GB", "CH"}),
			"EEA":         concat(euCountries, eeaExtra),
			"DACH":        {"DE", "AT", "CH"},
			"NORDICS":     {"DK", "SE", "NO", "FI", "IS"},
			"BENELUX":     {"BE", "NL", "LU"},
			"IBERIA":      {"ES", "PT"},
			"CEE":         {"PL", "CZ", "SK", "HU", "RO", "BG", "SI", "HR", "LT", "LV", "EE"},
		},
		SignalWeight: 40,
		StackWeights: map[string]int{
			TagEtherCAT:   25,
			TagPROFINET:   20,
			TagEtherNetIP: 18,
			TagROS2:       12,
			TagUR:         10,
			TagTwinCAT:    8,
			TagTIA:        8,
			TagStudio5000: 8,
		},
		LinkHints: map[string]float64{
			"contact": 0.95, "kontakt": 0.95, "contacts": 0.95, "impressum": 0.95,
			"contatti": 0.95, "contato": 0.95,
			"about": 0.9, "company": 0.85, "chi siamo": 0.85, "über uns": 0.85, "acerca": 0.85,
			"team": 0.8, "management": 0.8, "leadership": 0.8,
			"case": 0.8, "project": 0.8, "referenc": 0.8, "success": 0.75, "customers": 0.7,
			"news": 0.65, "press": 0.65, "events": 0.5,
			"product": 0.6, "solution": 0.6, "technology": 0.7, "industr": 0.6,
			"partners": 0.7, "ecosystem": 0.6,
		},
		VendorPartners: []string{
			"Siemens", "Beckhoff", "ABB", "FANUC", "KUKA", "Yaskawa", "Mitsubishi",
			"Schneider", "Rexroth", "B&R", "Omron", "Rockwell", "Universal Robots",
			"UR", "ODVA", "PI", "EtherCAT",
		},
		LangHints: map[string]string{
			"de": "DE", "en": "EN", "it": "IT", "fr": "FR", "es": "ES", "pt": "PT",
			"da": "DA", "no": "NO", "sv": "SV", "fi": "FI", "nl": "NL", "pl": "PL",
			"cs": "CS", "hu": "HU", "ro": "RO", "bg": "BG", "el": "EL", "lt": "LT",
			"lv": "LV", "et": "ET",
		},
		SectorWords: []string{
			"automotive", "pharma", "food", "packaging", "logistics", "semiconductor",
			"machine", "energy", "agri", "metal", "aerospace",
		},
		ProjectWords: []string{"case", "project", "application", "success", "reference"},
		Sources: map[string]SourceProfile{
			SourceETG:      {DefaultSegment: SegmentOEM, SeedTags: []string{TagEtherCAT}, Strength: 0.90},
			SourceSiemens:  {DefaultSegment: SegmentSI, SeedTags: []string{TagPROFINET, TagTIA}, Strength: 0.90},
			SourceUR:       {DefaultSegment: SegmentSI, SeedTags: []string{TagUR}, Strength: 0.85},
			SourceBeckhoff: {DefaultSegment: SegmentOEM, SeedTags: []string{TagEtherCAT, TagTwinCAT}, Strength: 0.90},
			SourcePI:       {DefaultSegment: SegmentOEM, SeedTags: []string{TagPROFINET}, Strength: 0.90},
			SourceODVA:     {DefaultSegment: SegmentOEM, Strength: 0.85},
			SourceROS2:     {DefaultSegment: SegmentOEM, Strength: 0.85},
		},
	}
	rs.compile()
	return rs
}

func (rs *Ruleset) compile() {
	rs.StackPatterns = map[string]*regexp.Regexp{
		TagEtherCAT:   regexp.MustCompile(`(?i)\bEther\s*CAT\b`),
		TagPROFINET:   regexp.MustCompile(`(?i)\bPROFINET\b`),
		TagEtherNetIP: regexp.MustCompile(`(?i)\bEtherNet\s*/?IP\b|\bENIP\b`),
		TagROS2:       regexp.MustCompile(`(?i)\bROS\s*2\b|\bROS2\b`),
		TagTwinCAT:    regexp.MustCompile(`(?i)\bTwinCAT\b`),
		TagTIA:        regexp.MustCompile(`(?i)\bTIA\s*Portal\b`),
		TagStudio5000: regexp.MustCompile(`(?i)\bStudio\s*5000\b`),
	}
	rs.FieldbusGeneric = regexp.MustCompile(`(?i)\bindustrial\s+(ethernet|networks?)\b|\breal[-\s]?time\s+ethernet\b|\bfield\s*bus|fieldbus\b`)
	rs.MotionPLC = regexp.MustCompile(`(?i)\bmotion\s+control\b|\bPLC\b|\bIEC\s*61131\b|\bCodesys|CODESYS\b|\bOPC\s*UA\b|\bTSN\b`)
	rs.Email = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	rs.EmailObfuscated = regexp.MustCompile(`(?i)([A-Z0-9._%+-]+)\s*(?:\[at\]|\(at\)|\sat\s)\s*([A-Z0-9.-]+)\s*(?:\[dot\]|\(dot\)|\sdot\s)\s*([A-Z]{2,})`)
	rs.Phone = regexp.MustCompile(`(\+\d{1,3}[\s.-]?)?(\(?\d{1,4}\)?[\s.-]?)?[\d\s.-]{6,}`)
	rs.ContactLink = regexp.MustCompile(`(?i)(contact|kontakt|contacts|impressum|contatti|contato|about|company|team|management|leadership|case|project|reference|news|press|product|solution|technology|industr)`)
	rs.PersonName = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`)
	rs.PersonRole = regexp.MustCompile(`(?i)(CEO|CTO|COO|Founder|Head|Lead|Manager|Director|Engineer|R&D|Sales|Business|Automation|Robotics)`)
	rs.TeamSectionWords = regexp.MustCompile(`(?i)\b(team|management|leadership|board|staff)\b`)
}

// DetectStacks returns the stack tags matched in the given page text. Generic
// fieldbus or motion/PLC wording implies the related concrete tags.
func (rs *Ruleset) DetectStacks(text string) []string {
	var tags []string
	have := map[string]bool{}
	add := func(t string) {
		if !have[t] {
			have[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range []string{TagEtherCAT, TagPROFINET, TagEtherNetIP, TagROS2, TagTwinCAT, TagTIA, TagStudio5000} {
		if rs.StackPatterns[t].MatchString(text) {
			add(t)
		}
	}
	if rs.FieldbusGeneric.MatchString(text) {
		add(TagPROFINET)
		add(TagEtherNetIP)
	}
	if rs.MotionPLC.MatchString(text) {
		add(TagTwinCAT)
		add(TagTIA)
		add(TagStudio5000)
	}
	return tags
}

// ScoreLink rates an anchor by its label and href against the link hints,
// keeping the strongest matching hint.
func (rs *Ruleset) ScoreLink(label, href string) float64 {
	s := 0.0
	l := strings.ToLower(label + " " + href)
	for k, w := range rs.LinkHints {
		if strings.Contains(l, k) && w > s {
			s = w
		}
	}
	return s
}

// ExpandCountries expands region alias tokens into ISO2 codes, uppercases,
// dedupes and sorts the result.
func (rs *Ruleset) ExpandCountries(tokens []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokens {
		t := strings.ToUpper(strings.TrimSpace(tok))
		if t == "" {
			continue
		}
		if members, ok := rs.Regions[t]; ok {
			for _, c := range members {
				if !seen[c] {
					seen[c] = true
					out = append(out, c)
				}
			}
			continue
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Profile returns the seed profile for a source, falling back to a neutral
// OEM profile for unknown sources.
func (rs *Ruleset) Profile(source string) SourceProfile {
	if p, ok := rs.Sources[source]; ok {
		return p
	}
	return SourceProfile{DefaultSegment: SegmentOEM, Strength: 0.85}
}

// LoadRuleset reads YAML overrides on top of the default tables. Only the
// serializable tables can be overridden; patterns stay built-in.
func LoadRuleset(path string) (*Ruleset, error) {
	rs := DefaultRuleset()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: read ruleset")
	}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse ruleset")
	}
	rs.compile()
	return rs, nil
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
