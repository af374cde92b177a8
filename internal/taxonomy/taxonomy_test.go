package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectStacks(t *testing.T) {
	rs := DefaultRuleset()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "direct mentions",
			text: "Our drives speak EtherCAT and PROFINET natively.",
			want: []string{TagEtherCAT, TagPROFINET},
		},
		{
			name: "spaced variants",
			text: "Ether CAT masters, TIA Portal libraries and Studio 5000 AOIs.",
			want: []string{TagEtherCAT, TagTIA, TagStudio5000},
		},
		{
			name: "generic fieldbus implies profinet and ethernet/ip",
			text: "We build real-time ethernet gateways for industrial networks.",
			want: []string{TagPROFINET, TagEtherNetIP},
		},
		{
			name: "motion wording implies plc tooling",
			text: "Motion control solutions with IEC 61131 runtimes and OPC UA.",
			want: []string{TagTwinCAT, TagTIA, TagStudio5000},
		},
		{
			name: "ros2 both spellings",
			text: "ROS 2 nodes and ROS2 drivers for cobots.",
			want: []string{TagROS2},
		},
		{
			name: "no matches",
			text: "We sell office furniture.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.DetectStacks(tt.text))
		})
	}
}

func TestDetectStacksNoDuplicates(t *testing.T) {
	rs := DefaultRuleset()
	// Direct TwinCAT mention plus motion wording must not list TwinCAT twice.
	got := rs.DetectStacks("TwinCAT motion control with PLC libraries")
	seen := map[string]int{}
	for _, tag := range got {
		seen[tag]++
	}
	for tag, n := range seen {
		assert.Equal(t, 1, n, "tag %s duplicated", tag)
	}
	assert.Contains(t, got, TagTwinCAT)
}

func TestExpandCountries(t *testing.T) {
	rs := DefaultRuleset()

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"alias", []string{"DACH"}, []string{"AT", "CH", "DE"}},
		{"alias plus member dedupes", []string{"DACH", "de"}, []string{"AT", "CH", "DE"}},
		{"plain codes uppercased", []string{"dk", "SE"}, []string{"DK", "SE"}},
		{"unknown token passes through", []string{"XX"}, []string{"XX"}},
		{"empty tokens dropped", []string{"", "  ", "NO"}, []string{"NO"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.ExpandCountries(tt.tokens))
		})
	}
}

func TestExpandCountriesEUPlus(t *testing.T) {
	rs := DefaultRuleset()
	got := rs.ExpandCountries([]string{"EU_EEA_PLUS"})
	assert.Contains(t, got, "DE")
	assert.Contains(t, got, "NO")
	assert.Contains(t, got, "CH")
	assert.Contains(t, got, "UK")
	// Sorted and unique.
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func TestScoreLink(t *testing.T) {
	rs := DefaultRuleset()

	assert.Equal(t, 0.95, rs.ScoreLink("Contact us", "/contact"))
	assert.Equal(t, 0.95, rs.ScoreLink("Impressum", "https://example.de/impressum"))
	// Strongest hint wins when several match.
	assert.Equal(t, 0.95, rs.ScoreLink("Contact", "/about/contact"))
	assert.Equal(t, 0.8, rs.ScoreLink("Our Team", "/people"))
	assert.Equal(t, 0.0, rs.ScoreLink("Download", "/files/catalog.pdf"))
}

func TestProfile(t *testing.T) {
	rs := DefaultRuleset()

	etg := rs.Profile(SourceETG)
	assert.Equal(t, SegmentOEM, etg.DefaultSegment)
	assert.Equal(t, []string{TagEtherCAT}, etg.SeedTags)
	assert.Equal(t, 0.90, etg.Strength)

	siemens := rs.Profile(SourceSiemens)
	assert.Equal(t, SegmentSI, siemens.DefaultSegment)
	assert.Equal(t, []string{TagPROFINET, TagTIA}, siemens.SeedTags)

	ur := rs.Profile(SourceUR)
	assert.Equal(t, 0.85, ur.Strength)

	unknown := rs.Profile("SOMETHING_ELSE")
	assert.Equal(t, SegmentOEM, unknown.DefaultSegment)
	assert.Empty(t, unknown.SeedTags)
	assert.Equal(t, 0.85, unknown.Strength)
}

func TestDefaultRulesetWeights(t *testing.T) {
	rs := DefaultRuleset()
	require.Equal(t, 40, rs.SignalWeight)
	assert.Equal(t, 25, rs.StackWeights[TagEtherCAT])
	assert.Equal(t, 20, rs.StackWeights[TagPROFINET])
	assert.Equal(t, 18, rs.StackWeights[TagEtherNetIP])
	assert.Equal(t, 12, rs.StackWeights[TagROS2])
	assert.Equal(t, 10, rs.StackWeights[TagUR])
	assert.Equal(t, 8, rs.StackWeights[TagTwinCAT])
	assert.Equal(t, 8, rs.StackWeights[TagTIA])
	assert.Equal(t, 8, rs.StackWeights[TagStudio5000])
}

func TestLoadRuleset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	yaml := `
signal_weight: 50
stack_weights:
  EtherCAT: 30
regions:
  NORDICS: ["DK", "SE"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	rs, err := LoadRuleset(path)
	require.NoError(t, err)
	assert.Equal(t, 50, rs.SignalWeight)
	assert.Equal(t, 30, rs.StackWeights[TagEtherCAT])
	assert.Equal(t, []string{"DK", "SE"}, rs.ExpandCountries([]string{"NORDICS"}))
	// Patterns stay compiled after the override.
	assert.Contains(t, rs.DetectStacks("EtherCAT terminal"), TagEtherCAT)
}

func TestLoadRulesetMissingFile(t *testing.T) {
	_, err := LoadRuleset("/nonexistent/rules.yaml")
	require.Error(t, err)
}
