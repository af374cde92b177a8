package leadstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyIDStable(t *testing.T) {
	a := CompanyID("https://www.acme-robotics.de/en", "Acme Robotics", "de")
	b := CompanyID("https://www.acme-robotics.de/en", "Acme Robotics", "DE")
	assert.Equal(t, a, b, "country casing must not change the id")
	assert.Len(t, a, 16)
}

func TestCompanyIDWWWStripped(t *testing.T) {
	withWWW := CompanyID("https://www.acme.de", "Acme", "DE")
	without := CompanyID("https://acme.de", "Acme", "DE")
	assert.Equal(t, withWWW, without)
}

func TestCompanyIDNameFallback(t *testing.T) {
	a := CompanyID("", "Acme Robotics", "DE")
	b := CompanyID("", "acme robotics", "DE")
	assert.Equal(t, a, b, "name casing must not change the id")

	c := CompanyID("", "Other Company", "DE")
	assert.NotEqual(t, a, c)
}

func TestCompanyIDDistinguishesCountry(t *testing.T) {
	de := CompanyID("https://acme.de", "Acme", "DE")
	at := CompanyID("https://acme.de", "Acme", "AT")
	assert.NotEqual(t, de, at)
}

func TestAddContactDedup(t *testing.T) {
	l := &Lead{}

	require.True(t, l.AddContact(Contact{Name: "Jane Doe", Email: "jane@acme.de"}))
	assert.False(t, l.AddContact(Contact{Email: "jane@acme.de"}), "same email")
	assert.False(t, l.AddContact(Contact{Name: "Jane Doe"}), "same name")
	assert.False(t, l.AddContact(Contact{}), "empty contact")

	require.True(t, l.AddContact(Contact{LinkedIn: "https://linkedin.com/in/max"}))
	assert.False(t, l.AddContact(Contact{LinkedIn: "https://linkedin.com/in/max"}), "same linkedin")

	// Dedup runs against the entire list, not just recent entries.
	require.True(t, l.AddContact(Contact{Name: "Max Power", Email: "max@acme.de"}))
	assert.False(t, l.AddContact(Contact{Email: "jane@acme.de", Name: "Different Name"}))

	assert.Len(t, l.Contacts, 3)
}

func TestMaxSourceStrength(t *testing.T) {
	l := &Lead{}
	assert.Equal(t, 0.0, l.MaxSourceStrength())

	l.Sources = []SourceHit{{Name: "UR", Strength: 0.85}, {Name: "ETG", Strength: 0.90}}
	assert.Equal(t, 0.90, l.MaxSourceStrength())
}

func TestAddTagOrderAndUnion(t *testing.T) {
	l := &Lead{}
	l.AddTag("EtherCAT")
	l.AddTag("PROFINET")
	l.AddTag("EtherCAT")
	l.AddTag("")
	assert.Equal(t, []string{"EtherCAT", "PROFINET"}, l.StackTags)
}

func TestCap(t *testing.T) {
	l := &Lead{}
	for i := 0; i < 60; i++ {
		l.Contacts = append(l.Contacts, Contact{Email: string(rune('a'+i%26)) + "@x.de"})
	}
	ctx := l.EnsureContext()
	for i := 0; i < 30; i++ {
		ctx.Partners = append(ctx.Partners, "p")
		ctx.Sectors = append(ctx.Sectors, "s")
		ctx.RecentProjects = append(ctx.RecentProjects, "r")
		ctx.Languages = append(ctx.Languages, "l")
		ctx.Technologies = append(ctx.Technologies, "t")
	}
	l.Cap()
	assert.Len(t, l.Contacts, 50)
	assert.Len(t, ctx.Partners, 25)
	assert.Len(t, ctx.Sectors, 25)
	assert.Len(t, ctx.RecentProjects, 25)
	assert.Len(t, ctx.Languages, 25)
	assert.Len(t, ctx.Technologies, 25)
}

func TestFirstSourceURL(t *testing.T) {
	l := &Lead{Sources: []SourceHit{
		{Name: "ETG"},
		{Name: "UR", SourceURL: "https://example.com/a"},
		{Name: "SIEMENS", SourceURL: "https://example.com/b"},
	}}
	assert.Equal(t, "https://example.com/a", l.FirstSourceURL())
	assert.Equal(t, "", (&Lead{}).FirstSourceURL())
}

func TestAppendUnique(t *testing.T) {
	s := AppendUnique(nil, "a")
	s = AppendUnique(s, "b")
	s = AppendUnique(s, "a")
	s = AppendUnique(s, "")
	assert.Equal(t, []string{"a", "b"}, s)
}
