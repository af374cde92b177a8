package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvl-group/leadradar/internal/fetcher"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/taxonomy"
)

func testWalker(store *leadstore.Store) *Walker {
	f := fetcher.New(fetcher.Options{
		PerHostRPS:  1000,
		MaxRetries:  1,
		BackoffBase: 1.01,
		Timeout:     5 * time.Second,
	})
	return New(f, store, taxonomy.DefaultRuleset())
}

const landingHTML = `<html lang="de"><body>
<h1>Acme Antriebstechnik</h1>
<p>Servoverstaerker mit EtherCAT Schnittstelle.</p>
<a href="/kontakt">Kontakt</a>
<a href="/impressum-not-linked.pdf">Download</a>
<a href="/referenzen">Referenzen</a>
</body></html>`

const contactHTML = `<html lang="de"><body>
<h2>Kontakt</h2>
<p>Schreiben Sie an vertrieb@acme-antriebe.de oder rufen Sie an.</p>
</body></html>`

const teamHTML = `<html lang="de"><body>
<h2>Referenzen und Projekte</h2>
<h3>Case: Packaging retrofit</h3>
<section>
<h2>Management Team</h2>
<ul>
<li>Jane Doe, CEO <a href="https://www.linkedin.com/in/janedoe">profile</a></li>
<li>Max Power, Lead Engineer</li>
</ul>
</section>
<p>Partnerschaft mit Beckhoff und Siemens. Telefon +49 89 123 4567</p>
</body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, landingHTML)
	})
	mux.HandleFunc("/kontakt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contactHTML)
	})
	mux.HandleFunc("/referenzen", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, teamHTML)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func seedLead(t *testing.T, store *leadstore.Store, website string) string {
	t.Helper()
	lead := store.Upsert(leadstore.RawCandidate{
		Name:    "Acme Antriebstechnik",
		Country: "DE",
		Website: website,
		Source:  "MANUAL",
	})
	return lead.CompanyID
}

func TestShallow(t *testing.T) {
	srv := newSiteServer(t)
	store := leadstore.New(taxonomy.DefaultRuleset())
	id := seedLead(t, store, srv.URL+"/")

	n, err := testWalker(store).Shallow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lead, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/kontakt", lead.ContactURL)
	assert.Equal(t, "vertrieb@acme-antriebe.de", lead.ContactEmail)
	assert.Contains(t, lead.StackTags, taxonomy.TagEtherCAT)
}

func TestShallowFallbackEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Mail: hello@beta-drives.dk</p></body></html>`)
	}))
	defer srv.Close()

	store := leadstore.New(taxonomy.DefaultRuleset())
	id := seedLead(t, store, srv.URL+"/")

	_, err := testWalker(store).Shallow(context.Background())
	require.NoError(t, err)

	lead, _ := store.Get(id)
	assert.Equal(t, "", lead.ContactURL)
	assert.Equal(t, "hello@beta-drives.dk", lead.ContactEmail)
}

func TestShallowDiscoversWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="https://acme-antriebe.example/">Website</a></body></html>`)
	}))
	defer srv.Close()

	store := leadstore.New(taxonomy.DefaultRuleset())
	lead := store.Upsert(leadstore.RawCandidate{
		Name:      "Acme Antriebstechnik",
		Country:   "DE",
		Source:    "MANUAL",
		SourceURL: srv.URL + "/detail",
	})

	_, err := testWalker(store).Shallow(context.Background())
	require.NoError(t, err)

	got, _ := store.Get(lead.CompanyID)
	assert.Equal(t, "https://acme-antriebe.example/", got.Website)
}

func TestShallowSkipsUnreachableLeads(t *testing.T) {
	store := leadstore.New(taxonomy.DefaultRuleset())
	seedLead(t, store, "http://127.0.0.1:1/")

	n, err := testWalker(store).Shallow(context.Background())
	require.NoError(t, err, "dead pages are skipped, never fatal")
	assert.Equal(t, 0, n)
}

func TestDeep(t *testing.T) {
	srv := newSiteServer(t)
	store := leadstore.New(taxonomy.DefaultRuleset())
	id := seedLead(t, store, srv.URL+"/")
	require.True(t, store.Update(id, func(l *leadstore.Lead) {
		l.Priority = leadstore.PriorityHot
		l.Score = 80
	}))

	walked, err := testWalker(store).Deep(context.Background(), DeepOptions{
		Priorities:      []string{leadstore.PriorityHot},
		MaxLeads:        10,
		MaxPagesPerLead: 5,
		SameDomainOnly:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, walked)

	lead, ok := store.Get(id)
	require.True(t, ok)

	names := map[string]string{}
	for _, c := range lead.Contacts {
		names[c.Name] = c.Role
	}
	assert.Equal(t, "CEO", names["Jane Doe"])
	assert.Equal(t, "Lead", names["Max Power"])

	var linkedin string
	for _, c := range lead.Contacts {
		if c.LinkedIn != "" {
			linkedin = c.LinkedIn
		}
	}
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", linkedin)

	assert.Contains(t, lead.Phone, "+49")

	cc := lead.Context
	require.NotNil(t, cc)
	assert.Contains(t, cc.Partners, "Beckhoff")
	assert.Contains(t, cc.Partners, "Siemens")
	assert.Contains(t, cc.Sectors, "case: packaging retrofit")
	assert.Contains(t, cc.RecentProjects, "Case: Packaging retrofit")
	assert.Contains(t, cc.Languages, "DE")
	assert.Contains(t, cc.Technologies, taxonomy.TagEtherCAT)
}

func TestDeepSkipsOtherPriorities(t *testing.T) {
	srv := newSiteServer(t)
	store := leadstore.New(taxonomy.DefaultRuleset())
	id := seedLead(t, store, srv.URL+"/")
	require.True(t, store.Update(id, func(l *leadstore.Lead) {
		l.Priority = leadstore.PriorityCold
	}))

	walked, err := testWalker(store).Deep(context.Background(), DeepOptions{
		Priorities: []string{leadstore.PriorityHot, leadstore.PriorityWarm},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, walked)
}

func TestDeepSameDomainOnly(t *testing.T) {
	var offsiteCalls int
	offsite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsiteCalls++
		fmt.Fprint(w, `<html><body>contact page</body></html>`)
	}))
	defer offsite.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<a href="%s/contact">External contact</a>
<a href="/kontakt">Kontakt</a>
</body></html>`, offsite.URL)
	}))
	defer srv.Close()

	store := leadstore.New(taxonomy.DefaultRuleset())
	id := seedLead(t, store, srv.URL+"/")
	require.True(t, store.Update(id, func(l *leadstore.Lead) {
		l.Priority = leadstore.PriorityHot
	}))

	_, err := testWalker(store).Deep(context.Background(), DeepOptions{
		Priorities:     []string{leadstore.PriorityHot},
		SameDomainOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, offsiteCalls, "cross-domain candidates must be filtered before fetching")
}

func TestExtractEmailObfuscated(t *testing.T) {
	rs := taxonomy.DefaultRuleset()
	assert.Equal(t, "sales@acme.de", extractEmail(rs, "write to sales [at] acme [dot] de"))
	assert.Equal(t, "info@acme.de", extractEmail(rs, "info(at)acme(dot)de"))
	assert.Equal(t, "x@y.de", extractEmail(rs, "plain x@y.de wins over x [at] z [dot] com"))
	assert.Equal(t, "", extractEmail(rs, "no address here"))
}
