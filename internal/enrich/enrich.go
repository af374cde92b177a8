// Package enrich implements the two enrichment passes over stored leads: a
// shallow pass that resolves a contact page, an email and stack tags from the
// lead's landing page, and a deep pass that walks ranked internal links to
// collect contacts, partners, sectors, languages and project references.
package enrich

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/fetcher"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/page"
	"github.com/jvl-group/leadradar/internal/taxonomy"
)

// directoryHosts never count as a company website when discovering one.
var directoryHosts = []string{
	"ethercat.org",
	"universal-robots.com",
	"siemens.com",
	"partnerfinder.siemens.com",
	"beckhoff.com",
	"profibus.com",
}

// Walker runs enrichment passes against a lead store.
type Walker struct {
	fetch *fetcher.Client
	store *leadstore.Store
	rules *taxonomy.Ruleset

	langWords map[string]*regexp.Regexp
	vendors   map[string]*regexp.Regexp
}

// New builds a walker. The word-boundary matchers for language hints and
// vendor names are compiled once here.
func New(f *fetcher.Client, store *leadstore.Store, rules *taxonomy.Ruleset) *Walker {
	w := &Walker{
		fetch:     f,
		store:     store,
		rules:     rules,
		langWords: make(map[string]*regexp.Regexp, len(rules.LangHints)),
		vendors:   make(map[string]*regexp.Regexp, len(rules.VendorPartners)),
	}
	for k := range rules.LangHints {
		w.langWords[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
	}
	for _, v := range rules.VendorPartners {
		w.vendors[v] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(v) + `\b`)
	}
	return w
}

// get fetches a URL, treating every failure as an empty page. Enrichment is
// best-effort: a dead page must never abort the pass.
func (w *Walker) get(ctx context.Context, rawURL string) string {
	body, err := w.fetch.Get(ctx, rawURL)
	if err != nil {
		zap.L().Debug("enrich fetch skipped", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	return body
}

// Shallow enriches every stored lead from its landing page: contact link and
// email, stack tags from page text, website discovery and a fallback email
// scan. Returns the number of leads that were reached.
func (w *Walker) Shallow(ctx context.Context) (int, error) {
	enriched := 0
	for _, lead := range w.store.All() {
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}

		body, baseURL := "", ""
		for _, s := range lead.Sources {
			if s.SourceURL != "" {
				if body = w.get(ctx, s.SourceURL); body != "" {
					baseURL = s.SourceURL
					break
				}
			}
		}
		if body == "" && lead.Website != "" {
			if body = w.get(ctx, lead.Website); body != "" {
				baseURL = lead.Website
			}
		}
		if body == "" {
			continue
		}

		doc, err := page.Parse(baseURL, body)
		if err != nil {
			zap.L().Debug("enrich parse skipped", zap.String("url", baseURL), zap.Error(err))
			continue
		}
		text := doc.Text()

		contactURL, contactEmail := "", ""
		if lead.ContactURL == "" {
			for _, link := range doc.Links() {
				if w.rules.ContactLink.MatchString(link.URL) || w.rules.ContactLink.MatchString(link.Label) {
					contactURL = link.URL
					break
				}
			}
			if contactURL != "" && lead.ContactEmail == "" {
				if contactBody := w.get(ctx, contactURL); contactBody != "" {
					contactEmail = extractEmail(w.rules, contactBody)
				}
			}
		}

		tags := w.rules.DetectStacks(text)

		website := ""
		if lead.Website == "" {
			website = doc.FirstExternalLink(directoryHosts)
		}

		fallbackEmail := ""
		if lead.ContactEmail == "" && contactEmail == "" {
			fallbackEmail = extractEmail(w.rules, body)
		}

		w.store.Update(lead.CompanyID, func(l *leadstore.Lead) {
			if l.ContactURL == "" && contactURL != "" {
				l.ContactURL = contactURL
			}
			if l.ContactEmail == "" {
				if contactEmail != "" {
					l.ContactEmail = contactEmail
				} else if fallbackEmail != "" {
					l.ContactEmail = fallbackEmail
				}
			}
			for _, t := range tags {
				l.AddTag(t)
			}
			if l.Website == "" && website != "" {
				l.Website = website
			}
		})
		enriched++
	}
	zap.L().Info("shallow enrichment done", zap.Int("enriched", enriched))
	return enriched, nil
}

// DeepOptions selects and bounds the deep-enrichment targets.
type DeepOptions struct {
	Priorities      []string
	MaxLeads        int
	MaxPagesPerLead int
	SameDomainOnly  bool
}

// DefaultDeepOptions mirrors the production defaults.
func DefaultDeepOptions() DeepOptions {
	return DeepOptions{
		Priorities:      []string{leadstore.PriorityHot, leadstore.PriorityWarm},
		MaxLeads:        25,
		MaxPagesPerLead: 5,
		SameDomainOnly:  true,
	}
}

// Deep walks ranked internal links for the highest-value leads and fills the
// contact list and company context. Pages already visited for an earlier lead
// in the same pass are not revisited. Returns the number of targets walked.
func (w *Walker) Deep(ctx context.Context, opts DeepOptions) (int, error) {
	if opts.MaxLeads <= 0 {
		opts.MaxLeads = DefaultDeepOptions().MaxLeads
	}
	if opts.MaxPagesPerLead <= 0 {
		opts.MaxPagesPerLead = DefaultDeepOptions().MaxPagesPerLead
	}
	wanted := map[string]bool{}
	for _, p := range opts.Priorities {
		wanted[p] = true
	}

	targets := make([]leadstore.Lead, 0)
	for _, l := range w.store.All() {
		if wanted[l.Priority] {
			targets = append(targets, l)
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.CompanyName < b.CompanyName
	})
	if len(targets) > opts.MaxLeads {
		targets = targets[:opts.MaxLeads]
	}

	visitedGlobal := map[string]bool{}
	walked := 0

	for _, lead := range targets {
		if ctx.Err() != nil {
			return walked, ctx.Err()
		}

		var baseURLs []string
		for _, s := range lead.Sources {
			if s.SourceURL != "" {
				baseURLs = append(baseURLs, s.SourceURL)
			}
		}
		if lead.Website != "" {
			baseURLs = append(baseURLs, lead.Website)
		}
		if len(baseURLs) == 0 {
			continue
		}

		type scoredLink struct {
			score float64
			url   string
		}
		var candidates []scoredLink

		for _, u := range baseURLs {
			if visitedGlobal[u] {
				continue
			}
			body := w.get(ctx, u)
			if body == "" {
				continue
			}
			doc, err := page.Parse(u, body)
			if err != nil {
				continue
			}
			for _, link := range doc.Links() {
				candidates = append(candidates, scoredLink{w.rules.ScoreLink(link.Label, link.URL), link.URL})
			}
			w.absorbPage(lead.CompanyID, u, doc, true)
		}

		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

		leadHost := hostOf(lead.Website)
		visitedLocal := map[string]bool{}
		for _, c := range candidates {
			if len(visitedLocal) >= opts.MaxPagesPerLead {
				break
			}
			if opts.SameDomainOnly && leadHost != "" && hostOf(c.url) != leadHost {
				continue
			}
			if visitedLocal[c.url] || visitedGlobal[c.url] {
				continue
			}
			visitedLocal[c.url] = true
			visitedGlobal[c.url] = true

			body := w.get(ctx, c.url)
			if body == "" {
				continue
			}
			doc, err := page.Parse(c.url, body)
			if err != nil {
				continue
			}
			w.absorbPage(lead.CompanyID, c.url, doc, false)
		}

		w.store.Update(lead.CompanyID, func(l *leadstore.Lead) {
			l.Cap()
			cc := l.EnsureContext()
			techs := append([]string(nil), cc.Technologies...)
			for _, t := range l.StackTags {
				techs = leadstore.AppendUnique(techs, t)
			}
			sort.Strings(techs)
			cc.Technologies = techs
		})
		walked++
	}

	zap.L().Info("deep enrichment done", zap.Int("targets", walked))
	return walked, nil
}

// absorbPage merges everything one page yields into the lead. base pages skip
// the phone/project scan, matching the two-phase walk order.
func (w *Walker) absorbPage(companyID, pageURL string, doc *page.Doc, basePage bool) {
	text := doc.Text()
	tags := w.rules.DetectStacks(text)
	contacts := w.extractContacts(pageURL, doc)
	langs := w.detectLanguages(doc, text)
	partners, sectors := w.detectPartnersSectors(doc, text)

	orgs, _ := doc.JSONLD()
	sizeHint := ""
	var linkedinURLs []string
	for _, org := range orgs {
		if sizeHint == "" {
			sizeHint = org.SizeHint()
		}
		for _, u := range org.SameAsURLs() {
			if strings.Contains(u, "linkedin.com") {
				linkedinURLs = append(linkedinURLs, u)
			}
		}
	}

	phone := ""
	var projects []string
	if !basePage {
		phone = strings.TrimSpace(w.rules.Phone.FindString(text))
		for _, h := range doc.Headings() {
			lower := strings.ToLower(h)
			for _, k := range w.rules.ProjectWords {
				if strings.Contains(lower, k) {
					projects = append(projects, h)
					break
				}
			}
		}
	}

	w.store.Update(companyID, func(l *leadstore.Lead) {
		for _, t := range tags {
			l.AddTag(t)
		}
		cctx := l.EnsureContext()
		if cctx.SizeHint == "" && sizeHint != "" {
			cctx.SizeHint = sizeHint
		}
		for _, u := range linkedinURLs {
			l.AddContact(leadstore.Contact{LinkedIn: u, PageURL: pageURL})
		}
		for _, c := range contacts {
			l.AddContact(c)
		}
		for _, lg := range langs {
			cctx.Languages = leadstore.AppendUnique(cctx.Languages, lg)
		}
		for _, p := range partners {
			cctx.Partners = leadstore.AppendUnique(cctx.Partners, p)
		}
		for _, s := range sectors {
			cctx.Sectors = leadstore.AppendUnique(cctx.Sectors, s)
		}
		if phone != "" && l.Phone == "" {
			l.Phone = phone
		}
		for _, pr := range projects {
			if len(cctx.RecentProjects) < 20 {
				cctx.RecentProjects = leadstore.AppendUnique(cctx.RecentProjects, pr)
			}
		}
	})
}

// extractContacts pulls people from JSON-LD, team sections and plain email
// mentions, at most 30 per page.
func (w *Walker) extractContacts(pageURL string, doc *page.Doc) []leadstore.Contact {
	var contacts []leadstore.Contact

	_, persons := doc.JSONLD()
	for _, p := range persons {
		role := p.JobTitle
		if role == "" {
			role = p.Role
		}
		contacts = append(contacts, leadstore.Contact{
			Name: p.Name, Role: role, Email: p.Email, PageURL: pageURL,
		})
	}

	for _, item := range doc.TeamItems(w.rules.TeamSectionWords) {
		c := leadstore.Contact{PageURL: pageURL, LinkedIn: item.LinkedIn}
		if m := w.rules.PersonName.FindString(item.Text); m != "" {
			c.Name = m
		}
		if m := w.rules.PersonRole.FindString(item.Text); m != "" {
			c.Role = m
		}
		c.Email = extractEmail(w.rules, item.Text)
		if c.Name != "" || c.Email != "" || c.LinkedIn != "" {
			contacts = append(contacts, c)
		}
	}

	for _, em := range w.rules.Email.FindAllString(doc.Text(), -1) {
		dup := false
		for _, c := range contacts {
			if c.Email == em {
				dup = true
				break
			}
		}
		if !dup {
			contacts = append(contacts, leadstore.Contact{Email: em, PageURL: pageURL})
		}
	}

	if len(contacts) > 30 {
		contacts = contacts[:30]
	}
	return contacts
}

// detectLanguages combines the html lang attribute with keyword hits in the
// page text, at most six languages per page.
func (w *Walker) detectLanguages(doc *page.Doc, text string) []string {
	langs := map[string]bool{}
	if lg := doc.Lang(); lg != "" {
		if code, ok := w.rules.LangHints[lg]; ok {
			langs[code] = true
		}
	}
	lower := strings.ToLower(text)
	for k, code := range w.rules.LangHints {
		if len(langs) >= 6 {
			break
		}
		if w.langWords[k].MatchString(lower) {
			langs[code] = true
		}
	}
	out := make([]string, 0, len(langs))
	for lg := range langs {
		out = append(out, lg)
	}
	sort.Strings(out)
	return out
}

// detectPartnersSectors finds known vendor names in the page text and sector
// keywords in the headings. Both lists are capped at 20.
func (w *Walker) detectPartnersSectors(doc *page.Doc, text string) ([]string, []string) {
	var partners []string
	for _, v := range w.rules.VendorPartners {
		if w.vendors[v].MatchString(text) {
			partners = append(partners, v)
		}
	}
	sort.Strings(partners)
	if len(partners) > 20 {
		partners = partners[:20]
	}

	var sectors []string
	for _, h := range doc.Headings() {
		lower := strings.ToLower(h)
		for _, k := range w.rules.SectorWords {
			if strings.Contains(lower, k) {
				sectors = append(sectors, lower)
				break
			}
		}
	}
	if len(sectors) > 20 {
		sectors = sectors[:20]
	}
	return partners, sectors
}

// extractEmail finds a plain address first, then an obfuscated
// "name [at] host [dot] tld" form.
func extractEmail(rs *taxonomy.Ruleset, text string) string {
	if m := rs.Email.FindString(text); m != "" {
		return m
	}
	if m := rs.EmailObfuscated.FindStringSubmatch(text); m != nil {
		return m[1] + "@" + m[2] + "." + m[3]
	}
	return ""
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
