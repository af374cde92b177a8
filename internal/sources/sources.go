// Package sources implements the directory adapters that discover raw
// company candidates: EtherCAT Technology Group, Universal Robots partners,
// the Siemens partner finder, Beckhoff partners and the PROFIBUS/PROFINET
// member list. ODVA and ROS2 are registered but dormant until those
// directories expose a scrapeable listing.
package sources

import (
	"context"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/fetcher"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/page"
	"github.com/jvl-group/leadradar/internal/taxonomy"
)

// Adapter scans one directory for companies active in the given country.
// Implementations swallow per-page failures and return whatever partial
// results they collected; an error means the whole source was unusable.
type Adapter interface {
	Name() string
	Scan(ctx context.Context, country string, sinceMonths, maxItems int) ([]leadstore.RawCandidate, error)
}

// Registry maps source names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the full adapter set on top of a shared fetcher.
func NewRegistry(f *fetcher.Client) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{
		newETG(f),
		newUR(f),
		newSiemens(f),
		newBeckhoff(f),
		newPROFINET(f),
		emptyAdapter{name: taxonomy.SourceODVA},
		emptyAdapter{name: taxonomy.SourceROS2},
	} {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for a source name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register replaces or adds an adapter. Tests use this to stub sources.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// emptyAdapter holds a source name with no scrapeable directory yet.
type emptyAdapter struct{ name string }

func (e emptyAdapter) Name() string { return e.name }

func (e emptyAdapter) Scan(context.Context, string, int, int) ([]leadstore.RawCandidate, error) {
	return nil, nil
}

// directoryAdapter is the shared scrape loop: fetch each listing URL, pull
// row-like entries out of the HTML, keep the first observation per company
// name. Page-level failures are logged and skipped.
type directoryAdapter struct {
	source   string
	hosts    []string
	fallback string
	urls     func(country string) []string
	fetch    *fetcher.Client
}

func (d *directoryAdapter) Name() string { return d.source }

func (d *directoryAdapter) Scan(ctx context.Context, country string, sinceMonths, maxItems int) ([]leadstore.RawCandidate, error) {
	if maxItems <= 0 {
		maxItems = 2000
	}
	var out []leadstore.RawCandidate
	seen := map[string]bool{}

	for _, listURL := range d.urls(country) {
		body, err := d.fetch.Get(ctx, listURL)
		if err != nil {
			zap.L().Debug("listing fetch skipped",
				zap.String("source", d.source),
				zap.String("url", listURL),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			continue
		}
		doc, err := page.Parse(listURL, body)
		if err != nil {
			zap.L().Debug("listing parse skipped",
				zap.String("source", d.source),
				zap.String("url", listURL),
				zap.Error(err),
			)
			continue
		}
		for _, e := range doc.DirectoryEntries(d.hosts) {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			srcURL := e.DetailURL
			if srcURL == "" {
				srcURL = d.fallback
			}
			out = append(out, leadstore.RawCandidate{
				Name:      e.Name,
				Country:   country,
				Website:   e.Website,
				Source:    d.source,
				SourceURL: srcURL,
			})
			if len(out) >= maxItems {
				return out, nil
			}
		}
	}
	return out, nil
}

func newETG(f *fetcher.Client) Adapter {
	bases := []string{
		"https://www.ethercat.org/en/members/members.html",
		"https://www.ethercat.org/en/products/products.html",
	}
	return &directoryAdapter{
		source:   taxonomy.SourceETG,
		hosts:    []string{"ethercat.org"},
		fallback: "https://www.ethercat.org/",
		fetch:    f,
		urls: func(country string) []string {
			var urls []string
			for _, b := range bases {
				urls = append(urls, b, b+"?country="+url.QueryEscape(country))
			}
			return urls
		},
	}
}

func newUR(f *fetcher.Client) Adapter {
	return &directoryAdapter{
		source:   taxonomy.SourceUR,
		hosts:    []string{"universal-robots.com"},
		fallback: "https://www.universal-robots.com/",
		fetch:    f,
		urls: func(country string) []string {
			q := url.Values{"country": {country}}.Encode()
			return []string{
				"https://www.universal-robots.com/find-a-distributor/?" + q,
				"https://www.universal-robots.com/ur-plus/all/?" + q,
			}
		},
	}
}

func newSiemens(f *fetcher.Client) Adapter {
	return &directoryAdapter{
		source:   taxonomy.SourceSiemens,
		hosts:    []string{"siemens.com"},
		fallback: "https://partnerfinder.siemens.com/",
		fetch:    f,
		urls: func(country string) []string {
			return []string{"https://partnerfinder.siemens.com/?country=" + url.QueryEscape(country)}
		},
	}
}

func newBeckhoff(f *fetcher.Client) Adapter {
	return &directoryAdapter{
		source:   taxonomy.SourceBeckhoff,
		hosts:    []string{"beckhoff.com"},
		fallback: "https://www.beckhoff.com/",
		fetch:    f,
		urls: func(country string) []string {
			q := url.Values{"country": {country}}.Encode()
			return []string{
				"https://www.beckhoff.com/en-en/company/partners/",
				"https://www.beckhoff.com/en-en/company/partners/?" + q,
				"https://www.beckhoff.com/en-en/contact/global-presence/",
			}
		},
	}
}

func newPROFINET(f *fetcher.Client) Adapter {
	return &directoryAdapter{
		source:   taxonomy.SourcePI,
		hosts:    []string{"profibus.com"},
		fallback: "https://www.profibus.com/",
		fetch:    f,
		urls: func(country string) []string {
			q := url.Values{"country": {country}}.Encode()
			return []string{
				"https://www.profibus.com/community/members",
				"https://www.profibus.com/community/members?" + q,
				"https://www.profibus.com/technology/pi-competence-centers",
			}
		},
	}
}
