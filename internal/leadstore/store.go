package leadstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/taxonomy"
)

// Store is the in-memory lead registry. One instance lives for the process;
// all mutation goes through the store mutex so concurrent scan workers never
// lose an upsert for the same company.
type Store struct {
	mu    sync.Mutex
	leads map[string]*Lead
	rules *taxonomy.Ruleset
	now   func() time.Time
}

// New creates an empty store using the given rule tables.
func New(rules *taxonomy.Ruleset) *Store {
	return &Store{
		leads: make(map[string]*Lead),
		rules: rules,
		now:   time.Now,
	}
}

// Upsert merges one raw candidate into the store and returns the resulting
// lead. Repeated observations of the same company accumulate source hits;
// website and segment fill only when currently empty; source-implied stack
// tags are unioned. The returned pointer is the live record; callers must
// not mutate it outside Update.
func (s *Store) Upsert(rc RawCandidate) *Lead {
	cid := CompanyID(rc.Website, rc.Name, rc.Country)
	profile := s.rules.Profile(rc.Source)
	hit := SourceHit{Name: rc.Source, Strength: profile.Strength, SourceURL: rc.SourceURL}

	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[cid]
	if !ok {
		lead = &Lead{
			CompanyID:   cid,
			CompanyName: rc.Name,
			Country:     rc.Country,
			Website:     rc.Website,
			Segment:     profile.DefaultSegment,
			StackTags:   append([]string(nil), profile.SeedTags...),
			Sources:     []SourceHit{hit},
			LastSeen:    s.now().UTC(),
		}
		s.leads[cid] = lead
		return lead
	}

	// Duplicate hits are kept on purpose: repeated confirmation raises
	// confidence at scoring time through max(strength).
	lead.Sources = append(lead.Sources, hit)
	if lead.Website == "" && rc.Website != "" {
		lead.Website = rc.Website
	}
	for _, t := range profile.SeedTags {
		lead.AddTag(t)
	}
	if lead.Segment == "" {
		lead.Segment = profile.DefaultSegment
	}
	return lead
}

// Update runs fn against the named lead under the store lock. Used by the
// enrichment walker so its read-modify-write sequences cannot race a scan.
func (s *Store) Update(companyID string, fn func(*Lead)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[companyID]
	if !ok {
		return false
	}
	fn(lead)
	lead.LastSeen = s.now().UTC()
	return true
}

// Get returns a copy of the lead, if present.
func (s *Store) Get(companyID string) (Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[companyID]
	if !ok {
		return Lead{}, false
	}
	return lead.clone(), true
}

// Len reports the number of distinct companies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

// All returns a snapshot of every lead, sorted by company id for stable
// iteration across passes and reports.
func (s *Store) All() []Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out
}

// IDs returns every company id, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.leads))
	for id := range s.leads {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset clears the store. Test and demo use only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.leads)
	s.leads = make(map[string]*Lead)
	if n > 0 {
		zap.L().Info("lead store reset", zap.Int("dropped", n))
	}
}

// ListFilter selects leads for the paginated listing.
type ListFilter struct {
	Priority string
	Country  string
	Limit    int
	Offset   int
}

// List returns leads matching the filter, sorted by priority tier, then
// score descending, then country and name, plus the pre-pagination total.
func (s *Store) List(f ListFilter) ([]Lead, int) {
	rows := s.All()
	filtered := rows[:0]
	for _, r := range rows {
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if f.Country != "" && !strings.EqualFold(r.Country, f.Country) {
			continue
		}
		filtered = append(filtered, r)
	}
	total := len(filtered)
	SortByPriority(filtered)

	if f.Offset > len(filtered) {
		return nil, total
	}
	filtered = filtered[f.Offset:]
	if f.Limit > 0 && f.Limit < len(filtered) {
		filtered = filtered[:f.Limit]
	}
	return filtered, total
}

// SortByPriority orders leads HOT before WARM before COLD, then by score
// descending, country, name. This order is load-bearing for reproducible
// reports and deep-enrichment target selection.
func SortByPriority(rows []Lead) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if pr := priorityRank(a.Priority) - priorityRank(b.Priority); pr != 0 {
			return pr < 0
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.CompanyName < b.CompanyName
	})
}

func priorityRank(p string) int {
	switch p {
	case PriorityHot:
		return 0
	case PriorityWarm:
		return 1
	case PriorityCold:
		return 2
	default:
		return 3
	}
}

func (l *Lead) clone() Lead {
	c := *l
	c.StackTags = append([]string(nil), l.StackTags...)
	c.Sources = append([]SourceHit(nil), l.Sources...)
	c.Contacts = append([]Contact(nil), l.Contacts...)
	if l.Context != nil {
		ctx := *l.Context
		ctx.Sectors = append([]string(nil), l.Context.Sectors...)
		ctx.Technologies = append([]string(nil), l.Context.Technologies...)
		ctx.Partners = append([]string(nil), l.Context.Partners...)
		ctx.RecentProjects = append([]string(nil), l.Context.RecentProjects...)
		ctx.Languages = append([]string(nil), l.Context.Languages...)
		c.Context = &ctx
	}
	return c
}
