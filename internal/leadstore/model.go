// Package leadstore holds the deduplicated company records accumulated from
// directory scans and enrichment, and the merge rules that keep them
// consistent under concurrent updates.
package leadstore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Priority tiers derived from the score.
const (
	PriorityHot  = "HOT"
	PriorityWarm = "WARM"
	PriorityCold = "COLD"
)

// RawCandidate is the ephemeral output of a source adapter. It is consumed
// immediately by Store.Upsert and never persisted.
type RawCandidate struct {
	Name      string            `json:"name"`
	Country   string            `json:"country"`
	Website   string            `json:"website,omitempty"`
	Source    string            `json:"source"`
	SourceURL string            `json:"source_url,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// SourceHit is one piece of evidence that a company was observed via a
// directory, with a trust weight in [0,1].
type SourceHit struct {
	Name      string  `json:"name"`
	Strength  float64 `json:"strength"`
	SourceURL string  `json:"source_url,omitempty"`
}

// Contact is a person associated with a lead.
type Contact struct {
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	PageURL  string `json:"page_url,omitempty"`
}

// CompanyContext accumulates soft signals gathered during deep enrichment.
type CompanyContext struct {
	SizeHint       string   `json:"size_hint,omitempty"`
	Sectors        []string `json:"sectors,omitempty"`
	Technologies   []string `json:"technologies,omitempty"`
	Partners       []string `json:"partners,omitempty"`
	RecentProjects []string `json:"recent_projects,omitempty"`
	Languages      []string `json:"languages,omitempty"`
}

// Lead is the golden record for one real-world company. stack_tags, sources
// and the context lists grow monotonically; contact_url, contact_email and
// phone are first-found-wins; score/priority/reason/pitch are derived and
// only valid after a scoring pass.
type Lead struct {
	CompanyID    string          `json:"company_id"`
	CompanyName  string          `json:"company_name"`
	Country      string          `json:"country"`
	Website      string          `json:"website,omitempty"`
	Segment      string          `json:"segment,omitempty"`
	StackTags    []string        `json:"stack_tags"`
	Sources      []SourceHit     `json:"sources"`
	Contacts     []Contact       `json:"contacts,omitempty"`
	Context      *CompanyContext `json:"context,omitempty"`
	Score        int             `json:"score"`
	Priority     string          `json:"priority_class,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Pitch        string          `json:"pitch,omitempty"`
	ContactURL   string          `json:"contact_url,omitempty"`
	ContactEmail string          `json:"contact_email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	LastSeen     time.Time       `json:"last_seen"`
}

// CompanyID derives the stable identity key for a company. Two observations
// of the same company must produce the same id regardless of which adapter
// saw them, so the input is normalized: website host (www-stripped) when a
// website is known, otherwise the slugified name; plus lowercased name and
// uppercased country.
func CompanyID(website, name, country string) string {
	host := ""
	if w := strings.ToLower(strings.TrimSpace(website)); w != "" {
		if u, err := url.Parse(w); err == nil && u.Host != "" {
			host = u.Host
		} else {
			host = w
		}
		host = strings.Trim(strings.TrimPrefix(host, "www."), "/")
	} else {
		host = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
	}
	raw := fmt.Sprintf("%s|%s|%s", host, strings.ToLower(strings.TrimSpace(name)), strings.ToUpper(country))
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// MaxSourceStrength returns the strongest source hit, 0 when none.
func (l *Lead) MaxSourceStrength() float64 {
	m := 0.0
	for _, s := range l.Sources {
		if s.Strength > m {
			m = s.Strength
		}
	}
	return m
}

// HasSource reports whether the lead was observed via the named source.
func (l *Lead) HasSource(name string) bool {
	for _, s := range l.Sources {
		if s.Name == name {
			return true
		}
	}
	return false
}

// HasTag reports whether a stack tag is present.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.StackTags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag unions a stack tag into the lead, preserving insertion order.
func (l *Lead) AddTag(tag string) {
	if tag != "" && !l.HasTag(tag) {
		l.StackTags = append(l.StackTags, tag)
	}
}

// AddContact appends a contact unless a matching email, LinkedIn URL or name
// is already present. The dedup check runs against the entire current list.
// Returns true when the contact was added.
func (l *Lead) AddContact(c Contact) bool {
	if c.Name == "" && c.Email == "" && c.LinkedIn == "" {
		return false
	}
	for _, x := range l.Contacts {
		if (c.Email != "" && x.Email == c.Email) ||
			(c.LinkedIn != "" && x.LinkedIn == c.LinkedIn) ||
			(c.Name != "" && x.Name == c.Name) {
			return false
		}
	}
	l.Contacts = append(l.Contacts, c)
	return true
}

// EnsureContext lazily allocates the context accumulator.
func (l *Lead) EnsureContext() *CompanyContext {
	if l.Context == nil {
		l.Context = &CompanyContext{}
	}
	return l.Context
}

// FirstSourceURL returns the first non-empty source URL, "" when none.
func (l *Lead) FirstSourceURL() string {
	for _, s := range l.Sources {
		if s.SourceURL != "" {
			return s.SourceURL
		}
	}
	return ""
}

const (
	maxContacts    = 50
	maxContextList = 25
)

// Cap bounds the accumulator lists after an enrichment pass.
func (l *Lead) Cap() {
	if len(l.Contacts) > maxContacts {
		l.Contacts = l.Contacts[:maxContacts]
	}
	if l.Context == nil {
		return
	}
	l.Context.Partners = capList(l.Context.Partners, maxContextList)
	l.Context.Sectors = capList(l.Context.Sectors, maxContextList)
	l.Context.RecentProjects = capList(l.Context.RecentProjects, maxContextList)
	l.Context.Languages = capList(l.Context.Languages, maxContextList)
	l.Context.Technologies = capList(l.Context.Technologies, maxContextList)
}

func capList(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AppendUnique appends v to list if absent, preserving order.
func AppendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
