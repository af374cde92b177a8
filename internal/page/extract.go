package page

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DirectoryEntry is one row-like block scraped from a vendor/partner
// directory listing: a company name, an optional external website and the
// in-directory detail link.
type DirectoryEntry struct {
	Name      string
	Website   string
	DetailURL string
}

var directoryItemAtoms = map[atom.Atom]bool{
	atom.Li:      true,
	atom.Tr:      true,
	atom.Article: true,
	atom.Div:     true,
}

var directoryNameAtoms = []atom.Atom{atom.A, atom.Strong, atom.H3, atom.H4}

// DirectoryEntries walks listing blocks (cards, rows, list items) and pulls
// a candidate company out of each. Links pointing back into any of the
// directory's own hosts are treated as detail pages, external ones as the
// company website. Best-effort: blocks without a recognizable name yield
// nothing.
func (d *Doc) DirectoryEntries(directoryHosts []string) []DirectoryEntry {
	var out []DirectoryEntry
	seen := map[string]bool{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && directoryItemAtoms[n.DataAtom] {
			if e, ok := d.entryFrom(n, directoryHosts); ok && !seen[e.Name] {
				seen[e.Name] = true
				out = append(out, e)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

func (d *Doc) entryFrom(n *html.Node, directoryHosts []string) (DirectoryEntry, bool) {
	name := ""
	for _, a := range directoryNameAtoms {
		if el := firstElement(n, a); el != nil {
			name = strings.TrimSpace(nodeText(el))
			if name != "" {
				break
			}
		}
	}
	if len(name) < 2 {
		return DirectoryEntry{}, false
	}

	e := DirectoryEntry{Name: name}
	var anchors []*html.Node
	collectElements(n, atom.A, &anchors)
	for _, a := range anchors {
		href := attr(a, "href")
		if href == "" {
			continue
		}
		if strings.HasPrefix(href, "http") && !hostIn(href, directoryHosts) {
			if e.Website == "" {
				e.Website = href
			}
			continue
		}
		if e.DetailURL == "" {
			if resolved := d.resolve(href); resolved != "" {
				e.DetailURL = resolved
			}
		}
	}
	return e, true
}

// TeamItem is a fragment of a team/management section: its flattened text
// and an optional LinkedIn profile link.
type TeamItem struct {
	Text     string
	LinkedIn string
}

var teamContainerAtoms = map[atom.Atom]bool{
	atom.Section: true,
	atom.Article: true,
	atom.Div:     true,
}

// TeamItems returns list/paragraph items inside containers whose text
// matches sectionRe (team, management, leadership ...). At most 20 items
// per container, mirroring the enrichment budget.
func (d *Doc) TeamItems(sectionRe *regexp.Regexp) []TeamItem {
	var out []TeamItem
	seen := map[string]bool{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && teamContainerAtoms[n.DataAtom] {
			txt := nodeText(n)
			if len(txt) >= 30 && sectionRe.MatchString(txt) {
				var items []*html.Node
				collectElements(n, atom.Li, &items)
				collectElements(n, atom.P, &items)
				if len(items) > 20 {
					items = items[:20]
				}
				for _, it := range items {
					t := strings.TrimSpace(nodeText(it))
					if len(t) < 4 || seen[t] {
						continue
					}
					seen[t] = true
					item := TeamItem{Text: t}
					var anchors []*html.Node
					collectElements(it, atom.A, &anchors)
					for _, a := range anchors {
						href := attr(a, "href")
						if strings.Contains(href, "linkedin.com") {
							item.LinkedIn = d.resolve(href)
							break
						}
					}
					out = append(out, item)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// FirstExternalLink returns the first http(s) anchor whose host is not in
// the given exclusion list. Used to discover a company website from its
// directory detail page.
func (d *Doc) FirstExternalLink(excludeHosts []string) string {
	var found string
	d.eachElement(atom.A, func(n *html.Node) {
		if found != "" {
			return
		}
		href := attr(n, "href")
		if strings.HasPrefix(href, "http") && !hostIn(href, excludeHosts) {
			found = href
		}
	})
	return found
}

func firstElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if el := firstElement(c, a); el != nil {
			return el
		}
	}
	return nil
}

func collectElements(n *html.Node, a atom.Atom, out *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == a {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectElements(c, a, out)
	}
}

func hostIn(rawURL string, hosts []string) bool {
	for _, h := range hosts {
		if strings.Contains(rawURL, h) {
			return true
		}
	}
	return false
}
