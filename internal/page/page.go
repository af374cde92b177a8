// Package page wraps golang.org/x/net/html with the accessors the adapters
// and enrichment walker need: flattened text, anchors with labels, headings,
// JSON-LD payloads and the document language.
package page

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"
)

// Link is an anchor resolved against the page URL.
type Link struct {
	URL   string
	Label string
}

// Person is a JSON-LD Person payload.
type Person struct {
	Name     string `json:"name"`
	JobTitle string `json:"jobTitle"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// Organization is a JSON-LD Organization payload.
type Organization struct {
	Name              string          `json:"name"`
	NumberOfEmployees json.RawMessage `json:"numberOfEmployees"`
	SameAs            json.RawMessage `json:"sameAs"`
}

// Doc is a parsed HTML document.
type Doc struct {
	root *html.Node
	base *url.URL

	textOnce string
}

// Parse parses an HTML body. baseURL is used to resolve relative hrefs; it
// may be empty.
func Parse(baseURL, body string) (*Doc, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "page: parse html")
	}
	var base *url.URL
	if baseURL != "" {
		if u, perr := url.Parse(baseURL); perr == nil {
			base = u
		}
	}
	return &Doc{root: root, base: base}, nil
}

// Text returns the document's visible text with whitespace collapsed.
// Script and style contents are skipped.
func (d *Doc) Text() string {
	if d.textOnce != "" {
		return d.textOnce
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	d.textOnce = sb.String()
	return d.textOnce
}

// Links returns every anchor with an href, resolved against the page URL.
// Fragment-only, javascript: and mailto: hrefs are skipped.
func (d *Doc) Links() []Link {
	var links []Link
	d.eachElement(atom.A, func(n *html.Node) {
		href := attr(n, "href")
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved := d.resolve(href)
		if resolved == "" {
			return
		}
		label := strings.TrimSpace(nodeText(n))
		if label == "" {
			label = href
		}
		links = append(links, Link{URL: resolved, Label: label})
	})
	return links
}

// Headings returns the text of every h1/h2/h3 element.
func (d *Doc) Headings() []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1, atom.H2, atom.H3:
				if t := strings.TrimSpace(nodeText(n)); t != "" {
					out = append(out, t)
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

// Lang returns the primary subtag of the <html lang> attribute normalized
// through the BCP 47 parser, "" when absent or invalid.
func (d *Doc) Lang() string {
	var lang string
	d.eachElement(atom.Html, func(n *html.Node) {
		if lang == "" {
			lang = attr(n, "lang")
		}
	})
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// JSONLD extracts Organization and Person objects from ld+json script tags.
// Malformed payloads contribute nothing.
func (d *Doc) JSONLD() ([]Organization, []Person) {
	var orgs []Organization
	var persons []Person
	d.eachElement(atom.Script, func(n *html.Node) {
		if !strings.EqualFold(attr(n, "type"), "application/ld+json") {
			return
		}
		raw := nodeText(n)
		for _, obj := range jsonldObjects(raw) {
			switch jsonldType(obj) {
			case "Organization":
				var org Organization
				if err := json.Unmarshal(obj, &org); err == nil {
					orgs = append(orgs, org)
				}
			case "Person":
				var p Person
				if err := json.Unmarshal(obj, &p); err == nil {
					persons = append(persons, p)
				}
			}
		}
	})
	return orgs, persons
}

// SameAsURLs flattens the sameAs field, which may be a string or a list.
func (o Organization) SameAsURLs() []string {
	if len(o.SameAs) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(o.SameAs, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(o.SameAs, &many); err == nil {
		return many
	}
	return nil
}

// SizeHint renders numberOfEmployees as a display string, "" when absent.
func (o Organization) SizeHint() string {
	if len(o.NumberOfEmployees) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(o.NumberOfEmployees, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(o.NumberOfEmployees, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// ResolveURL resolves href against the page URL, "" when it cannot.
func (d *Doc) ResolveURL(href string) string {
	return d.resolve(href)
}

func (d *Doc) resolve(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if d.base != nil {
		u = d.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func (d *Doc) eachElement(a atom.Atom, fn func(*html.Node)) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			fn(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// jsonldObjects normalizes a script payload into a list of raw objects,
// accepting both a single object and an array.
func jsonldObjects(raw string) []json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return arr
	}
	var obj json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return []json.RawMessage{obj}
	}
	return nil
}

func jsonldType(obj json.RawMessage) string {
	var head struct {
		Type json.RawMessage `json:"@type"`
	}
	if err := json.Unmarshal(obj, &head); err != nil || len(head.Type) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(head.Type, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(head.Type, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
