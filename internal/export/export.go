// Package export renders scored leads to report files: CSV and Markdown for
// sales review, JSONL for downstream tooling and XLSX for the outreach sheet
// with per-lead tracking links.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/leadstore"
)

// Filters narrows the exported rows. Zero values mean no filtering; MinScore
// applies only when positive.
type Filters struct {
	Priority  string   `json:"priority,omitempty"`
	Countries []string `json:"countries,omitempty"`
	Segments  []string `json:"segments,omitempty"`
	Stacks    []string `json:"stacks,omitempty"`
	MinScore  int      `json:"min_score,omitempty"`
}

// File describes one written report file.
type File struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Linker mints a tracked outreach URL for a lead. Implementations return the
// token and the full link.
type Linker interface {
	Link(companyID string) (token, url string, err error)
}

// Exporter writes report files under a timestamped directory.
type Exporter struct {
	store  *leadstore.Store
	outDir string
	linker Linker
	now    func() time.Time
}

// New creates an exporter rooted at outDir (typically "exports").
func New(store *leadstore.Store, outDir string) *Exporter {
	return &Exporter{store: store, outDir: outDir, now: time.Now}
}

// WithLinker attaches a tracking-link minter used by the XLSX sheet.
func (e *Exporter) WithLinker(l Linker) *Exporter {
	e.linker = l
	return e
}

var csvHeader = []string{
	"company_name", "country", "website", "segment", "stack_tags", "signal_sources", "signal_strength",
	"partners", "languages", "size_hint", "contacts", "score", "priority_class", "reason", "pitch",
	"last_seen", "source_url",
}

// Export writes the requested formats and returns the written files. Rows
// are filtered, then ordered by priority tier, score descending, country and
// segment so every format lists companies identically.
func (e *Exporter) Export(formats []string, f Filters) ([]File, error) {
	ts := e.now().UTC().Format("20060102_1504")
	dir := filepath.Join(e.outDir, ts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	rows := e.selectRows(f)

	var files []File
	for _, format := range formats {
		var (
			path string
			err  error
		)
		switch format {
		case "csv":
			path = filepath.Join(dir, "lead_report_en.csv")
			err = e.writeCSV(path, rows)
		case "md":
			path = filepath.Join(dir, "lead_report.md")
			err = e.writeMD(path, rows)
		case "jsonl":
			path = filepath.Join(dir, "lead_report.jsonl")
			err = e.writeJSONL(path, rows)
		case "xlsx":
			path = filepath.Join(dir, "lead_outreach.xlsx")
			err = e.writeXLSX(path, rows)
		default:
			return nil, eris.Errorf("export: unknown format %q", format)
		}
		if err != nil {
			return nil, err
		}
		files = append(files, File{Type: format, Path: path})
	}

	zap.L().Info("export done",
		zap.Int("rows", len(rows)),
		zap.String("dir", dir),
		zap.Strings("formats", formats),
	)
	return files, nil
}

func (e *Exporter) selectRows(f Filters) []leadstore.Lead {
	countries := map[string]bool{}
	for _, c := range f.Countries {
		countries[strings.ToUpper(c)] = true
	}
	segments := map[string]bool{}
	for _, s := range f.Segments {
		segments[s] = true
	}
	stacks := map[string]bool{}
	for _, s := range f.Stacks {
		stacks[s] = true
	}

	var rows []leadstore.Lead
	for _, r := range e.store.All() {
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if len(countries) > 0 && !countries[strings.ToUpper(r.Country)] {
			continue
		}
		if len(segments) > 0 && !segments[r.Segment] {
			continue
		}
		if len(stacks) > 0 {
			match := false
			for _, t := range r.StackTags {
				if stacks[t] {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if f.MinScore > 0 && r.Score < f.MinScore {
			continue
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if ra, rb := tierRank(a.Priority), tierRank(b.Priority); ra != rb {
			return ra < rb
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return segmentKey(a.Segment) < segmentKey(b.Segment)
	})
	return rows
}

func tierRank(p string) int {
	switch p {
	case leadstore.PriorityHot:
		return 0
	case leadstore.PriorityWarm:
		return 1
	case leadstore.PriorityCold:
		return 2
	}
	return 3
}

// Empty segments sort last.
func segmentKey(s string) string {
	if s == "" {
		return "ZZ"
	}
	return s
}

func (e *Exporter) writeCSV(path string, rows []leadstore.Lead) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rows {
		var srcNames []string
		for _, s := range r.Sources {
			srcNames = append(srcNames, s.Name)
		}
		partners, languages, sizeHint := "", "", ""
		if r.Context != nil {
			partners = strings.Join(r.Context.Partners, "|")
			languages = strings.Join(r.Context.Languages, "|")
			sizeHint = r.Context.SizeHint
		}
		var contactParts []string
		for _, c := range r.Contacts {
			contactParts = append(contactParts, fmt.Sprintf("%s:%s:%s:%s", c.Name, c.Role, c.Email, c.LinkedIn))
		}
		contacts := strings.Join(contactParts, "|")
		if len(contacts) > 500 {
			contacts = contacts[:500]
		}
		record := []string{
			r.CompanyName,
			r.Country,
			r.Website,
			r.Segment,
			strings.Join(r.StackTags, "|"),
			strings.Join(srcNames, "|"),
			fmt.Sprintf("%.2f", r.MaxSourceStrength()),
			partners,
			languages,
			sizeHint,
			contacts,
			fmt.Sprintf("%d", r.Score),
			r.Priority,
			r.Reason,
			r.Pitch,
			r.LastSeen.Format(time.RFC3339),
			r.FirstSourceURL(),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

func (e *Exporter) writeMD(path string, rows []leadstore.Lead) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Lead Report — %s\n\n", e.now().UTC().Format("2006-01-02 15:04 UTC"))

	hot, warm, cold := 0, 0, 0
	countrySet := map[string]bool{}
	for _, r := range rows {
		switch r.Priority {
		case leadstore.PriorityHot:
			hot++
		case leadstore.PriorityWarm:
			warm++
		case leadstore.PriorityCold:
			cold++
		}
		countrySet[r.Country] = true
	}
	countries := make([]string, 0, len(countrySet))
	for c := range countrySet {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	fmt.Fprintf(&sb, "**Summary**: %d leads — HOT %d · WARM %d · COLD %d. Countries: %s.\n\n",
		len(rows), hot, warm, cold, strings.Join(countries, ", "))

	section := func(title, priority string) {
		fmt.Fprintf(&sb, "\n## %s\n\n", title)
		for _, r := range rows {
			if r.Priority != priority {
				continue
			}
			nameSet := map[string]bool{}
			for _, s := range r.Sources {
				nameSet[s.Name] = true
			}
			srcNames := make([]string, 0, len(nameSet))
			for n := range nameSet {
				srcNames = append(srcNames, n)
			}
			sort.Strings(srcNames)

			fmt.Fprintf(&sb, "### %s (%s) — %s\n", r.CompanyName, r.Country, r.Segment)
			if r.Website != "" {
				fmt.Fprintf(&sb, "- **Website:** %s\n", r.Website)
			}
			fmt.Fprintf(&sb, "- **Stacks:** %s\n", strings.Join(r.StackTags, ", "))
			fmt.Fprintf(&sb, "- **Sources:** %s — *strength %.2f*\n", strings.Join(srcNames, ", "), r.MaxSourceStrength())
			if len(r.Contacts) > 0 {
				var top []string
				for i, c := range r.Contacts {
					if i >= 5 {
						break
					}
					top = append(top, fmt.Sprintf("%s (%s)", c.Name, c.Role))
				}
				fmt.Fprintf(&sb, "- **Contacts:** %s\n", strings.Join(top, ", "))
			}
			if r.Context != nil {
				if len(r.Context.Partners) > 0 {
					fmt.Fprintf(&sb, "- **Partners:** %s\n", strings.Join(firstN(r.Context.Partners, 8), ", "))
				}
				if len(r.Context.Sectors) > 0 {
					fmt.Fprintf(&sb, "- **Sectors:** %s\n", strings.Join(firstN(r.Context.Sectors, 8), ", "))
				}
			}
			if r.Reason != "" {
				fmt.Fprintf(&sb, "- **Reason:** %s\n", r.Reason)
			}
			if r.Pitch != "" {
				fmt.Fprintf(&sb, "- **Pitch:** %s\n", r.Pitch)
			}
			sb.WriteString("\n")
		}
	}
	section("HOT", leadstore.PriorityHot)
	section("WARM", leadstore.PriorityWarm)
	section("COLD", leadstore.PriorityCold)

	return eris.Wrap(os.WriteFile(path, []byte(sb.String()), 0o644), "export: write md")
}

func (e *Exporter) writeJSONL(path string, rows []leadstore.Lead) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create jsonl")
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "export: write jsonl row")
		}
	}
	return nil
}

// writeXLSX renders the outreach sheet. When a linker is attached, each row
// carries a tracked link that resolves through the click tracker.
func (e *Exporter) writeXLSX(path string, rows []leadstore.Lead) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"company_name", "country", "segment", "score", "priority_class",
		"contact_email", "contact_url", "phone", "pitch", "tracking_link",
	} {
		header.AddCell().Value = h
	}

	for _, r := range rows {
		link := ""
		if e.linker != nil {
			_, url, lerr := e.linker.Link(r.CompanyID)
			if lerr != nil {
				zap.L().Warn("tracking link skipped",
					zap.String("company_id", r.CompanyID),
					zap.Error(lerr),
				)
			} else {
				link = url
			}
		}
		row := sheet.AddRow()
		for _, v := range []string{
			r.CompanyName, r.Country, r.Segment,
			fmt.Sprintf("%d", r.Score), r.Priority,
			r.ContactEmail, r.ContactURL, r.Phone, r.Pitch, link,
		} {
			row.AddCell().Value = v
		}
	}

	return eris.Wrap(file.Save(path), "export: save xlsx")
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
