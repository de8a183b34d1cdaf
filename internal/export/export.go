// Package export writes canonical papers as JSONL, YAML or an XLSX workbook.
package export

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bibmerge/internal/model"
)

// Format is an export encoding.
type Format string

// Formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	case "jsonl":
		return FormatJSON, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// Paper is the exported form of a canonical paper. Provenance is left out;
// `paper <id>` shows it.
type Paper struct {
	ID       int64        `json:"paper_id" yaml:"paper_id"`
	Title    string       `json:"title" yaml:"title"`
	Abstract string       `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []Author     `json:"authors" yaml:"authors"`
	Releases []Release    `json:"releases" yaml:"releases"`
	Topics   []string     `json:"topics" yaml:"topics"`
	Links    []model.Link `json:"links" yaml:"links"`
	Quality  float64      `json:"quality" yaml:"quality"`
	Cites    int          `json:"citation_count" yaml:"citation_count"`
	Sources  []string     `json:"sources" yaml:"sources"`
}

// Author is an exported paper author.
type Author struct {
	ID           int64               `json:"author_id" yaml:"author_id"`
	Name         string              `json:"name" yaml:"name"`
	Aliases      []string            `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Links        []model.Link        `json:"links" yaml:"links"`
	Affiliations []model.Institution `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
}

// Release is an exported release with its date rendered at its precision.
type Release struct {
	Venue         string `json:"venue" yaml:"venue"`
	VenueType     string `json:"venue_type,omitempty" yaml:"venue_type,omitempty"`
	Status        string `json:"status,omitempty" yaml:"status,omitempty"`
	Date          string `json:"date,omitempty" yaml:"date,omitempty"`
	DatePrecision string `json:"date_precision" yaml:"date_precision"`
	Volume        string `json:"volume,omitempty" yaml:"volume,omitempty"`
	Publisher     string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	PeerReviewed  bool   `json:"peer_reviewed" yaml:"peer_reviewed"`
}

// View builds the exported form of p. authors resolves canonical author
// ids; authors it cannot resolve are exported under their mention name.
func View(p model.Paper, authors map[int64]model.Author) Paper {
	out := Paper{
		ID:       p.ID,
		Title:    p.Title,
		Abstract: p.Abstract,
		Topics:   nonNil(p.Topics),
		Links:    p.Links,
		Quality:  float64(p.Quality),
		Cites:    p.CitationCount,
		Sources:  nonNil(p.Sources),
	}
	if out.Links == nil {
		out.Links = []model.Link{}
	}
	out.Authors = make([]Author, 0, len(p.Authors))
	for _, pa := range p.Authors {
		a := Author{ID: pa.AuthorID, Name: pa.Name, Links: []model.Link{}, Affiliations: pa.Affiliations}
		if ca, ok := authors[pa.AuthorID]; ok {
			a.Name = ca.Name
			a.Aliases = ca.Aliases
			if ca.Links != nil {
				a.Links = ca.Links
			}
		}
		out.Authors = append(out.Authors, a)
	}

	rels := append([]model.Release(nil), p.Releases...)
	// Peer-reviewed releases first, then newest first.
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Venue.PeerReviewed != rels[j].Venue.PeerReviewed {
			return rels[i].Venue.PeerReviewed
		}
		return rels[i].Date.After(rels[j].Date)
	})
	out.Releases = make([]Release, 0, len(rels))
	for _, r := range rels {
		out.Releases = append(out.Releases, Release{
			Venue:         r.Venue.Name,
			VenueType:     string(r.Venue.Type),
			Status:        string(r.Status),
			Date:          model.FormatDate(r.Date, r.DatePrecision),
			DatePrecision: r.DatePrecision.String(),
			Volume:        r.Venue.Volume,
			Publisher:     r.Venue.Publisher,
			PeerReviewed:  r.Venue.PeerReviewed,
		})
	}
	return out
}

// Write encodes papers to w in the given format.
func Write(w io.Writer, format Format, papers []model.Paper, authors []model.Author) error {
	byID := make(map[int64]model.Author, len(authors))
	for _, a := range authors {
		byID[a.ID] = a
	}
	views := make([]Paper, len(papers))
	for i, p := range papers {
		views[i] = View(p, byID)
	}

	switch format {
	case FormatJSON:
		return JSONL(w, views)
	case FormatYAML:
		return YAML(w, views)
	case FormatXLSX:
		return XLSX(w, views)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// JSONL writes one paper per line.
func JSONL(w io.Writer, papers []Paper) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, p := range papers {
		if err := enc.Encode(p); err != nil {
			return eris.Wrapf(err, "export: encode paper %d", p.ID)
		}
	}
	return eris.Wrap(bw.Flush(), "export: flush")
}

// YAML writes a single document holding a papers list.
func YAML(w io.Writer, papers []Paper) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := struct {
		Papers []Paper `yaml:"papers"`
	}{Papers: papers}
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	return eris.Wrap(enc.Close(), "export: close yaml encoder")
}

var (
	paperHeader   = []string{"paper_id", "title", "authors", "year", "venue", "status", "topics", "links", "quality", "sources"}
	authorHeader  = []string{"paper_id", "position", "author_id", "name", "aliases", "links"}
	releaseHeader = []string{"paper_id", "venue", "venue_type", "status", "date", "date_precision", "volume", "publisher", "peer_reviewed"}
)

// XLSX writes a workbook with Papers, Authors and Releases sheets.
func XLSX(w io.Writer, papers []Paper) error {
	f := xlsx.NewFile()
	ps, err := addSheet(f, "Papers", paperHeader)
	if err != nil {
		return err
	}
	as, err := addSheet(f, "Authors", authorHeader)
	if err != nil {
		return err
	}
	rs, err := addSheet(f, "Releases", releaseHeader)
	if err != nil {
		return err
	}

	for _, p := range papers {
		id := strconv.FormatInt(p.ID, 10)
		var year, venue, status string
		if len(p.Releases) > 0 {
			r := p.Releases[0]
			if len(r.Date) >= 4 {
				year = r.Date[:4]
			}
			venue, status = r.Venue, r.Status
		}
		names := make([]string, len(p.Authors))
		for i, a := range p.Authors {
			names[i] = a.Name
		}
		row := ps.AddRow()
		row.AddCell().SetInt64(p.ID)
		addStrings(row, p.Title, strings.Join(names, "; "), year, venue, status,
			strings.Join(p.Topics, "; "), joinLinks(p.Links))
		row.AddCell().SetFloat(p.Quality)
		addStrings(row, strings.Join(p.Sources, "; "))

		for i, a := range p.Authors {
			row := as.AddRow()
			row.AddCell().SetInt64(p.ID)
			row.AddCell().SetInt(i)
			row.AddCell().SetInt64(a.ID)
			addStrings(row, a.Name, strings.Join(a.Aliases, "; "), joinLinks(a.Links))
		}
		for _, r := range p.Releases {
			row := rs.AddRow()
			addStrings(row, id, r.Venue, r.VenueType, r.Status, r.Date, r.DatePrecision, r.Volume, r.Publisher)
			row.AddCell().SetBool(r.PeerReviewed)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", name)
	}
	addStrings(sheet.AddRow(), header...)
	return sheet, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func joinLinks(links []model.Link) string {
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
