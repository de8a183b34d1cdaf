package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one source's description of one paper, as produced by a
// scraper adapter. It is never mutated once normalized.
type RawRecord struct {
	Source        string           `json:"source" yaml:"source"`
	Title         string           `json:"title" yaml:"title"`
	Abstract      string           `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors       []AuthorMention  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Links         []Link           `json:"links,omitempty" yaml:"links,omitempty"`
	Topics        []string         `json:"topics,omitempty" yaml:"topics,omitempty"`
	Releases      []ReleaseMention `json:"releases,omitempty" yaml:"releases,omitempty"`
	CitationCount int              `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
	Quality       Quality          `json:"quality" yaml:"quality"`
}

// AuthorMention is an author as named by one record.
type AuthorMention struct {
	Name         string        `json:"name" yaml:"name"`
	Links        []Link        `json:"links,omitempty" yaml:"links,omitempty"`
	Affiliations []Institution `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
	Quality      Quality       `json:"quality" yaml:"quality"`
}

// ReleaseMention is a publication event as described by one record.
type ReleaseMention struct {
	Venue         Venue         `json:"venue" yaml:"venue"`
	Status        ReleaseStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Date          time.Time     `json:"date,omitempty" yaml:"date,omitempty"`
	DatePrecision DatePrecision `json:"date_precision" yaml:"date_precision"`
	Quality       Quality       `json:"quality" yaml:"quality"`
}

// Validate rejects records that cannot enter matching.
func (r *RawRecord) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return &ValidationError{Field: "source", Reason: "missing"}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "missing"}
	}
	if !r.Quality.Valid() {
		return &ValidationError{Field: "quality", Reason: "outside [0, 1]"}
	}
	if r.CitationCount < 0 {
		return &ValidationError{Field: "citation_count", Reason: "negative"}
	}
	for i, a := range r.Authors {
		if strings.TrimSpace(a.Name) == "" {
			return &ValidationError{Field: "authors", Reason: "author " + strconv.Itoa(i) + " has no name"}
		}
		if !a.Quality.Valid() {
			return &ValidationError{Field: "authors", Reason: "author " + strconv.Itoa(i) + " quality outside [0, 1]"}
		}
	}
	for i, rel := range r.Releases {
		if !rel.Quality.Valid() {
			return &ValidationError{Field: "releases", Reason: "release " + strconv.Itoa(i) + " quality outside [0, 1]"}
		}
	}
	return nil
}

// Normalize returns a copy with whitespace trimmed, links canonicalized,
// institution categories checked and release dates pinned to their
// precision. Author and release order is kept.
func (r RawRecord) Normalize() RawRecord {
	out := RawRecord{
		Source:   strings.ToLower(strings.TrimSpace(r.Source)),
		Title:    collapseSpace(r.Title),
		Abstract: strings.TrimSpace(r.Abstract),
		Links:    CanonicalizeLinks(r.Links),
		Quality:  r.Quality,
	}
	out.CitationCount = r.CitationCount
	for _, t := range r.Topics {
		if t = collapseSpace(t); t != "" {
			out.Topics = append(out.Topics, t)
		}
	}
	for _, a := range r.Authors {
		out.Authors = append(out.Authors, AuthorMention{
			Name:         collapseSpace(a.Name),
			Links:        CanonicalizeLinks(a.Links),
			Affiliations: normalizeInstitutions(a.Affiliations),
			Quality:      a.Quality,
		})
	}
	for _, rel := range r.Releases {
		rel.Venue.Name = collapseSpace(rel.Venue.Name)
		rel.Venue.Series = collapseSpace(rel.Venue.Series)
		rel.Status = NormalizeStatus(string(rel.Status))
		if rel.DatePrecision == PrecisionUnknown || rel.Date.IsZero() {
			rel.Date = time.Time{}
			rel.DatePrecision = PrecisionUnknown
		} else {
			rel.Date = Pin(rel.Date, rel.DatePrecision)
		}
		out.Releases = append(out.Releases, rel)
	}
	return out
}

// Fingerprint is a stable digest of the record's content. Two byte-identical
// records share a fingerprint, which makes re-ingestion a no-op.
func (r *RawRecord) Fingerprint() string {
	b, _ := json.Marshal(r) //nolint:errchkjson
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
