package model

import (
	"slices"
	"time"
)

// Paper is the canonical merged record for one real-world paper. Every
// derived field is recomputed from Contributions, so the stored values are a
// cache of that fold rather than independent state.
type Paper struct {
	ID            int64          `json:"id" yaml:"id"`
	Title         string         `json:"title" yaml:"title"`
	Abstract      string         `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Links         []Link         `json:"links" yaml:"links"`
	Authors       []PaperAuthor  `json:"authors" yaml:"authors"`
	Topics        []string       `json:"topics,omitempty" yaml:"topics,omitempty"`
	Releases      []Release      `json:"releases,omitempty" yaml:"releases,omitempty"`
	Quality       Quality        `json:"quality" yaml:"quality"`
	CitationCount int            `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
	Sources       []string       `json:"sources" yaml:"sources"`
	Contributions []Contribution `json:"contributions" yaml:"contributions"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"updated_at"`
}

// PaperAuthor places a canonical author on a paper.
// Affiliations are those declared on this paper, merged across records.
type PaperAuthor struct {
	AuthorID     int64         `json:"author_id" yaml:"author_id"`
	Position     int           `json:"position" yaml:"position"`
	Name         string        `json:"name" yaml:"name"`
	Affiliations []Institution `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
}

// Release is a canonical publication event owned by one paper.
type Release struct {
	Venue         Venue         `json:"venue" yaml:"venue"`
	Status        ReleaseStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Date          time.Time     `json:"date,omitempty" yaml:"date,omitempty"`
	DatePrecision DatePrecision `json:"date_precision" yaml:"date_precision"`
	Quality       Quality       `json:"quality" yaml:"quality"`
}

// Contribution is the provenance of one source record folded into a paper.
// AuthorIDs[i] is the canonical author resolved for Record.Authors[i].
type Contribution struct {
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Record      RawRecord `json:"record" yaml:"record"`
	AuthorIDs   []int64   `json:"author_ids" yaml:"author_ids"`
}

// Clone returns a deep copy of p.
func (p *Paper) Clone() *Paper {
	if p == nil {
		return nil
	}
	c := *p
	c.Links = slices.Clone(p.Links)
	c.Authors = slices.Clone(p.Authors)
	for i := range c.Authors {
		c.Authors[i].Affiliations = cloneInstitutions(p.Authors[i].Affiliations)
	}
	c.Topics = slices.Clone(p.Topics)
	c.Releases = slices.Clone(p.Releases)
	c.Sources = slices.Clone(p.Sources)
	c.Contributions = make([]Contribution, len(p.Contributions))
	for i, ct := range p.Contributions {
		c.Contributions[i] = ct.Clone()
	}
	return &c
}

// Clone returns a deep copy of c.
func (c Contribution) Clone() Contribution {
	out := c
	out.AuthorIDs = slices.Clone(c.AuthorIDs)
	out.Record = c.Record.Clone()
	return out
}

// Clone returns a deep copy of r.
func (r RawRecord) Clone() RawRecord {
	out := r
	out.Links = slices.Clone(r.Links)
	out.Topics = slices.Clone(r.Topics)
	out.Releases = slices.Clone(r.Releases)
	out.Authors = make([]AuthorMention, len(r.Authors))
	for i, a := range r.Authors {
		a.Links = slices.Clone(a.Links)
		a.Affiliations = cloneInstitutions(a.Affiliations)
		out.Authors[i] = a
	}
	return out
}

// HasAuthor reports whether id is one of the paper's authors.
func (p *Paper) HasAuthor(id int64) bool {
	for _, a := range p.Authors {
		if a.AuthorID == id {
			return true
		}
	}
	return false
}

// ContributionIndex returns the position of the contribution with the given
// fingerprint, or -1.
func (p *Paper) ContributionIndex(fingerprint string) int {
	for i, c := range p.Contributions {
		if c.Fingerprint == fingerprint {
			return i
		}
	}
	return -1
}
