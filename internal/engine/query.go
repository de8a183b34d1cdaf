package engine

import (
	"strings"

	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// Filter selects papers. Zero fields match everything; set fields must all
// match.
type Filter struct {
	// Title matches papers whose normalized title contains it.
	Title string `json:"title,omitempty"`
	// Author matches papers with an author whose normalized name equals it.
	Author string `json:"author,omitempty"`
	// AuthorID matches papers the author is on.
	AuthorID int64 `json:"author_id,omitempty"`
	// LinkType alone matches papers holding any link of that type; with
	// Link it selects the one paper holding that link.
	LinkType   string        `json:"link_type,omitempty"`
	Link       string        `json:"link,omitempty"`
	Topic      string        `json:"topic,omitempty"`
	Venue      string        `json:"venue,omitempty"`
	Source     string        `json:"source,omitempty"`
	MinQuality model.Quality `json:"min_quality,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// FindPapers returns copies of the papers matching f, ordered by id.
func (e *Engine) FindPapers(f Filter) []model.Paper {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []int64
	switch {
	case f.LinkType != "" && f.Link != "":
		l := model.CanonicalizeLink(model.Link{Type: f.LinkType, Link: f.Link})
		if id, ok := e.paperIx.Lookup(l); ok {
			ids = []int64{id}
		}
	case f.AuthorID != 0:
		if a, ok := e.authors[e.resolve(model.KindAuthor, f.AuthorID)]; ok {
			set := make(map[int64]struct{})
			for _, id := range a.PaperIDs() {
				set[e.resolve(model.KindPaper, id)] = struct{}{}
			}
			ids = sortedIDs(set)
		}
	default:
		ids = sortedKeys(e.papers)
	}

	title := normalize.Text(f.Title)
	name := normalize.PersonName(f.Author)
	topic := normalize.Text(f.Topic)
	venue := normalize.Text(f.Venue)
	source := strings.ToLower(strings.TrimSpace(f.Source))

	var out []model.Paper
	for _, id := range ids {
		p, ok := e.papers[id]
		if !ok {
			continue
		}
		if p.Quality < f.MinQuality {
			continue
		}
		if title != "" && !strings.Contains(normalize.Text(p.Title), title) {
			continue
		}
		if f.LinkType != "" && f.Link == "" && !model.HasLinkType(p.Links, f.LinkType) {
			continue
		}
		if name != "" && !e.hasAuthorNamed(p, name) {
			continue
		}
		if topic != "" && !hasText(p.Topics, topic) {
			continue
		}
		if venue != "" && !hasVenue(p.Releases, venue) {
			continue
		}
		if source != "" && !contains(p.Sources, source) {
			continue
		}
		out = append(out, *p.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (e *Engine) hasAuthorNamed(p *model.Paper, key string) bool {
	for _, pa := range p.Authors {
		if normalize.PersonName(pa.Name) == key {
			return true
		}
		if a, ok := e.authors[pa.AuthorID]; ok {
			for _, n := range append([]string{a.Name}, a.Aliases...) {
				if normalize.PersonName(n) == key {
					return true
				}
			}
		}
	}
	return false
}

func hasText(values []string, key string) bool {
	for _, v := range values {
		if normalize.Text(v) == key {
			return true
		}
	}
	return false
}

func hasVenue(rels []model.Release, key string) bool {
	for _, r := range rels {
		if strings.Contains(normalize.Text(r.Venue.Name), key) || normalize.Text(r.Venue.Series) == key {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
