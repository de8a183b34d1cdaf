package engine

import (
	"sort"

	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
)

// sortContributions orders contributions by record quality descending, then
// fingerprint. Every derived field is folded in this order, so a paper
// depends only on the set of records it holds, never on arrival order.
// Where a merge rule breaks ties by "earliest candidate" (merge.Text,
// merge.Set), earliest therefore means lowest fingerprint among records of
// equal quality, not first ingested.
func sortContributions(cs []model.Contribution) {
	sort.SliceStable(cs, func(i, j int) bool {
		qi, qj := cs[i].Record.Quality, cs[j].Record.Quality
		if qi != qj {
			return qi > qj
		}
		return cs[i].Fingerprint < cs[j].Fingerprint
	})
}

// rebuildPaper recomputes every derived field of p from its contributions.
func (e *Engine) rebuildPaper(p *model.Paper) {
	sortContributions(p.Contributions)

	var (
		titles    []merge.Candidate[string]
		abstracts []merge.Candidate[string]
		topics    []merge.Candidate[string]
		linkSets  [][]model.Link
		qualities []model.Quality
		releases  []model.Release
		authors   []model.PaperAuthor
		cites     int
	)
	sources := make(map[string]bool)
	position := make(map[int64]int)
	affiliations := make(map[int64][]merge.Candidate[model.Institution])

	for _, c := range p.Contributions {
		r := c.Record
		titles = append(titles, merge.Candidate[string]{Value: r.Title, Quality: r.Quality})
		abstracts = append(abstracts, merge.Candidate[string]{Value: r.Abstract, Quality: r.Quality})
		for _, topic := range r.Topics {
			topics = append(topics, merge.Candidate[string]{Value: topic, Quality: r.Quality})
		}
		linkSets = append(linkSets, r.Links)
		qualities = append(qualities, r.Quality)
		cites = max(cites, r.CitationCount)
		sources[r.Source] = true
		for _, rm := range r.Releases {
			releases = e.releases.Fold(releases, rm)
		}
		for i, am := range r.Authors {
			if i >= len(c.AuthorIDs) {
				break
			}
			id := c.AuthorIDs[i]
			for _, inst := range am.Affiliations {
				affiliations[id] = append(affiliations[id], merge.Candidate[model.Institution]{Value: inst, Quality: am.Quality})
			}
			if _, seen := position[id]; seen {
				continue
			}
			position[id] = len(authors)
			authors = append(authors, model.PaperAuthor{AuthorID: id, Position: len(authors), Name: am.Name})
		}
	}

	p.Title = merge.Text(titles)
	p.Abstract = merge.Text(abstracts)
	p.Topics = merge.Values(merge.Set(topics))
	p.Links = merge.Links(linkSets...)
	p.Quality = merge.Quality(qualities...)
	p.CitationCount = cites
	p.Releases = releases
	for id, cands := range affiliations {
		authors[position[id]].Affiliations = merge.Institutions(cands)
	}
	p.Authors = authors
	p.Sources = make([]string, 0, len(sources))
	for s := range sources {
		p.Sources = append(p.Sources, s)
	}
	sort.Strings(p.Sources)
}
