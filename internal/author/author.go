package author

import (
	"sort"

	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// AddMention attaches ref to a, replacing a mention with the same id, and
// rebuilds a's derived fields.
func AddMention(a *model.Author, ref model.MentionRef) {
	replaced := false
	for i := range a.Mentions {
		if a.Mentions[i].ID == ref.ID {
			a.Mentions[i] = ref
			replaced = true
			break
		}
	}
	if !replaced {
		a.Mentions = append(a.Mentions, ref)
	}
	Rebuild(a)
}

// Absorb moves every mention of from onto into and rebuilds into.
func Absorb(into, from *model.Author) {
	for _, m := range from.Mentions {
		AddMention(into, m)
	}
	from.Mentions = nil
}

// Rebuild recomputes name, aliases, links and quality from a's mentions.
// Mentions are ordered by id first, so the result depends only on the set
// of mentions.
func Rebuild(a *model.Author) {
	sort.Slice(a.Mentions, func(i, j int) bool { return a.Mentions[i].ID < a.Mentions[j].ID })

	names := make([]merge.Candidate[string], 0, len(a.Mentions))
	linkSets := make([][]model.Link, 0, len(a.Mentions))
	qs := make([]model.Quality, 0, len(a.Mentions))
	for _, m := range a.Mentions {
		names = append(names, merge.Candidate[string]{Value: m.Name, Quality: m.Quality})
		linkSets = append(linkSets, m.Links)
		qs = append(qs, m.Quality)
	}

	a.Name = merge.Text(names)
	a.Aliases = nil
	for _, c := range merge.SetBy(names, func(s string) string { return s }) {
		if c.Value != a.Name {
			a.Aliases = append(a.Aliases, c.Value)
		}
	}
	a.Links = merge.Links(linkSets...)
	a.Quality = merge.Quality(qs...)
}

// Keys returns the distinct PersonName keys of a's name and aliases.
func Keys(a *model.Author) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, n := range append([]string{a.Name}, a.Aliases...) {
		k := normalize.PersonName(n)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Partition splits a's mentions into those whose id is in ids and the rest.
func Partition(a *model.Author, ids map[string]bool) (moved, kept []model.MentionRef) {
	for _, m := range a.Mentions {
		if ids[m.ID] {
			moved = append(moved, m)
		} else {
			kept = append(kept, m)
		}
	}
	return moved, kept
}
