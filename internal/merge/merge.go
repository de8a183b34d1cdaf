// Package merge arbitrates between per-source candidate values for one field.
// Every function is deterministic and idempotent: merging the same candidate
// multiset in the same order always yields the same value, and feeding a
// merged value back in as a candidate does not change the result.
package merge

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// Candidate is one source's proposed value for a field.
type Candidate[T any] struct {
	Value   T
	Quality model.Quality
}

// Text picks a scalar text value: highest quality wins, ties go to the
// longest string, then to the earliest candidate in cands. Empty strings are not
// candidates; when every candidate is empty the result is "".
func Text(cands []Candidate[string]) string {
	best, _ := BestText(cands)
	return best.Value
}

// BestText is Text that also reports the winning candidate and whether any
// candidate was non-empty.
func BestText(cands []Candidate[string]) (Candidate[string], bool) {
	var best Candidate[string]
	found := false
	for _, c := range cands {
		if c.Value == "" {
			continue
		}
		if !found || betterText(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func betterText(c, best Candidate[string]) bool {
	if c.Quality != best.Quality {
		return c.Quality > best.Quality
	}
	return utf8.RuneCountInString(c.Value) > utf8.RuneCountInString(best.Value)
}

// Set unions text values. Values whose normalized form (case-insensitive,
// accent-folded, punctuation-insensitive) is equal collapse to one entry,
// represented by the highest-quality spelling (earliest on ties). The result
// is ordered by normalized key so it does not depend on candidate order
// beyond tie-breaking.
func Set(cands []Candidate[string]) []Candidate[string] {
	return SetBy(cands, normalize.Text)
}

// SetBy is Set with a caller-supplied normalization key.
func SetBy(cands []Candidate[string], key func(string) string) []Candidate[string] {
	byKey := make(map[string]Candidate[string], len(cands))
	var keys []string
	for _, c := range cands {
		k := key(c.Value)
		if k == "" {
			continue
		}
		cur, ok := byKey[k]
		if !ok {
			keys = append(keys, k)
			byKey[k] = c
			continue
		}
		if c.Quality > cur.Quality {
			byKey[k] = c
		}
	}
	sort.Strings(keys)
	out := make([]Candidate[string], 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

// Values strips qualities from merged candidates.
func Values[T any](cands []Candidate[T]) []T {
	if len(cands) == 0 {
		return nil
	}
	out := make([]T, len(cands))
	for i, c := range cands {
		out[i] = c.Value
	}
	return out
}

// Links unions identity links. Links are already canonical, so duplicates
// are exact; link identifiers stay case-sensitive (OpenReview ids are).
// The result is sorted by type then identifier.
func Links(sets ...[]model.Link) []model.Link {
	seen := make(map[model.Link]bool)
	var out []model.Link
	for _, links := range sets {
		for _, l := range links {
			if l.IsZero() || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	model.SortLinks(out)
	return out
}

// Institutions unions affiliations by normalized name. Each merged entry
// takes the name of its highest-quality candidate (earliest on ties) and
// its category, falling back to the first known category among the rest.
// Every other spelling and alias becomes an alias. The result is ordered by
// normalized name.
func Institutions(cands []Candidate[model.Institution]) []model.Institution {
	type group struct {
		best    Candidate[model.Institution]
		members []Candidate[model.Institution]
	}
	groups := make(map[string]*group)
	var keys []string
	for _, c := range cands {
		k := normalize.Text(c.Value.Name)
		if k == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &group{best: c}
			groups[k] = g
			keys = append(keys, k)
		} else if c.Quality > g.best.Quality {
			g.best = c
		}
		g.members = append(g.members, c)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	out := make([]model.Institution, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		inst := model.Institution{Name: g.best.Value.Name, Category: model.InstitutionUnknown}
		if known(g.best.Value.Category) {
			inst.Category = g.best.Value.Category
		}
		var aliases []Candidate[string]
		for _, m := range g.members {
			if inst.Category == model.InstitutionUnknown && known(m.Value.Category) {
				inst.Category = m.Value.Category
			}
			for _, a := range append([]string{m.Value.Name}, m.Value.Aliases...) {
				if a != inst.Name {
					aliases = append(aliases, Candidate[string]{Value: a, Quality: m.Quality})
				}
			}
		}
		inst.Aliases = Values(SetBy(aliases, strings.TrimSpace))
		out = append(out, inst)
	}
	return out
}

func known(c model.InstitutionCategory) bool {
	return c != "" && c != model.InstitutionUnknown
}

// Quality is the aggregate quality of a merged entity: the maximum of its
// contributors, so an entity is at least as good as its best source.
func Quality(qs ...model.Quality) model.Quality {
	return model.MaxOf(qs...)
}

// Flag merges a boolean attribute: it is set when any candidate sets it.
func Flag(cands ...bool) bool {
	for _, c := range cands {
		if c {
			return true
		}
	}
	return false
}

// Survivor picks which of several entities absorbs the others: the highest
// quality wins, ties go to the lowest id.
func Survivor(ids []int64, quality func(int64) model.Quality) int64 {
	var best int64
	var bestQ model.Quality
	for i, id := range ids {
		q := quality(id)
		if i == 0 || q > bestQ || (q == bestQ && id < best) {
			best, bestQ = id, q
		}
	}
	return best
}
