// Package author reconciles per-record author mentions with canonical
// authors. Link evidence is authoritative; name matching is a heuristic that
// prefers creating a new author over conflating two people.
package author

import (
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/identity"
	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// Config tunes name matching.
type Config struct {
	// NameSimilarity is the minimum similarity between normalized names for a
	// fuzzy match. 1 requires identical normalized names.
	NameSimilarity float64
	// SharedNamespace widens fuzzy candidates beyond co-authors of the same
	// paper to same-named authors that hold a link of a type the mention
	// also carries.
	SharedNamespace bool
}

// Registry is the reconciler's view of the canonical author arena. The
// engine implements it over its current transaction.
type Registry interface {
	// Author returns the mutable working copy of an author.
	Author(id int64) (*model.Author, bool)
	// LookupLink resolves an author link to its current owner.
	LookupLink(l model.Link) (int64, bool)
	// RegisterLink binds an author link; see identity.Index.Register.
	RegisterLink(l model.Link, id int64) error
	// AuthorsNamed returns authors having a name or alias whose
	// PersonName key equals key.
	AuthorsNamed(key string) []int64
	// CreateAuthor allocates a new, empty author.
	CreateAuthor() *model.Author
	// AbsorbAuthor folds absorbed into survivor and redirects it.
	AbsorbAuthor(survivor, absorbed int64) error
}

// Mention is an author mention in the context of the paper it was found on.
type Mention struct {
	model.AuthorMention
	ID      string
	PaperID int64
}

// Outcome says how a mention was resolved.
type Outcome string

// Outcomes.
const (
	OutcomeLink    Outcome = "link"
	OutcomeName    Outcome = "name"
	OutcomeCreated Outcome = "created"
)

// AmbiguousAuthorError records a mention whose name matched several
// authors with no link to tell them apart. It is reported, never returned
// as a failure: the mention gets a new author of its own.
type AmbiguousAuthorError struct {
	MentionID  string
	PaperID    int64
	Name       string
	Candidates []int64
	Created    int64
}

func (e *AmbiguousAuthorError) Error() string {
	return fmt.Sprintf("author: mention %s (%q) matches %d authors %v", e.MentionID, e.Name, len(e.Candidates), e.Candidates)
}

// Result describes a reconciled mention. Conflicts lists the link
// conflicts resolved by absorbing another author into AuthorID.
type Result struct {
	AuthorID  int64
	Outcome   Outcome
	Absorbed  []int64
	Conflicts []*identity.ConflictError
	Ambiguity *AmbiguousAuthorError
}

// Reconciler maps author mentions onto canonical authors.
type Reconciler struct {
	cfg Config
	log *zap.Logger
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.NameSimilarity <= 0 || cfg.NameSimilarity > 1 {
		cfg.NameSimilarity = 1
	}
	return &Reconciler{cfg: cfg, log: zap.L().With(zap.String("component", "author"))}
}

// Reconcile resolves m against reg. paper is the paper the mention was found
// on, as it stood before the current record; exclude holds authors already
// claimed by earlier mentions of the same record.
func (r *Reconciler) Reconcile(reg Registry, m Mention, paper *model.Paper, exclude map[int64]bool) (Result, error) {
	hits, via := linkHits(reg, m.Links)
	if len(hits) > 0 {
		survivor := merge.Survivor(hits, func(id int64) model.Quality {
			a, _ := reg.Author(id)
			return a.Quality
		})
		res := Result{AuthorID: survivor, Outcome: OutcomeLink}
		for _, id := range hits {
			if id == survivor {
				continue
			}
			ce := &identity.ConflictError{Kind: model.KindAuthor, Link: via[id], Held: id, Claimed: survivor}
			r.log.Warn("author link conflict, merging authors",
				zap.Error(ce),
				zap.Int64("survivor", survivor),
				zap.Int64("absorbed", id),
				zap.String("mention", m.ID),
			)
			if err := reg.AbsorbAuthor(survivor, id); err != nil {
				return Result{}, err
			}
			res.Absorbed = append(res.Absorbed, id)
			res.Conflicts = append(res.Conflicts, ce)
		}

		// A link-less co-author with the mention's name is the same person
		// seen first through a source that carried no author links.
		if dup, ok := r.coauthorDuplicate(reg, m, paper, exclude, survivor); ok {
			r.log.Info("merging link-less co-author into linked author",
				zap.Int64("survivor", survivor),
				zap.Int64("absorbed", dup),
				zap.String("mention", m.ID),
			)
			if err := reg.AbsorbAuthor(survivor, dup); err != nil {
				return Result{}, err
			}
			res.Absorbed = append(res.Absorbed, dup)
		}
		return res, r.attach(reg, survivor, m)
	}

	candidates := r.candidates(reg, m, paper, exclude)
	switch len(candidates) {
	case 1:
		return Result{AuthorID: candidates[0], Outcome: OutcomeName}, r.attach(reg, candidates[0], m)
	case 0:
		a := reg.CreateAuthor()
		return Result{AuthorID: a.ID, Outcome: OutcomeCreated}, r.attach(reg, a.ID, m)
	default:
		a := reg.CreateAuthor()
		amb := &AmbiguousAuthorError{
			MentionID:  m.ID,
			PaperID:    m.PaperID,
			Name:       m.Name,
			Candidates: candidates,
			Created:    a.ID,
		}
		r.log.Info("ambiguous author mention", zap.Error(amb))
		return Result{AuthorID: a.ID, Outcome: OutcomeCreated, Ambiguity: amb}, r.attach(reg, a.ID, m)
	}
}

// linkHits returns the distinct authors holding any of links, ascending,
// and for each the first link that resolved to it.
func linkHits(reg Registry, links []model.Link) ([]int64, map[int64]model.Link) {
	via := make(map[int64]model.Link)
	var ids []int64
	for _, l := range links {
		id, ok := reg.LookupLink(l)
		if !ok {
			continue
		}
		if _, seen := via[id]; !seen {
			via[id] = l
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, via
}

// coauthorDuplicate finds the single author on paper, other than survivor
// and the excluded ones, whose name matches m and whose links do not
// contradict survivor's.
func (r *Reconciler) coauthorDuplicate(reg Registry, m Mention, paper *model.Paper, exclude map[int64]bool, survivor int64) (int64, bool) {
	key := normalize.PersonName(m.Name)
	if key == "" || paper == nil {
		return 0, false
	}
	s, ok := reg.Author(survivor)
	if !ok {
		return 0, false
	}
	var found []int64
	for _, pa := range paper.Authors {
		id := pa.AuthorID
		if id == survivor || exclude[id] || slices.Contains(found, id) {
			continue
		}
		a, ok := reg.Author(id)
		if ok && r.nameMatches(a, key) {
			found = append(found, id)
		}
	}
	if len(found) != 1 {
		return 0, false
	}
	a, _ := reg.Author(found[0])
	if LinksConflict(s.Links, a.Links) {
		return 0, false
	}
	return found[0], true
}

// LinksConflict reports whether a and b both hold links of some type but
// share none of that type's identifiers.
func LinksConflict(a, b []model.Link) bool {
	for _, l := range a {
		if !model.HasLinkType(b, l.Type) {
			continue
		}
		shared := false
		for _, other := range a {
			if other.Type == l.Type && slices.Contains(b, other) {
				shared = true
				break
			}
		}
		if !shared {
			return true
		}
	}
	return false
}

// MergeCoauthors reconciles the authors of two papers being merged into
// paperID. Each author in incoming that is not also in kept is matched by
// name against kept. A unique match whose links agree is absorbed, the
// higher quality author surviving. Several matches, or one whose links
// contradict, are reported as ambiguities and both authors stay.
func (r *Reconciler) MergeCoauthors(reg Registry, paperID int64, kept, incoming []int64) ([]int64, []*AmbiguousAuthorError, error) {
	kept = sortedUnique(kept)
	taken := make(map[int64]bool, len(kept))
	for _, id := range kept {
		taken[id] = false
	}

	var absorbed []int64
	var ambiguities []*AmbiguousAuthorError
	for _, in := range sortedUnique(incoming) {
		if _, shared := taken[in]; shared {
			continue
		}
		a, ok := reg.Author(in)
		if !ok {
			continue
		}
		keys := Keys(a)
		var matches []int64
		for _, k := range kept {
			if taken[k] {
				continue
			}
			ka, ok := reg.Author(k)
			if ok && r.anyNameMatches(ka, keys) {
				matches = append(matches, k)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) == 1 {
			ka, _ := reg.Author(matches[0])
			if !LinksConflict(ka.Links, a.Links) {
				pair := []int64{matches[0], in}
				survivor := merge.Survivor(pair, func(id int64) model.Quality {
					x, _ := reg.Author(id)
					return x.Quality
				})
				loser := pair[0]
				if loser == survivor {
					loser = pair[1]
				}
				r.log.Info("merging same-named authors of merged papers",
					zap.Int64("paper", paperID),
					zap.Int64("survivor", survivor),
					zap.Int64("absorbed", loser),
				)
				if err := reg.AbsorbAuthor(survivor, loser); err != nil {
					return nil, nil, err
				}
				taken[matches[0]] = true
				absorbed = append(absorbed, loser)
				continue
			}
		}
		amb := &AmbiguousAuthorError{
			MentionID:  mentionOn(a, paperID),
			PaperID:    paperID,
			Name:       a.Name,
			Candidates: matches,
			Created:    in,
		}
		r.log.Info("ambiguous author after paper merge", zap.Error(amb))
		ambiguities = append(ambiguities, amb)
	}
	return absorbed, ambiguities, nil
}

func (r *Reconciler) anyNameMatches(a *model.Author, keys []string) bool {
	for _, k := range keys {
		if r.nameMatches(a, k) {
			return true
		}
	}
	return false
}

// mentionOn returns the id of a's first mention on paperID, or of its first
// mention at all.
func mentionOn(a *model.Author, paperID int64) string {
	for _, m := range a.Mentions {
		if m.PaperID == paperID {
			return m.ID
		}
	}
	if len(a.Mentions) > 0 {
		return a.Mentions[0].ID
	}
	return ""
}

func sortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *Reconciler) candidates(reg Registry, m Mention, paper *model.Paper, exclude map[int64]bool) []int64 {
	key := normalize.PersonName(m.Name)
	if key == "" {
		return nil
	}
	found := make(map[int64]bool)

	if paper != nil {
		for _, pa := range paper.Authors {
			if exclude[pa.AuthorID] || found[pa.AuthorID] {
				continue
			}
			a, ok := reg.Author(pa.AuthorID)
			if ok && r.nameMatches(a, key) {
				found[pa.AuthorID] = true
			}
		}
	}

	if r.cfg.SharedNamespace && len(m.Links) > 0 {
		for _, id := range reg.AuthorsNamed(key) {
			if exclude[id] || found[id] {
				continue
			}
			a, ok := reg.Author(id)
			if ok && sharesNamespace(a.Links, m.Links) {
				found[id] = true
			}
		}
	}

	ids := make([]int64, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Reconciler) nameMatches(a *model.Author, key string) bool {
	for _, name := range append([]string{a.Name}, a.Aliases...) {
		if normalize.Similarity(normalize.PersonName(name), key) >= r.cfg.NameSimilarity {
			return true
		}
	}
	return false
}

func sharesNamespace(held, offered []model.Link) bool {
	for _, l := range offered {
		if model.HasLinkType(held, l.Type) {
			return true
		}
	}
	return false
}

// attach adds the mention to the author, registers its links and refreshes
// the author's derived fields.
func (r *Reconciler) attach(reg Registry, id int64, m Mention) error {
	a, ok := reg.Author(id)
	if !ok {
		return &model.NotFoundError{Kind: "author", ID: fmt.Sprint(id)}
	}
	AddMention(a, model.MentionRef{
		ID:      m.ID,
		PaperID: m.PaperID,
		Name:    m.Name,
		Links:   m.Links,
		Quality: m.Quality,
	})
	for _, l := range m.Links {
		if err := reg.RegisterLink(l, id); err != nil {
			return err
		}
	}
	return nil
}
