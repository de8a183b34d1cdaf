package engine

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/author"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/store"
)

// txn stages one operation's mutations. Entities are cloned on first touch
// so the committed arena is untouched until the store accepts the change
// set. Identity index writes are journaled and undone on rollback.
type txn struct {
	e   *Engine
	now time.Time

	papers         map[int64]*model.Paper
	authors        map[int64]*model.Author
	deletedPapers  map[int64]bool
	deletedAuthors map[int64]bool
	redirects      []model.Redirect
	forward        map[model.EntityKind]map[int64]int64
	reviews        []model.Review
	resolved       []string

	nextPaperID  int64
	nextAuthorID int64
}

// begin opens a transaction. The caller holds e.mu.
func (e *Engine) begin() *txn {
	e.paperIx.Begin()
	e.authorIx.Begin()
	return &txn{
		e:              e,
		now:            e.now(),
		papers:         make(map[int64]*model.Paper),
		authors:        make(map[int64]*model.Author),
		deletedPapers:  make(map[int64]bool),
		deletedAuthors: make(map[int64]bool),
		forward: map[model.EntityKind]map[int64]int64{
			model.KindPaper:  {},
			model.KindAuthor: {},
		},
		nextPaperID:  e.nextPaperID,
		nextAuthorID: e.nextAuthorID,
	}
}

func (t *txn) resolve(kind model.EntityKind, id int64) int64 {
	for i := 0; i <= len(t.forward[kind]); i++ {
		to, ok := t.forward[kind][id]
		if !ok {
			break
		}
		id = to
	}
	return t.e.resolve(kind, id)
}

// paper returns the working copy of a paper.
func (t *txn) paper(id int64) (*model.Paper, bool) {
	if t.deletedPapers[id] {
		return nil, false
	}
	if p, ok := t.papers[id]; ok {
		return p, true
	}
	p, ok := t.e.papers[id]
	if !ok {
		return nil, false
	}
	wp := p.Clone()
	t.papers[id] = wp
	return wp, true
}

func (t *txn) createPaper() *model.Paper {
	p := &model.Paper{ID: t.e.nextPaperID, CreatedAt: t.now, UpdatedAt: t.now}
	t.e.nextPaperID++
	t.papers[p.ID] = p
	return p
}

func (t *txn) redirect(kind model.EntityKind, from, to int64) {
	t.redirects = append(t.redirects, model.Redirect{Kind: kind, From: from, To: to})
	t.forward[kind][from] = to
}

// absorbPaper folds absorbed into survivor: contributions move, author
// mentions are re-pointed, links are reassigned and absorbed is deleted
// behind a redirect. Same-named authors of the two papers are then merged,
// or queued for review when the match is not clean. It returns the number
// of authors absorbed.
func (t *txn) absorbPaper(survivor, absorbed *model.Paper) (int, error) {
	kept := t.authorIDs(survivor)
	incoming := t.authorIDs(absorbed)

	for _, c := range absorbed.Contributions {
		if survivor.ContributionIndex(c.Fingerprint) >= 0 {
			continue
		}
		survivor.Contributions = append(survivor.Contributions, c)
		for _, aid := range c.AuthorIDs {
			a, ok := t.Author(t.resolve(model.KindAuthor, aid))
			if !ok {
				continue
			}
			for i := range a.Mentions {
				if a.Mentions[i].PaperID == absorbed.ID {
					a.Mentions[i].PaperID = survivor.ID
				}
			}
		}
	}
	t.e.paperIx.Reassign(absorbed.ID, survivor.ID)
	t.redirect(model.KindPaper, absorbed.ID, survivor.ID)
	t.deletedPapers[absorbed.ID] = true
	delete(t.papers, absorbed.ID)

	merged, ambiguities, err := t.e.reconciler.MergeCoauthors(t, survivor.ID, kept, incoming)
	if err != nil {
		return 0, err
	}
	for _, amb := range ambiguities {
		t.review(amb)
	}
	t.e.rebuildPaper(survivor)
	return len(merged), nil
}

// authorIDs returns the current ids of p's authors.
func (t *txn) authorIDs(p *model.Paper) []int64 {
	ids := make([]int64, 0, len(p.Authors))
	for _, pa := range p.Authors {
		ids = append(ids, t.resolve(model.KindAuthor, pa.AuthorID))
	}
	return ids
}

// Author implements author.Registry.
func (t *txn) Author(id int64) (*model.Author, bool) {
	if t.deletedAuthors[id] {
		return nil, false
	}
	if a, ok := t.authors[id]; ok {
		return a, true
	}
	a, ok := t.e.authors[id]
	if !ok {
		return nil, false
	}
	wa := a.Clone()
	t.authors[id] = wa
	return wa, true
}

// LookupLink implements author.Registry.
func (t *txn) LookupLink(l model.Link) (int64, bool) {
	return t.e.authorIx.Lookup(l)
}

// RegisterLink implements author.Registry.
func (t *txn) RegisterLink(l model.Link, id int64) error {
	return t.e.authorIx.Register(l, id)
}

// AuthorsNamed implements author.Registry.
func (t *txn) AuthorsNamed(key string) []int64 {
	found := make(map[int64]struct{})
	for id := range t.e.authorNames[key] {
		if _, touched := t.authors[id]; !touched && !t.deletedAuthors[id] {
			found[id] = struct{}{}
		}
	}
	for id, a := range t.authors {
		for _, k := range author.Keys(a) {
			if k == key {
				found[id] = struct{}{}
				break
			}
		}
	}
	return sortedIDs(found)
}

// CreateAuthor implements author.Registry.
func (t *txn) CreateAuthor() *model.Author {
	a := &model.Author{ID: t.e.nextAuthorID, CreatedAt: t.now, UpdatedAt: t.now}
	t.e.nextAuthorID++
	t.authors[a.ID] = a
	return a
}

// AbsorbAuthor implements author.Registry.
func (t *txn) AbsorbAuthor(survivor, absorbed int64) error {
	s, ok := t.Author(survivor)
	if !ok {
		return &model.NotFoundError{Kind: "author", ID: strconv.FormatInt(survivor, 10)}
	}
	a, ok := t.Author(absorbed)
	if !ok {
		return &model.NotFoundError{Kind: "author", ID: strconv.FormatInt(absorbed, 10)}
	}
	paperIDs := a.PaperIDs()
	author.Absorb(s, a)
	t.e.authorIx.Reassign(absorbed, survivor)
	t.redirect(model.KindAuthor, absorbed, survivor)
	t.deletedAuthors[absorbed] = true
	delete(t.authors, absorbed)

	for _, pid := range paperIDs {
		p, ok := t.paper(t.resolve(model.KindPaper, pid))
		if !ok {
			continue
		}
		replaceAuthor(p, absorbed, survivor)
	}
	return nil
}

func replaceAuthor(p *model.Paper, from, to int64) {
	for ci := range p.Contributions {
		for i, id := range p.Contributions[ci].AuthorIDs {
			if id == from {
				p.Contributions[ci].AuthorIDs[i] = to
			}
		}
	}
}

func (t *txn) review(amb *author.AmbiguousAuthorError) model.Review {
	rv := model.Review{
		ID:           uuid.NewString(),
		Kind:         model.ReviewAmbiguousAuthor,
		MentionID:    amb.MentionID,
		PaperID:      amb.PaperID,
		AuthorID:     amb.Created,
		CandidateIDs: amb.Candidates,
		Name:         amb.Name,
		CreatedAt:    t.now,
	}
	t.reviews = append(t.reviews, rv)
	return rv
}

// changeSet rebuilds every touched paper and collects the writes.
func (t *txn) changeSet() *store.ChangeSet {
	cs := &store.ChangeSet{
		Redirects:       t.redirects,
		Reviews:         t.reviews,
		ResolvedReviews: t.resolved,
	}
	for _, id := range sortedKeys(t.papers) {
		p := t.papers[id]
		t.e.rebuildPaper(p)
		p.UpdatedAt = t.now
		cs.Papers = append(cs.Papers, p)
	}
	for _, id := range sortedKeys(t.authors) {
		a := t.authors[id]
		a.UpdatedAt = t.now
		cs.Authors = append(cs.Authors, a)
	}
	cs.DeletedPapers = sortedSet(t.deletedPapers)
	cs.DeletedAuthors = sortedSet(t.deletedAuthors)
	return cs
}

// finish commits the staged writes to the store and publishes them to the
// arena, or rolls everything back when the store refuses them.
func (t *txn) finish(ctx context.Context, op string) error {
	e := t.e
	cs := t.changeSet()
	if err := e.store.Commit(ctx, cs); err != nil {
		t.rollback()
		e.log.Error("engine: commit failed, rolled back", zap.String("op", op), zap.Error(err))
		return &StorageError{Op: op, Err: err}
	}
	e.paperIx.Commit()
	e.authorIx.Commit()

	for id := range t.papers {
		if old, ok := e.papers[id]; ok {
			e.unindexPaper(old)
		}
	}
	for id := range t.deletedPapers {
		if old, ok := e.papers[id]; ok {
			e.unindexPaper(old)
			delete(e.papers, id)
		}
	}
	for id, p := range t.papers {
		e.papers[id] = p
		e.indexPaper(p)
	}

	for id := range t.authors {
		if old, ok := e.authors[id]; ok {
			e.unindexAuthor(old)
		}
	}
	for id := range t.deletedAuthors {
		if old, ok := e.authors[id]; ok {
			e.unindexAuthor(old)
			delete(e.authors, id)
		}
	}
	for id, a := range t.authors {
		e.authors[id] = a
		e.indexAuthor(a)
	}

	for _, r := range t.redirects {
		e.redirects[r.Kind][r.From] = r.To
	}
	for _, rv := range t.reviews {
		e.reviews[rv.ID] = rv
	}
	for _, id := range t.resolved {
		delete(e.reviews, id)
	}
	return nil
}

func (t *txn) rollback() {
	t.e.paperIx.Rollback()
	t.e.authorIx.Rollback()
	t.e.nextPaperID = t.nextPaperID
	t.e.nextAuthorID = t.nextAuthorID
}

func sortedKeys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedSet(m map[int64]bool) []int64 {
	return sortedKeys(m)
}
