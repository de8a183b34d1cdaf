// Package engine is the match engine: it folds raw records into canonical
// papers and authors, keeps the identity indexes consistent and persists
// every change through the store as one atomic unit per operation.
package engine

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/author"
	"github.com/sells-group/bibmerge/internal/identity"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
	"github.com/sells-group/bibmerge/internal/release"
	"github.com/sells-group/bibmerge/internal/store"
)

// Config holds the matching thresholds.
type Config struct {
	// TitleSimilarity is the minimum similarity between squashed titles for
	// a fuzzy paper match. 1 requires equal squashed titles.
	TitleSimilarity float64
	// NameSimilarity is the author name threshold; see author.Config.
	NameSimilarity float64
	// SharedNamespaceAuthors widens author name matching beyond co-authors.
	SharedNamespaceAuthors bool
	// DateToleranceDays widens release date compatibility.
	DateToleranceDays int
}

// DefaultConfig returns exact-match thresholds.
func DefaultConfig() Config {
	return Config{TitleSimilarity: 1, NameSimilarity: 1}
}

// Engine owns the in-memory arena of canonical entities. All mutations are
// serialized behind mu; each one is committed to the store before it becomes
// visible.
type Engine struct {
	mu    sync.RWMutex
	store store.Store
	cfg   Config
	log   *zap.Logger
	now   func() time.Time

	reconciler *author.Reconciler
	releases   *release.Merger

	papers    map[int64]*model.Paper
	authors   map[int64]*model.Author
	paperIx   *identity.Index
	authorIx  *identity.Index
	redirects map[model.EntityKind]map[int64]int64
	reviews   map[string]model.Review

	// fingerprints maps every folded record to the paper holding it.
	fingerprints map[string]int64
	// nameKeys maps a normalized author name to the papers it appears on.
	nameKeys map[string]map[int64]struct{}
	// authorNames maps a normalized name or alias to the authors carrying it.
	authorNames map[string]map[int64]struct{}

	nextPaperID  int64
	nextAuthorID int64
}

// New creates an empty Engine backed by st. Call Load to hydrate it from
// previously persisted state.
func New(st store.Store, cfg Config) *Engine {
	if cfg.TitleSimilarity <= 0 || cfg.TitleSimilarity > 1 {
		cfg.TitleSimilarity = 1
	}
	e := &Engine{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "engine")),
		now:   func() time.Time { return time.Now().UTC() },
		reconciler: author.New(author.Config{
			NameSimilarity:  cfg.NameSimilarity,
			SharedNamespace: cfg.SharedNamespaceAuthors,
		}),
		releases: release.New(release.Config{DateToleranceDays: cfg.DateToleranceDays}),
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.papers = make(map[int64]*model.Paper)
	e.authors = make(map[int64]*model.Author)
	e.paperIx = identity.New(model.KindPaper)
	e.authorIx = identity.New(model.KindAuthor)
	e.redirects = map[model.EntityKind]map[int64]int64{
		model.KindPaper:  {},
		model.KindAuthor: {},
	}
	e.reviews = make(map[string]model.Review)
	e.fingerprints = make(map[string]int64)
	e.nameKeys = make(map[string]map[int64]struct{})
	e.authorNames = make(map[string]map[int64]struct{})
	e.nextPaperID = 1
	e.nextAuthorID = 1
}

// Load replaces the in-memory state with the store's snapshot.
func (e *Engine) Load(ctx context.Context) error {
	snap, err := e.store.LoadAll(ctx)
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()

	for _, p := range snap.Papers {
		e.papers[p.ID] = p
		for _, l := range p.Links {
			if err := e.paperIx.Register(l, p.ID); err != nil {
				e.log.Warn("load: duplicate paper link", zap.Error(err))
			}
		}
		e.indexPaper(p)
		e.bumpPaperID(p.ID)
	}
	for _, a := range snap.Authors {
		e.authors[a.ID] = a
		for _, l := range a.Links {
			if err := e.authorIx.Register(l, a.ID); err != nil {
				e.log.Warn("load: duplicate author link", zap.Error(err))
			}
		}
		e.indexAuthor(a)
		e.bumpAuthorID(a.ID)
	}
	for _, r := range snap.Redirects {
		e.redirects[r.Kind][r.From] = r.To
		switch r.Kind {
		case model.KindPaper:
			e.bumpPaperID(r.From)
		case model.KindAuthor:
			e.bumpAuthorID(r.From)
		}
	}
	for _, rv := range snap.Reviews {
		e.reviews[rv.ID] = rv
	}

	e.log.Info("engine: loaded",
		zap.Int("papers", len(e.papers)),
		zap.Int("authors", len(e.authors)),
		zap.Int("redirects", len(snap.Redirects)),
		zap.Int("reviews", len(e.reviews)),
	)
	return nil
}

func (e *Engine) bumpPaperID(id int64) {
	if id >= e.nextPaperID {
		e.nextPaperID = id + 1
	}
}

func (e *Engine) bumpAuthorID(id int64) {
	if id >= e.nextAuthorID {
		e.nextAuthorID = id + 1
	}
}

// resolve follows redirects from id to the entity that absorbed it.
func (e *Engine) resolve(kind model.EntityKind, id int64) int64 {
	seen := 0
	for {
		to, ok := e.redirects[kind][id]
		if !ok || seen > len(e.redirects[kind]) {
			return id
		}
		id = to
		seen++
	}
}

// Paper returns a copy of the paper with the given id, following redirects
// left by merges.
func (e *Engine) Paper(id int64) (*model.Paper, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.papers[e.resolve(model.KindPaper, id)]
	if !ok {
		return nil, &model.NotFoundError{Kind: "paper", ID: strconv.FormatInt(id, 10)}
	}
	return p.Clone(), nil
}

// Author returns a copy of the author with the given id, following
// redirects left by merges.
func (e *Engine) Author(id int64) (*model.Author, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.authors[e.resolve(model.KindAuthor, id)]
	if !ok {
		return nil, &model.NotFoundError{Kind: "author", ID: strconv.FormatInt(id, 10)}
	}
	return a.Clone(), nil
}

// PaperByLink returns the paper currently holding l.
func (e *Engine) PaperByLink(l model.Link) (*model.Paper, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.paperIx.Lookup(model.CanonicalizeLink(l))
	if !ok {
		return nil, false
	}
	return e.papers[id].Clone(), true
}

// AuthorByLink returns the author currently holding l.
func (e *Engine) AuthorByLink(l model.Link) (*model.Author, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.authorIx.Lookup(model.CanonicalizeLink(l))
	if !ok {
		return nil, false
	}
	return e.authors[id].Clone(), true
}

// Stats summarizes the arena.
type Stats struct {
	Papers      int `json:"papers" yaml:"papers"`
	Authors     int `json:"authors" yaml:"authors"`
	PaperLinks  int `json:"paper_links" yaml:"paper_links"`
	AuthorLinks int `json:"author_links" yaml:"author_links"`
	Redirects   int `json:"redirects" yaml:"redirects"`
	Reviews     int `json:"reviews" yaml:"reviews"`
	Records     int `json:"records" yaml:"records"`
}

// Stats returns current counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Papers:      len(e.papers),
		Authors:     len(e.authors),
		PaperLinks:  e.paperIx.Len(),
		AuthorLinks: e.authorIx.Len(),
		Redirects:   len(e.redirects[model.KindPaper]) + len(e.redirects[model.KindAuthor]),
		Reviews:     len(e.reviews),
		Records:     len(e.fingerprints),
	}
}

// Authors returns copies of every author, ordered by id.
func (e *Engine) Authors() []model.Author {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]int64, 0, len(e.authors))
	for id := range e.authors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]model.Author, len(ids))
	for i, id := range ids {
		out[i] = *e.authors[id].Clone()
	}
	return out
}

// indexPaper adds p to the secondary lookups.
func (e *Engine) indexPaper(p *model.Paper) {
	for _, c := range p.Contributions {
		e.fingerprints[c.Fingerprint] = p.ID
		for _, a := range c.Record.Authors {
			addKey(e.nameKeys, normalize.PersonName(a.Name), p.ID)
		}
	}
}

func (e *Engine) unindexPaper(p *model.Paper) {
	for _, c := range p.Contributions {
		if e.fingerprints[c.Fingerprint] == p.ID {
			delete(e.fingerprints, c.Fingerprint)
		}
		for _, a := range c.Record.Authors {
			removeKey(e.nameKeys, normalize.PersonName(a.Name), p.ID)
		}
	}
}

func (e *Engine) indexAuthor(a *model.Author) {
	for _, k := range author.Keys(a) {
		addKey(e.authorNames, k, a.ID)
	}
}

func (e *Engine) unindexAuthor(a *model.Author) {
	for _, k := range author.Keys(a) {
		removeKey(e.authorNames, k, a.ID)
	}
}

func addKey(m map[string]map[int64]struct{}, key string, id int64) {
	if key == "" {
		return
	}
	set, ok := m[key]
	if !ok {
		set = make(map[int64]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeKey(m map[string]map[int64]struct{}, key string, id int64) {
	set := m[key]
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
