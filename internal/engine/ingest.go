package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/author"
	"github.com/sells-group/bibmerge/internal/identity"
	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// State is how an ingested record found its paper.
type State string

// Match states. Every successful ingest ends MERGED; State records the path
// taken to get there.
const (
	StateIdentityHit State = "identity_hit"
	StateFuzzyHit    State = "fuzzy_hit"
	StateNoMatch     State = "no_match"
	// StateDuplicate marks a record already folded into a paper.
	StateDuplicate State = "duplicate"
)

// Result describes one ingest.
type Result struct {
	Paper *model.Paper
	State State
	// Absorbed lists papers merged into Paper because the record linked them.
	Absorbed []int64
	// Conflicts counts identity conflicts resolved by merging, papers and
	// authors together.
	Conflicts int
	Reviews   []model.Review
}

// Ingest folds rec into the canonical paper it describes and returns that
// paper. It is the only way records enter the engine.
func (e *Engine) Ingest(ctx context.Context, rec model.RawRecord) (*model.Paper, error) {
	res, err := e.IngestRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	return res.Paper, nil
}

// IngestRecord is Ingest reporting how the record was matched.
func (e *Engine) IngestRecord(ctx context.Context, rec model.RawRecord) (*Result, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec = rec.Normalize()
	fp := rec.Fingerprint()

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.fingerprints[fp]; ok {
		if p, ok := e.papers[e.resolve(model.KindPaper, id)]; ok {
			return &Result{Paper: p.Clone(), State: StateDuplicate}, nil
		}
	}

	t := e.begin()
	res := &Result{}
	p, state, err := t.match(rec, res)
	if err != nil {
		t.rollback()
		return nil, eris.Wrap(err, "engine: ingest")
	}
	res.State = state

	if err := t.fold(p, fp, rec, res); err != nil {
		t.rollback()
		return nil, eris.Wrap(err, "engine: ingest")
	}
	if err := t.finish(ctx, "ingest"); err != nil {
		return nil, err
	}
	res.Reviews = t.reviews

	res.Paper = e.papers[p.ID].Clone()
	e.log.Debug("engine: ingested",
		zap.String("source", rec.Source),
		zap.String("fingerprint", fp),
		zap.String("state", string(state)),
		zap.Int64("paper_id", p.ID),
		zap.Int64s("absorbed", res.Absorbed),
	)
	return res, nil
}

// match runs the identity and fuzzy lookups and returns the working copy of
// the paper the record belongs to, creating one when nothing matches.
func (t *txn) match(rec model.RawRecord, res *Result) (*model.Paper, State, error) {
	e := t.e

	var hits []int64
	via := make(map[int64]model.Link)
	for _, l := range rec.Links {
		id, ok := e.paperIx.Lookup(l)
		if !ok {
			continue
		}
		if _, dup := via[id]; !dup {
			via[id] = l
			hits = append(hits, id)
		}
	}

	if len(hits) > 0 {
		survivorID := merge.Survivor(hits, func(id int64) model.Quality {
			p, _ := t.paper(id)
			return p.Quality
		})
		survivor, _ := t.paper(survivorID)
		for _, id := range hits {
			if id == survivorID {
				continue
			}
			absorbed, _ := t.paper(id)
			e.log.Warn("paper link conflict, merging papers",
				zap.Error(&identity.ConflictError{Kind: model.KindPaper, Link: via[id], Held: id, Claimed: survivorID}),
				zap.Int64("survivor", survivorID),
				zap.Int64("absorbed", id),
			)
			authors, err := t.absorbPaper(survivor, absorbed)
			if err != nil {
				return nil, "", eris.Wrapf(err, "absorb paper %d", id)
			}
			res.Absorbed = append(res.Absorbed, id)
			res.Conflicts += 1 + authors
		}
		return survivor, StateIdentityHit, nil
	}

	if id, ok := e.fuzzyMatch(rec); ok {
		p, _ := t.paper(id)
		return p, StateFuzzyHit, nil
	}
	return t.createPaper(), StateNoMatch, nil
}

// fuzzyMatch looks for a paper that shares at least one normalized author
// name with rec and whose title, or the title of one of its records, is
// similar enough to rec's.
func (e *Engine) fuzzyMatch(rec model.RawRecord) (int64, bool) {
	title := normalize.Squash(rec.Title)
	if title == "" {
		return 0, false
	}

	cands := make(map[int64]struct{})
	for _, a := range rec.Authors {
		for id := range e.nameKeys[normalize.PersonName(a.Name)] {
			cands[id] = struct{}{}
		}
	}

	var best *model.Paper
	var bestSim float64
	for _, id := range sortedIDs(cands) {
		p, ok := e.papers[id]
		if !ok {
			continue
		}
		sim := normalize.Similarity(normalize.Squash(p.Title), title)
		for _, c := range p.Contributions {
			if s := normalize.Similarity(normalize.Squash(c.Record.Title), title); s > sim {
				sim = s
			}
		}
		if sim < e.cfg.TitleSimilarity {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && p.Quality > best.Quality) {
			best, bestSim = p, sim
		}
	}
	if best == nil {
		return 0, false
	}
	return best.ID, true
}

// fold reconciles rec's authors, attaches rec to p and registers its links.
func (t *txn) fold(p *model.Paper, fp string, rec model.RawRecord, res *Result) error {
	e := t.e
	ids := make([]int64, len(rec.Authors))
	claimed := make(map[int64]bool)

	for i, am := range rec.Authors {
		m := author.Mention{AuthorMention: am, ID: model.MentionID(fp, i), PaperID: p.ID}
		r, err := e.reconciler.Reconcile(t, m, p, claimed)
		if err != nil {
			return eris.Wrapf(err, "reconcile author %d", i)
		}
		ids[i] = r.AuthorID
		claimed[r.AuthorID] = true
		res.Conflicts += len(r.Absorbed)
		if r.Ambiguity != nil {
			t.review(r.Ambiguity)
		}
	}
	// A later mention may have absorbed the author of an earlier one.
	for i := range ids {
		ids[i] = t.resolve(model.KindAuthor, ids[i])
	}

	p.Contributions = append(p.Contributions, model.Contribution{
		Fingerprint: fp,
		Record:      rec,
		AuthorIDs:   ids,
	})
	for _, l := range rec.Links {
		if err := e.paperIx.Register(l, p.ID); err != nil {
			return eris.Wrap(err, "register paper link")
		}
	}
	e.rebuildPaper(p)
	return nil
}
