package engine

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/author"
	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
)

// MergePapers merges two papers the matcher kept apart. The survivor is
// chosen as for a link conflict: higher quality, then lower id.
func (e *Engine) MergePapers(ctx context.Context, a, b int64) (*model.Paper, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ra, rb := e.resolve(model.KindPaper, a), e.resolve(model.KindPaper, b)
	for _, id := range []int64{ra, rb} {
		if _, ok := e.papers[id]; !ok {
			return nil, &model.NotFoundError{Kind: "paper", ID: strconv.FormatInt(id, 10)}
		}
	}
	if ra == rb {
		return e.papers[ra].Clone(), nil
	}

	t := e.begin()
	survivorID := merge.Survivor([]int64{ra, rb}, func(id int64) model.Quality { return e.papers[id].Quality })
	absorbedID := ra
	if survivorID == ra {
		absorbedID = rb
	}
	survivor, _ := t.paper(survivorID)
	absorbed, _ := t.paper(absorbedID)
	if _, err := t.absorbPaper(survivor, absorbed); err != nil {
		t.rollback()
		return nil, err
	}

	if err := t.finish(ctx, "merge_papers"); err != nil {
		return nil, err
	}
	e.log.Info("engine: papers merged",
		zap.Int64("survivor", survivorID),
		zap.Int64("absorbed", absorbedID),
	)
	return e.papers[survivorID].Clone(), nil
}

// SplitAuthor moves the given mentions off an author onto a new author,
// undoing a wrong name match. The mentions must be a non-empty proper
// subset of the author's mentions, and no identity link may be attested on
// both sides of the split.
func (e *Engine) SplitAuthor(ctx context.Context, authorID int64, mentionIDs []string) (*model.Author, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.resolve(model.KindAuthor, authorID)
	current, ok := e.authors[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "author", ID: strconv.FormatInt(authorID, 10)}
	}

	want := make(map[string]bool, len(mentionIDs))
	for _, m := range mentionIDs {
		want[m] = true
	}
	if len(want) == 0 {
		return nil, &model.ValidationError{Field: "mentions", Reason: "no mentions to split off"}
	}
	held := make(map[string]bool, len(current.Mentions))
	for _, m := range current.Mentions {
		held[m.ID] = true
	}
	for m := range want {
		if !held[m] {
			return nil, &model.ValidationError{Field: "mentions", Reason: "mention " + m + " is not attributed to author " + strconv.FormatInt(id, 10)}
		}
	}
	if len(want) == len(held) {
		return nil, &model.ValidationError{Field: "mentions", Reason: "cannot split off every mention"}
	}

	moved, kept := author.Partition(current, want)
	keptLinks := make(map[model.Link]bool)
	for _, m := range kept {
		for _, l := range m.Links {
			keptLinks[l] = true
		}
	}
	for _, m := range moved {
		for _, l := range m.Links {
			if keptLinks[l] {
				return nil, &model.ValidationError{Field: "mentions", Reason: "link " + l.String() + " is attested on both sides"}
			}
		}
	}

	t := e.begin()
	old, _ := t.Author(id)
	created := t.CreateAuthor()
	old.Mentions = kept
	author.Rebuild(old)
	created.Mentions = moved
	author.Rebuild(created)

	for _, l := range created.Links {
		e.authorIx.Remove(l)
		if err := e.authorIx.Register(l, created.ID); err != nil {
			t.rollback()
			return nil, err
		}
	}

	for _, m := range moved {
		fp, pos, err := model.ParseMentionID(m.ID)
		if err != nil {
			t.rollback()
			return nil, err
		}
		p, ok := t.paper(t.resolve(model.KindPaper, m.PaperID))
		if !ok {
			continue
		}
		ci := p.ContributionIndex(fp)
		if ci < 0 || pos >= len(p.Contributions[ci].AuthorIDs) {
			continue
		}
		p.Contributions[ci].AuthorIDs[pos] = created.ID
	}

	if err := t.finish(ctx, "split_author"); err != nil {
		return nil, err
	}
	e.log.Info("engine: author split",
		zap.Int64("author", id),
		zap.Int64("created", created.ID),
		zap.Int("mentions", len(moved)),
	)
	return e.authors[created.ID].Clone(), nil
}
