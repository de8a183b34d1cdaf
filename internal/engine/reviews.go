package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/model"
)

// Reviews returns the open review items, oldest first.
func (e *Engine) Reviews() []model.Review {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Review, 0, len(e.reviews))
	for _, rv := range e.reviews {
		out = append(out, rv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveReview closes a review item. Any correction it called for is made
// separately with MergePapers or SplitAuthor.
func (e *Engine) ResolveReview(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.reviews[id]; !ok {
		return &model.NotFoundError{Kind: "review", ID: id}
	}
	t := e.begin()
	t.resolved = append(t.resolved, id)
	if err := t.finish(ctx, "resolve_review"); err != nil {
		return err
	}
	e.log.Info("engine: review resolved", zap.String("review", id))
	return nil
}
