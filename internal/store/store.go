package store

import (
	"context"
	"time"

	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
)

// ChangeSet is every entity write produced by one engine transaction. Commit
// applies it atomically: deletions first, then saves, redirects and reviews.
type ChangeSet struct {
	Papers          []*model.Paper
	DeletedPapers   []int64
	Authors         []*model.Author
	DeletedAuthors  []int64
	Redirects       []model.Redirect
	Reviews         []model.Review
	ResolvedReviews []string
}

// Empty reports whether cs carries no writes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Papers) == 0 && len(cs.DeletedPapers) == 0 &&
		len(cs.Authors) == 0 && len(cs.DeletedAuthors) == 0 &&
		len(cs.Redirects) == 0 && len(cs.Reviews) == 0 && len(cs.ResolvedReviews) == 0
}

// Snapshot is the full persisted state, used to hydrate the engine.
type Snapshot struct {
	Papers    []*model.Paper
	Authors   []*model.Author
	Redirects []model.Redirect
	Reviews   []model.Review
}

// Store defines the persistence interface for canonical papers and authors.
// Load methods return (nil, nil) when the entity does not exist.
type Store interface {
	// Papers
	LoadPaper(ctx context.Context, id int64) (*model.Paper, error)
	LoadPaperByLink(ctx context.Context, link model.Link) (*model.Paper, error)
	SavePaper(ctx context.Context, p *model.Paper) error
	DeletePaper(ctx context.Context, id int64) error

	// Authors
	LoadAuthor(ctx context.Context, id int64) (*model.Author, error)
	LoadAuthorByLink(ctx context.Context, link model.Link) (*model.Author, error)
	SaveAuthor(ctx context.Context, a *model.Author) error
	DeleteAuthor(ctx context.Context, id int64) error

	// Reviews
	ListReviews(ctx context.Context) ([]model.Review, error)

	// Batches
	Commit(ctx context.Context, cs *ChangeSet) error
	LoadAll(ctx context.Context) (*Snapshot, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	// LockWriter makes the caller the database's only writer until release
	// is called. It returns ErrWriterLocked when another process writes.
	LockWriter(ctx context.Context) (release func(), err error)
	Close() error
}
