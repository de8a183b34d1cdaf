package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
	"github.com/sells-group/bibmerge/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	return newEngineOn(newTestStore(t), cfg)
}

func newEngineOn(st store.Store, cfg Config) *Engine {
	e := New(st, cfg)
	e.now = func() time.Time { return testNow }
	return e
}

func link(typ, id string) model.Link {
	return model.Link{Type: typ, Link: id}
}

func mention(name string, q float64, links ...model.Link) model.AuthorMention {
	return model.AuthorMention{Name: name, Links: links, Quality: model.Quality(q)}
}

func monthRelease(venue string, status model.ReleaseStatus, year int, month time.Month, q float64) model.ReleaseMention {
	return model.ReleaseMention{
		Venue:         model.Venue{Name: venue},
		Status:        status,
		Date:          time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		DatePrecision: model.PrecisionMonth,
		Quality:       model.Quality(q),
	}
}

func dayRelease(venue string, status model.ReleaseStatus, year int, month time.Month, day int, q float64) model.ReleaseMention {
	return model.ReleaseMention{
		Venue:         model.Venue{Name: venue},
		Status:        status,
		Date:          time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		DatePrecision: model.PrecisionDay,
		Quality:       model.Quality(q),
	}
}

// arxivRecord and scholarRecord are the two descriptions of the automatic
// differentiation survey used across tests.
func arxivRecord() model.RawRecord {
	return model.RawRecord{
		Source:   "arxiv",
		Title:    "Automatic differentiation in ML",
		Abstract: "Short abstract.",
		Links:    []model.Link{link(model.LinkArxiv, "1810.11530")},
		Authors: []model.AuthorMention{
			mention("Bart van Merrienboer", 0.6, link(model.LinkSemanticScholar, "3158246")),
			mention("Alexey Radul", 0.6),
		},
		Topics:   []string{"Machine Learning"},
		Releases: []model.ReleaseMention{monthRelease("arXiv", model.StatusPreprint, 2018, time.October, 0.6)},
		Quality:  0.6,
	}
}

func scholarRecord() model.RawRecord {
	return model.RawRecord{
		Source: "semantic_scholar",
		Title:  "Automatic differentiation in ML: Where we are and where we should be going",
		Links: []model.Link{
			link(model.LinkSemanticScholar, "e8a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3"),
			link(model.LinkArxiv, "1810.11530"),
		},
		Authors: []model.AuthorMention{
			mention("Bart van Merriënboer", 0.8, link(model.LinkSemanticScholar, "3158246")),
			mention("Alexey Radul", 0.8),
		},
		Topics:   []string{"machine learning", "Automatic Differentiation"},
		Releases: []model.ReleaseMention{dayRelease("arXiv", model.StatusPreprint, 2018, time.October, 26, 0.8)},
		Quality:  0.8,
	}
}

// paperView is a paper with ids and timestamps stripped, for comparing the
// results of different ingestion orders.
type paperView struct {
	Title    string
	Abstract string
	Links    []model.Link
	Topics   []string
	Releases []model.Release
	Quality  model.Quality
	Sources  []string
	Authors  []string
	Records  []string
}

func viewOf(p *model.Paper) paperView {
	v := paperView{
		Title:    p.Title,
		Abstract: p.Abstract,
		Links:    p.Links,
		Topics:   p.Topics,
		Releases: p.Releases,
		Quality:  p.Quality,
		Sources:  p.Sources,
	}
	for _, a := range p.Authors {
		v.Authors = append(v.Authors, a.Name)
	}
	for _, c := range p.Contributions {
		v.Records = append(v.Records, c.Fingerprint)
	}
	return v
}

// assertIndexConsistent checks that every registered link points at an
// existing entity that lists it, and every entity link is registered to it.
func assertIndexConsistent(t *testing.T, e *Engine) {
	t.Helper()
	e.mu.RLock()
	defer e.mu.RUnlock()
	linkCount := 0
	for id, p := range e.papers {
		for _, l := range p.Links {
			held, ok := e.paperIx.Lookup(l)
			require.True(t, ok, "paper %d link %s unregistered", id, l)
			require.Equal(t, id, held, "paper link %s", l)
			linkCount++
		}
	}
	require.Equal(t, linkCount, e.paperIx.Len(), "paper index holds links of missing papers")

	linkCount = 0
	for id, a := range e.authors {
		for _, l := range a.Links {
			held, ok := e.authorIx.Lookup(l)
			require.True(t, ok, "author %d link %s unregistered", id, l)
			require.Equal(t, id, held, "author link %s", l)
			linkCount++
		}
	}
	require.Equal(t, linkCount, e.authorIx.Len(), "author index holds links of missing authors")
}

// mockStore is a store.Store whose Commit is scripted.
type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) Commit(ctx context.Context, cs *store.ChangeSet) error {
	args := m.Called(ctx, cs)
	return args.Error(0)
}

func (m *mockStore) LoadAll(ctx context.Context) (*store.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Snapshot), args.Error(1)
}

func (m *mockStore) LoadPaper(context.Context, int64) (*model.Paper, error)             { return nil, nil }
func (m *mockStore) LoadPaperByLink(context.Context, model.Link) (*model.Paper, error)  { return nil, nil }
func (m *mockStore) SavePaper(context.Context, *model.Paper) error                      { return nil }
func (m *mockStore) DeletePaper(context.Context, int64) error                           { return nil }
func (m *mockStore) LoadAuthor(context.Context, int64) (*model.Author, error)           { return nil, nil }
func (m *mockStore) LoadAuthorByLink(context.Context, model.Link) (*model.Author, error) { return nil, nil }
func (m *mockStore) SaveAuthor(context.Context, *model.Author) error                    { return nil }
func (m *mockStore) DeleteAuthor(context.Context, int64) error                          { return nil }
func (m *mockStore) ListReviews(context.Context) ([]model.Review, error)                { return nil, nil }
func (m *mockStore) EnqueueDLQ(context.Context, resilience.DLQEntry) error              { return nil }
func (m *mockStore) DequeueDLQ(context.Context, resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}
func (m *mockStore) IncrementDLQRetry(context.Context, string, time.Time, string) error { return nil }
func (m *mockStore) RemoveDLQ(context.Context, string) error                           { return nil }
func (m *mockStore) CountDLQ(context.Context) (int, error)                             { return 0, nil }
func (m *mockStore) Migrate(context.Context) error                                     { return nil }
func (m *mockStore) LockWriter(context.Context) (func(), error)                        { return func() {}, nil }
func (m *mockStore) Close() error                                                      { return nil }
