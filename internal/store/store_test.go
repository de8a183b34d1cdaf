package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testPaper(id int64, title string, links ...model.Link) *model.Paper {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Paper{
		ID:        id,
		Title:     title,
		Links:     links,
		Quality:   0.8,
		Sources:   []string{"arxiv"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAuthor(id int64, name string, links ...model.Link) *model.Author {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Author{
		ID:        id,
		Name:      name,
		Links:     links,
		Quality:   0.5,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	arxiv := model.Link{Type: model.LinkArxiv, Link: "1810.11530"}
	doi := model.Link{Type: model.LinkDOI, Link: "10.1000/xyz"}
	orcid := model.Link{Type: model.LinkORCID, Link: "0000-0002-1825-0097"}

	t.Run("SaveAndLoadPaper", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SavePaper(ctx, testPaper(1, "Attention Is All You Need", arxiv, doi)))

		got, err := s.LoadPaper(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Attention Is All You Need", got.Title)
		assert.Equal(t, []model.Link{arxiv, doi}, got.Links)
		assert.Equal(t, model.Quality(0.8), got.Quality)
	})

	t.Run("LoadPaperMissing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.LoadPaper(context.Background(), 42)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("LoadPaperByLink", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SavePaper(ctx, testPaper(7, "Graph Networks", doi)))

		got, err := s.LoadPaperByLink(ctx, doi)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(7), got.ID)

		got, err = s.LoadPaperByLink(ctx, arxiv)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SavePaperReplacesLinks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SavePaper(ctx, testPaper(1, "First", arxiv)))
		require.NoError(t, s.SavePaper(ctx, testPaper(1, "First revised", doi)))

		got, err := s.LoadPaperByLink(ctx, arxiv)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.LoadPaperByLink(ctx, doi)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "First revised", got.Title)
	})

	t.Run("DeletePaper", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SavePaper(ctx, testPaper(3, "Doomed", arxiv)))
		require.NoError(t, s.DeletePaper(ctx, 3))

		got, err := s.LoadPaper(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.LoadPaperByLink(ctx, arxiv)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SaveAndLoadAuthor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := testAuthor(5, "Bart van Merrienboer", orcid)
		a.Aliases = []string{"B. van Merriënboer"}
		require.NoError(t, s.SaveAuthor(ctx, a))

		got, err := s.LoadAuthor(ctx, 5)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Bart van Merrienboer", got.Name)
		assert.Equal(t, []string{"B. van Merriënboer"}, got.Aliases)

		byLink, err := s.LoadAuthorByLink(ctx, orcid)
		require.NoError(t, err)
		require.NotNil(t, byLink)
		assert.Equal(t, int64(5), byLink.ID)

		require.NoError(t, s.DeleteAuthor(ctx, 5))
		got, err = s.LoadAuthor(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CommitMovesLinkBetweenPapers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, &ChangeSet{
			Papers: []*model.Paper{testPaper(1, "A", arxiv), testPaper(2, "A", doi)},
		}))

		// Paper 2 is absorbed into paper 1.
		require.NoError(t, s.Commit(ctx, &ChangeSet{
			DeletedPapers: []int64{2},
			Papers:        []*model.Paper{testPaper(1, "A", arxiv, doi)},
			Redirects:     []model.Redirect{{Kind: model.KindPaper, From: 2, To: 1}},
		}))

		got, err := s.LoadPaperByLink(ctx, doi)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.ID)

		snap, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Papers, 1)
		assert.Equal(t, []model.Redirect{{Kind: model.KindPaper, From: 2, To: 1}}, snap.Redirects)
	})

	t.Run("CommitEmptyIsNoop", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Commit(context.Background(), &ChangeSet{}))
		require.NoError(t, s.Commit(context.Background(), nil))
	})

	t.Run("ReviewsRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rv := model.Review{
			ID:           "rev-1",
			Kind:         model.ReviewAmbiguousAuthor,
			MentionID:    "abc#0",
			PaperID:      1,
			AuthorID:     9,
			CandidateIDs: []int64{3, 4},
			Name:         "J. Smith",
			CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.Commit(ctx, &ChangeSet{Reviews: []model.Review{rv}}))

		reviews, err := s.ListReviews(ctx)
		require.NoError(t, err)
		require.Len(t, reviews, 1)
		assert.Equal(t, rv.CandidateIDs, reviews[0].CandidateIDs)
		assert.Equal(t, "J. Smith", reviews[0].Name)

		require.NoError(t, s.Commit(ctx, &ChangeSet{ResolvedReviews: []string{"rev-1"}}))
		reviews, err = s.ListReviews(ctx)
		require.NoError(t, err)
		assert.Empty(t, reviews)
	})

	t.Run("LoadAllOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, &ChangeSet{
			Papers:  []*model.Paper{testPaper(9, "Z"), testPaper(2, "B")},
			Authors: []*model.Author{testAuthor(4, "D"), testAuthor(1, "A")},
		}))

		snap, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Papers, 2)
		require.Len(t, snap.Authors, 2)
		assert.Equal(t, int64(2), snap.Papers[0].ID)
		assert.Equal(t, int64(9), snap.Papers[1].ID)
		assert.Equal(t, int64(1), snap.Authors[0].ID)
		assert.Empty(t, snap.Reviews)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
