package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/engine"
	"github.com/sells-group/bibmerge/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) FindPapers(f engine.Filter) []model.Paper {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.Paper)
}

func (m *mockEngine) Paper(id int64) (*model.Paper, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Paper), args.Error(1)
}

func (m *mockEngine) Author(id int64) (*model.Author, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Author), args.Error(1)
}

func (m *mockEngine) Reviews() []model.Review {
	return m.Called().Get(0).([]model.Review)
}

func (m *mockEngine) Stats() engine.Stats {
	return m.Called().Get(0).(engine.Stats)
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := New(new(mockEngine), nil).Handler()
	rec := do(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFindPapers(t *testing.T) {
	eng := new(mockEngine)
	want := engine.Filter{
		Title:      "deep",
		Author:     "Yann LeCun",
		LinkType:   "arxiv",
		Link:       "1810.11530",
		MinQuality: 0.5,
		Limit:      10,
	}
	eng.On("FindPapers", want).Return([]model.Paper{{ID: 3, Title: "Deep learning"}})

	rec := do(t, New(eng, nil).Handler(), "/papers?title=deep&author=Yann+LeCun&link_type=arxiv&link=1810.11530&min_quality=0.5&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body papersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, int64(3), body.Papers[0].ID)
	eng.AssertExpectations(t)
}

func TestFindPapers_DefaultsAndEmpty(t *testing.T) {
	eng := new(mockEngine)
	eng.On("FindPapers", engine.Filter{Limit: defaultLimit}).Return(nil)
	eng.On("FindPapers", engine.Filter{Limit: maxLimit}).Return(nil)
	h := New(eng, nil).Handler()

	rec := do(t, h, "/papers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"papers":[],"count":0}`, rec.Body.String())

	rec = do(t, h, "/papers?limit=50000")
	require.Equal(t, http.StatusOK, rec.Code)
	eng.AssertExpectations(t)
}

func TestFindPapers_BadParams(t *testing.T) {
	h := New(new(mockEngine), nil).Handler()
	for _, q := range []string{"limit=0", "limit=x", "min_quality=2", "author_id=-1", "link=1810.11530"} {
		rec := do(t, h, "/papers?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Contains(t, rec.Body.String(), `"error"`, q)
	}
}

func TestGetPaper(t *testing.T) {
	eng := new(mockEngine)
	eng.On("Paper", int64(1)).Return(&model.Paper{ID: 2, Title: "Merged"}, nil)
	eng.On("Paper", int64(9)).Return(nil, &model.NotFoundError{Kind: "paper", ID: "9"})
	h := New(eng, nil).Handler()

	rec := do(t, h, "/papers/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Paper
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(2), p.ID, "redirected ids resolve to the survivor")

	assert.Equal(t, http.StatusNotFound, do(t, h, "/papers/9").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/papers/abc").Code)
}

func TestGetAuthor(t *testing.T) {
	eng := new(mockEngine)
	eng.On("Author", int64(7)).Return(&model.Author{ID: 7, Name: "Bart van Merriënboer"}, nil)
	eng.On("Author", int64(8)).Return(nil, &model.NotFoundError{Kind: "author", ID: "8"})
	h := New(eng, nil).Handler()

	rec := do(t, h, "/authors/7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bart van Merriënboer")
	assert.Equal(t, http.StatusNotFound, do(t, h, "/authors/8").Code)
}

func TestReviewsAndStats(t *testing.T) {
	eng := new(mockEngine)
	eng.On("Reviews").Return([]model.Review{{ID: "r1", Kind: model.ReviewAmbiguousAuthor, Name: "J. Smith", CreatedAt: time.Unix(0, 0).UTC()}})
	eng.On("Stats").Return(engine.Stats{Papers: 2, Authors: 3})
	h := New(eng, nil).Handler()

	rec := do(t, h, "/reviews")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Reviews []model.Review `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reviews, 1)
	assert.Equal(t, "J. Smith", body.Reviews[0].Name)

	rec = do(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"papers":2`)
}

func TestCORS(t *testing.T) {
	h := New(new(mockEngine), []string{"https://papers.example.org"}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/papers", nil)
	req.Header.Set("Origin", "https://papers.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://papers.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
