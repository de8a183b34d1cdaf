package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bibmerge/internal/model"
)

var (
	arxiv = model.Link{Type: model.LinkArxiv, Link: "1810.11530"}
	s2    = model.Link{Type: model.LinkSemanticScholar, Link: "e8"}
	dblp  = model.Link{Type: model.LinkDBLP, Link: "conf/x/1"}
)

func TestIndex_RegisterLookup(t *testing.T) {
	ix := New(model.KindPaper)

	require.NoError(t, ix.Register(arxiv, 1))
	require.NoError(t, ix.Register(arxiv, 1))

	id, ok := ix.Lookup(arxiv)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = ix.Lookup(s2)
	assert.False(t, ok)
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_SameValueDifferentType(t *testing.T) {
	ix := New(model.KindPaper)

	require.NoError(t, ix.Register(model.Link{Type: "dblp", Link: "42"}, 1))
	require.NoError(t, ix.Register(model.Link{Type: "mag", Link: "42"}, 2))

	id, _ := ix.Lookup(model.Link{Type: "mag", Link: "42"})
	assert.Equal(t, int64(2), id)
}

func TestIndex_Conflict(t *testing.T) {
	ix := New(model.KindAuthor)
	require.NoError(t, ix.Register(arxiv, 1))

	err := ix.Register(arxiv, 2)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(1), ce.Held)
	assert.Equal(t, int64(2), ce.Claimed)
	assert.Equal(t, model.KindAuthor, ce.Kind)
	assert.Contains(t, err.Error(), "arxiv:1810.11530")

	id, _ := ix.Lookup(arxiv)
	assert.Equal(t, int64(1), id, "conflict must not overwrite")
}

func TestIndex_Reassign(t *testing.T) {
	ix := New(model.KindPaper)
	require.NoError(t, ix.Register(arxiv, 1))
	require.NoError(t, ix.Register(s2, 2))
	require.NoError(t, ix.Register(dblp, 2))

	moved := ix.Reassign(2, 1)
	assert.Equal(t, []model.Link{dblp, s2}, moved)
	assert.Equal(t, []model.Link{arxiv, dblp, s2}, ix.LinksOf(1))
	assert.Empty(t, ix.LinksOf(2))
	assert.Nil(t, ix.Reassign(1, 1))
}

func TestIndex_RemoveAll(t *testing.T) {
	ix := New(model.KindPaper)
	require.NoError(t, ix.Register(arxiv, 1))
	require.NoError(t, ix.Register(s2, 1))

	removed := ix.RemoveAll(1)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, ix.Len())

	ix.Remove(dblp) // absent, no-op
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_Rollback(t *testing.T) {
	ix := New(model.KindPaper)
	require.NoError(t, ix.Register(arxiv, 1))
	require.NoError(t, ix.Register(s2, 2))

	ix.Begin()
	require.NoError(t, ix.Register(dblp, 2))
	ix.Reassign(2, 1)
	ix.Remove(arxiv)
	ix.Rollback()

	id, ok := ix.Lookup(arxiv)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	id, _ = ix.Lookup(s2)
	assert.Equal(t, int64(2), id)
	_, ok = ix.Lookup(dblp)
	assert.False(t, ok)
	assert.Equal(t, []model.Link{arxiv}, ix.LinksOf(1))
	assert.Equal(t, []model.Link{s2}, ix.LinksOf(2))
}

func TestIndex_CommitKeepsChanges(t *testing.T) {
	ix := New(model.KindPaper)

	ix.Begin()
	require.NoError(t, ix.Register(arxiv, 1))
	ix.Commit()
	ix.Rollback()

	_, ok := ix.Lookup(arxiv)
	assert.True(t, ok)
}
