// Package identity maps cross-source identity links to the canonical entity
// that currently owns them.
package identity

import (
	"errors"
	"fmt"

	"github.com/sells-group/bibmerge/internal/model"
)

// ConflictError reports a link already registered to a different entity.
// Callers resolve it by merging the two entities; it is never an overwrite.
type ConflictError struct {
	Kind    model.EntityKind
	Link    model.Link
	Held    int64
	Claimed int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity: %s link %s held by %d, claimed by %d", e.Kind, e.Link, e.Held, e.Claimed)
}

// IsConflict reports whether err is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

type undo struct {
	link model.Link
	prev int64
	had  bool
}

// Index is the link -> entity id mapping for one entity kind. It is not
// safe for concurrent use; the engine serializes access.
type Index struct {
	kind    model.EntityKind
	byLink  map[model.Link]int64
	byID    map[int64]map[model.Link]struct{}
	journal []undo
	open    bool
}

// New creates an empty index for the given entity kind.
func New(kind model.EntityKind) *Index {
	return &Index{
		kind:   kind,
		byLink: make(map[model.Link]int64),
		byID:   make(map[int64]map[model.Link]struct{}),
	}
}

// Kind returns the entity kind the index holds.
func (ix *Index) Kind() model.EntityKind { return ix.kind }

// Len returns the number of registered links.
func (ix *Index) Len() int { return len(ix.byLink) }

// Lookup returns the entity holding l.
func (ix *Index) Lookup(l model.Link) (int64, bool) {
	id, ok := ix.byLink[l]
	return id, ok
}

// Register binds l to id. Registering a link already bound to id is a no-op;
// a link bound to another entity yields a *ConflictError and leaves the
// index unchanged.
func (ix *Index) Register(l model.Link, id int64) error {
	if held, ok := ix.byLink[l]; ok {
		if held == id {
			return nil
		}
		return &ConflictError{Kind: ix.kind, Link: l, Held: held, Claimed: id}
	}
	ix.set(l, id)
	return nil
}

// Remove unbinds l.
func (ix *Index) Remove(l model.Link) {
	if _, ok := ix.byLink[l]; ok {
		ix.del(l)
	}
}

// RemoveAll unbinds every link held by id and returns them.
func (ix *Index) RemoveAll(id int64) []model.Link {
	links := ix.LinksOf(id)
	for _, l := range links {
		ix.del(l)
	}
	return links
}

// Reassign moves every link of from onto to, the redirect half of an
// absorb-and-redirect merge. It returns the moved links.
func (ix *Index) Reassign(from, to int64) []model.Link {
	if from == to {
		return nil
	}
	links := ix.LinksOf(from)
	for _, l := range links {
		ix.set(l, to)
	}
	return links
}

// LinksOf returns the links held by id, sorted.
func (ix *Index) LinksOf(id int64) []model.Link {
	set := ix.byID[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]model.Link, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	model.SortLinks(out)
	return out
}

// Begin starts journaling mutations so they can be undone with Rollback.
func (ix *Index) Begin() {
	ix.journal = ix.journal[:0]
	ix.open = true
}

// Commit keeps every mutation since Begin.
func (ix *Index) Commit() {
	ix.journal = ix.journal[:0]
	ix.open = false
}

// Rollback undoes every mutation since Begin, newest first.
func (ix *Index) Rollback() {
	for i := len(ix.journal) - 1; i >= 0; i-- {
		u := ix.journal[i]
		if cur, ok := ix.byLink[u.link]; ok {
			ix.unindex(u.link, cur)
			delete(ix.byLink, u.link)
		}
		if u.had {
			ix.byLink[u.link] = u.prev
			ix.index(u.link, u.prev)
		}
	}
	ix.journal = ix.journal[:0]
	ix.open = false
}

func (ix *Index) set(l model.Link, id int64) {
	prev, had := ix.byLink[l]
	if had && prev == id {
		return
	}
	if ix.open {
		ix.journal = append(ix.journal, undo{link: l, prev: prev, had: had})
	}
	if had {
		ix.unindex(l, prev)
	}
	ix.byLink[l] = id
	ix.index(l, id)
}

func (ix *Index) del(l model.Link) {
	prev := ix.byLink[l]
	if ix.open {
		ix.journal = append(ix.journal, undo{link: l, prev: prev, had: true})
	}
	ix.unindex(l, prev)
	delete(ix.byLink, l)
}

func (ix *Index) index(l model.Link, id int64) {
	set, ok := ix.byID[id]
	if !ok {
		set = make(map[model.Link]struct{})
		ix.byID[id] = set
	}
	set[l] = struct{}{}
}

func (ix *Index) unindex(l model.Link, id int64) {
	set := ix.byID[id]
	delete(set, l)
	if len(set) == 0 {
		delete(ix.byID, id)
	}
}
