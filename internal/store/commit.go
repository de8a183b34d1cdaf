package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bibmerge/internal/db"
	"github.com/sells-group/bibmerge/internal/model"
)

// execFunc runs one statement inside the backend's transaction.
type execFunc func(ctx context.Context, query string, args ...any) error

// statements holds the change-set SQL rendered for one placeholder style.
type statements struct {
	upsertPaper       string
	upsertPaperLink   string
	deletePaper       string
	deletePaperLinks  string
	upsertAuthor      string
	upsertAuthorLink  string
	deleteAuthor      string
	deleteAuthorLinks string
	upsertRedirect    string
	upsertReview      string
	deleteReview      string
}

func newStatements(ph db.Placeholder) statements {
	return statements{
		upsertPaper: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "papers",
			Columns:      []string{"id", "title", "quality", "doc", "created_at", "updated_at"},
			ConflictKeys: []string{"id"},
			UpdateCols:   []string{"title", "quality", "doc", "updated_at"},
		}, ph),
		upsertPaperLink: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "paper_links",
			Columns:      []string{"type", "link", "paper_id"},
			ConflictKeys: []string{"type", "link"},
		}, ph),
		deletePaper:      "DELETE FROM papers WHERE id = " + ph(1),
		deletePaperLinks: "DELETE FROM paper_links WHERE paper_id = " + ph(1),
		upsertAuthor: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "authors",
			Columns:      []string{"id", "name", "quality", "doc", "created_at", "updated_at"},
			ConflictKeys: []string{"id"},
			UpdateCols:   []string{"name", "quality", "doc", "updated_at"},
		}, ph),
		upsertAuthorLink: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "author_links",
			Columns:      []string{"type", "link", "author_id"},
			ConflictKeys: []string{"type", "link"},
		}, ph),
		deleteAuthor:      "DELETE FROM authors WHERE id = " + ph(1),
		deleteAuthorLinks: "DELETE FROM author_links WHERE author_id = " + ph(1),
		upsertRedirect: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "redirects",
			Columns:      []string{"kind", "from_id", "to_id"},
			ConflictKeys: []string{"kind", "from_id"},
		}, ph),
		upsertReview: db.MustUpsertSQL(db.UpsertConfig{
			Table:        "reviews",
			Columns:      []string{"id", "kind", "paper_id", "author_id", "doc", "created_at"},
			ConflictKeys: []string{"id"},
		}, ph),
		deleteReview: "DELETE FROM reviews WHERE id = " + ph(1),
	}
}

// applyChangeSet writes cs through exec. The caller owns the transaction.
func applyChangeSet(ctx context.Context, exec execFunc, st statements, cs *ChangeSet) error {
	for _, id := range cs.DeletedPapers {
		if err := exec(ctx, st.deletePaperLinks, id); err != nil {
			return eris.Wrapf(err, "delete links of paper %d", id)
		}
		if err := exec(ctx, st.deletePaper, id); err != nil {
			return eris.Wrapf(err, "delete paper %d", id)
		}
	}
	for _, id := range cs.DeletedAuthors {
		if err := exec(ctx, st.deleteAuthorLinks, id); err != nil {
			return eris.Wrapf(err, "delete links of author %d", id)
		}
		if err := exec(ctx, st.deleteAuthor, id); err != nil {
			return eris.Wrapf(err, "delete author %d", id)
		}
	}

	for _, p := range cs.Papers {
		doc, err := json.Marshal(p)
		if err != nil {
			return eris.Wrapf(err, "marshal paper %d", p.ID)
		}
		if err := exec(ctx, st.upsertPaper, p.ID, p.Title, float64(p.Quality), string(doc), p.CreatedAt.UTC(), p.UpdatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "save paper %d", p.ID)
		}
		if err := exec(ctx, st.deletePaperLinks, p.ID); err != nil {
			return eris.Wrapf(err, "clear links of paper %d", p.ID)
		}
		for _, l := range p.Links {
			if err := exec(ctx, st.upsertPaperLink, l.Type, l.Link, p.ID); err != nil {
				return eris.Wrapf(err, "save link %s of paper %d", l, p.ID)
			}
		}
	}

	for _, a := range cs.Authors {
		doc, err := json.Marshal(a)
		if err != nil {
			return eris.Wrapf(err, "marshal author %d", a.ID)
		}
		if err := exec(ctx, st.upsertAuthor, a.ID, a.Name, float64(a.Quality), string(doc), a.CreatedAt.UTC(), a.UpdatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "save author %d", a.ID)
		}
		if err := exec(ctx, st.deleteAuthorLinks, a.ID); err != nil {
			return eris.Wrapf(err, "clear links of author %d", a.ID)
		}
		for _, l := range a.Links {
			if err := exec(ctx, st.upsertAuthorLink, l.Type, l.Link, a.ID); err != nil {
				return eris.Wrapf(err, "save link %s of author %d", l, a.ID)
			}
		}
	}

	for _, r := range cs.Redirects {
		if err := exec(ctx, st.upsertRedirect, string(r.Kind), r.From, r.To); err != nil {
			return eris.Wrapf(err, "save %s redirect %d -> %d", r.Kind, r.From, r.To)
		}
	}

	for _, rv := range cs.Reviews {
		doc, err := json.Marshal(rv)
		if err != nil {
			return eris.Wrapf(err, "marshal review %s", rv.ID)
		}
		if err := exec(ctx, st.upsertReview, rv.ID, string(rv.Kind), rv.PaperID, rv.AuthorID, string(doc), rv.CreatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "save review %s", rv.ID)
		}
	}
	for _, id := range cs.ResolvedReviews {
		if err := exec(ctx, st.deleteReview, id); err != nil {
			return eris.Wrapf(err, "delete review %s", id)
		}
	}
	return nil
}

// rowScanner is the common surface of *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanDocs decodes a single JSON document column from every row.
func scanDocs[T any](rows rowScanner) ([]*T, error) {
	var out []*T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "scan doc")
		}
		v := new(T)
		if err := json.Unmarshal(doc, v); err != nil {
			return nil, eris.Wrap(err, "unmarshal doc")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "iterate docs")
}

func scanRedirects(rows rowScanner) ([]model.Redirect, error) {
	var out []model.Redirect
	for rows.Next() {
		var r model.Redirect
		var kind string
		if err := rows.Scan(&kind, &r.From, &r.To); err != nil {
			return nil, eris.Wrap(err, "scan redirect")
		}
		r.Kind = model.EntityKind(kind)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "iterate redirects")
}

// unixMilli and fromUnixMilli store DLQ timestamps as sortable integers.
func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
