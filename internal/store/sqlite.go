package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bibmerge/internal/db"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	stmts statements
	path  string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, stmts: newStatements(db.Question), path: sqlitePath(dsn)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS papers (
	id         INTEGER PRIMARY KEY,
	title      TEXT NOT NULL,
	quality    REAL NOT NULL DEFAULT 0,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS paper_links (
	type     TEXT NOT NULL,
	link     TEXT NOT NULL,
	paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	PRIMARY KEY (type, link)
);

CREATE TABLE IF NOT EXISTS authors (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	quality    REAL NOT NULL DEFAULT 0,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS author_links (
	type      TEXT NOT NULL,
	link      TEXT NOT NULL,
	author_id INTEGER NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
	PRIMARY KEY (type, link)
);

CREATE TABLE IF NOT EXISTS redirects (
	kind    TEXT NOT NULL,
	from_id INTEGER NOT NULL,
	to_id   INTEGER NOT NULL,
	PRIMARY KEY (kind, from_id)
);

CREATE TABLE IF NOT EXISTS reviews (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	paper_id   INTEGER NOT NULL,
	author_id  INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	record         TEXT NOT NULL,
	origin         TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	last_failed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paper_links_paper_id ON paper_links(paper_id);
CREATE INDEX IF NOT EXISTS idx_author_links_author_id ON author_links(author_id);
CREATE INDEX IF NOT EXISTS idx_papers_title ON papers(title);
CREATE INDEX IF NOT EXISTS idx_reviews_paper_id ON reviews(paper_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Commit applies cs in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, cs *ChangeSet) error {
	if cs == nil || cs.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin commit")
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(ctx context.Context, query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	if err := applyChangeSet(ctx, exec, s.stmts, cs); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) LoadPaper(ctx context.Context, id int64) (*model.Paper, error) {
	return loadDoc[model.Paper](s.db.QueryRowContext(ctx, `SELECT doc FROM papers WHERE id = ?`, id), "sqlite: load paper")
}

func (s *SQLiteStore) LoadPaperByLink(ctx context.Context, link model.Link) (*model.Paper, error) {
	return loadDoc[model.Paper](s.db.QueryRowContext(ctx,
		`SELECT p.doc FROM papers p JOIN paper_links l ON l.paper_id = p.id WHERE l.type = ? AND l.link = ?`,
		link.Type, link.Link,
	), "sqlite: load paper by link")
}

func (s *SQLiteStore) SavePaper(ctx context.Context, p *model.Paper) error {
	return s.Commit(ctx, &ChangeSet{Papers: []*model.Paper{p}})
}

func (s *SQLiteStore) DeletePaper(ctx context.Context, id int64) error {
	return s.Commit(ctx, &ChangeSet{DeletedPapers: []int64{id}})
}

func (s *SQLiteStore) LoadAuthor(ctx context.Context, id int64) (*model.Author, error) {
	return loadDoc[model.Author](s.db.QueryRowContext(ctx, `SELECT doc FROM authors WHERE id = ?`, id), "sqlite: load author")
}

func (s *SQLiteStore) LoadAuthorByLink(ctx context.Context, link model.Link) (*model.Author, error) {
	return loadDoc[model.Author](s.db.QueryRowContext(ctx,
		`SELECT a.doc FROM authors a JOIN author_links l ON l.author_id = a.id WHERE l.type = ? AND l.link = ?`,
		link.Type, link.Link,
	), "sqlite: load author by link")
}

func (s *SQLiteStore) SaveAuthor(ctx context.Context, a *model.Author) error {
	return s.Commit(ctx, &ChangeSet{Authors: []*model.Author{a}})
}

func (s *SQLiteStore) DeleteAuthor(ctx context.Context, id int64) error {
	return s.Commit(ctx, &ChangeSet{DeletedAuthors: []int64{id}})
}

func (s *SQLiteStore) ListReviews(ctx context.Context) ([]model.Review, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM reviews ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	docs, err := scanDocs[model.Review](rows)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	out := make([]model.Review, len(docs))
	for i, d := range docs {
		out[i] = *d
	}
	return out, nil
}

// LoadAll reads every paper, author, redirect and open review.
func (s *SQLiteStore) LoadAll(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot

	papers, err := s.queryDocsPaper(ctx)
	if err != nil {
		return nil, err
	}
	snap.Papers = papers

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM authors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load authors")
	}
	snap.Authors, err = scanDocs[model.Author](rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load authors")
	}

	rows, err = s.db.QueryContext(ctx, `SELECT kind, from_id, to_id FROM redirects ORDER BY kind, from_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load redirects")
	}
	snap.Redirects, err = scanRedirects(rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load redirects")
	}

	snap.Reviews, err = s.ListReviews(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) queryDocsPaper(ctx context.Context) ([]*model.Paper, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM papers ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load papers")
	}
	defer rows.Close()
	papers, err := scanDocs[model.Paper](rows)
	return papers, eris.Wrap(err, "sqlite: load papers")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq record")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, record, origin, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(recordJSON), entry.Origin, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		unixMilli(entry.NextRetryAt), unixMilli(entry.CreatedAt), unixMilli(entry.LastFailedAt),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, record, origin, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1=1`
	var args []any

	if !filter.All {
		query += ` AND next_retry_at <= ? AND retry_count < max_retries`
		args = append(args, time.Now().UnixMilli())
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON string
		var next, created, lastFailed int64
		if err := rows.Scan(&e.ID, &recordJSON, &e.Origin, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &next, &created, &lastFailed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq record")
		}
		e.NextRetryAt = fromUnixMilli(next)
		e.CreatedAt = fromUnixMilli(created)
		e.LastFailedAt = fromUnixMilli(lastFailed)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		unixMilli(nextRetryAt), lastErr, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq_entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// loadDoc scans one JSON document, returning (nil, nil) when no row matched.
func loadDoc[T any](row scannable, op string) (*T, error) {
	var doc []byte
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) || isPgxNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	v := new(T)
	if err := json.Unmarshal(doc, v); err != nil {
		return nil, eris.Wrap(err, op+": unmarshal")
	}
	return v, nil
}
