package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bibmerge/internal/db"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	stmts   statements
	closeFn func()
	dial    func(ctx context.Context) (lockConn, error)
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot lookup queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"load_paper":          `SELECT doc FROM papers WHERE id = $1`,
	"load_paper_by_link":  `SELECT p.doc FROM papers p JOIN paper_links l ON l.paper_id = p.id WHERE l.type = $1 AND l.link = $2`,
	"load_author":         `SELECT doc FROM authors WHERE id = $1`,
	"load_author_by_link": `SELECT a.doc FROM authors a JOIN author_links l ON l.author_id = a.id WHERE l.type = $1 AND l.link = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := newPostgresWithPool(pool, pool.Close)
	s.dial = func(ctx context.Context) (lockConn, error) {
		conn, err := pgx.Connect(ctx, connString)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return s, nil
}

func newPostgresWithPool(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, stmts: newStatements(db.Dollar), closeFn: closeFn}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS papers (
	id         BIGINT PRIMARY KEY,
	title      TEXT NOT NULL,
	quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS paper_links (
	type     TEXT NOT NULL,
	link     TEXT NOT NULL,
	paper_id BIGINT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	PRIMARY KEY (type, link)
);

CREATE TABLE IF NOT EXISTS authors (
	id         BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS author_links (
	type      TEXT NOT NULL,
	link      TEXT NOT NULL,
	author_id BIGINT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
	PRIMARY KEY (type, link)
);

CREATE TABLE IF NOT EXISTS redirects (
	kind    TEXT NOT NULL,
	from_id BIGINT NOT NULL,
	to_id   BIGINT NOT NULL,
	PRIMARY KEY (kind, from_id)
);

CREATE TABLE IF NOT EXISTS reviews (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	paper_id   BIGINT NOT NULL,
	author_id  BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	record         JSONB NOT NULL,
	origin         TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_paper_links_paper_id ON paper_links(paper_id);
CREATE INDEX IF NOT EXISTS idx_author_links_author_id ON author_links(author_id);
CREATE INDEX IF NOT EXISTS idx_papers_title ON papers(title);
CREATE INDEX IF NOT EXISTS idx_reviews_paper_id ON reviews(paper_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Commit applies cs in a single transaction.
func (s *PostgresStore) Commit(ctx context.Context, cs *ChangeSet) error {
	if cs == nil || cs.Empty() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin commit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exec := func(ctx context.Context, query string, args ...any) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	}
	if err := applyChangeSet(ctx, exec, s.stmts, cs); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) LoadPaper(ctx context.Context, id int64) (*model.Paper, error) {
	return loadDoc[model.Paper](s.pool.QueryRow(ctx, preparedStatements["load_paper"], id), "postgres: load paper")
}

func (s *PostgresStore) LoadPaperByLink(ctx context.Context, link model.Link) (*model.Paper, error) {
	return loadDoc[model.Paper](s.pool.QueryRow(ctx, preparedStatements["load_paper_by_link"], link.Type, link.Link), "postgres: load paper by link")
}

func (s *PostgresStore) SavePaper(ctx context.Context, p *model.Paper) error {
	return s.Commit(ctx, &ChangeSet{Papers: []*model.Paper{p}})
}

func (s *PostgresStore) DeletePaper(ctx context.Context, id int64) error {
	return s.Commit(ctx, &ChangeSet{DeletedPapers: []int64{id}})
}

func (s *PostgresStore) LoadAuthor(ctx context.Context, id int64) (*model.Author, error) {
	return loadDoc[model.Author](s.pool.QueryRow(ctx, preparedStatements["load_author"], id), "postgres: load author")
}

func (s *PostgresStore) LoadAuthorByLink(ctx context.Context, link model.Link) (*model.Author, error) {
	return loadDoc[model.Author](s.pool.QueryRow(ctx, preparedStatements["load_author_by_link"], link.Type, link.Link), "postgres: load author by link")
}

func (s *PostgresStore) SaveAuthor(ctx context.Context, a *model.Author) error {
	return s.Commit(ctx, &ChangeSet{Authors: []*model.Author{a}})
}

func (s *PostgresStore) DeleteAuthor(ctx context.Context, id int64) error {
	return s.Commit(ctx, &ChangeSet{DeletedAuthors: []int64{id}})
}

func (s *PostgresStore) ListReviews(ctx context.Context) ([]model.Review, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM reviews ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	docs, err := scanDocs[model.Review](rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	out := make([]model.Review, len(docs))
	for i, d := range docs {
		out[i] = *d
	}
	return out, nil
}

// LoadAll reads every paper, author, redirect and open review.
func (s *PostgresStore) LoadAll(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot

	rows, err := s.pool.Query(ctx, `SELECT doc FROM papers ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load papers")
	}
	snap.Papers, err = scanDocs[model.Paper](rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load papers")
	}

	rows, err = s.pool.Query(ctx, `SELECT doc FROM authors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load authors")
	}
	snap.Authors, err = scanDocs[model.Author](rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load authors")
	}

	rows, err = s.pool.Query(ctx, `SELECT kind, from_id, to_id FROM redirects ORDER BY kind, from_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load redirects")
	}
	snap.Redirects, err = scanRedirects(rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load redirects")
	}

	snap.Reviews, err = s.ListReviews(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq record")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, record, origin, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, string(recordJSON), entry.Origin, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, record, origin, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !filter.All {
		query += ` AND next_retry_at <= now() AND retry_count < max_retries`
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON []byte
		if err := rows.Scan(&e.ID, &recordJSON, &e.Origin, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(recordJSON, &e.Record); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

func isPgxNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
