package store

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/flock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrWriterLocked is returned by LockWriter when another process holds the
// writer lock. Entity ids are allocated in process, so two writers on one
// database would hand out the same ids and overwrite each other.
var ErrWriterLocked = errors.New("store: another writer holds the database")

// writerLockKey is the advisory lock id shared by every bibmerge writer.
const writerLockKey int64 = 0x6269626d65726765

// lockConn is the dedicated connection a Postgres writer lock lives on.
// Session advisory locks belong to a connection, so the lock cannot share
// the pool.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// LockWriter takes a session advisory lock on its own connection. It fails
// fast with ErrWriterLocked instead of waiting behind another writer.
func (s *PostgresStore) LockWriter(ctx context.Context) (func(), error) {
	if s.dial == nil {
		return nil, eris.New("postgres: writer lock needs a connection string")
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: writer lock connect")
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", writerLockKey).Scan(&ok); err != nil {
		_ = conn.Close(ctx)
		return nil, eris.Wrap(err, "postgres: acquire writer lock")
	}
	if !ok {
		_ = conn.Close(ctx)
		return nil, ErrWriterLocked
	}
	return func() {
		ctx := context.Background()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", writerLockKey); err != nil {
			zap.L().Warn("postgres: failed to release writer lock", zap.Error(err))
		}
		_ = conn.Close(ctx)
	}, nil
}

// LockWriter takes an exclusive file lock next to the database file.
// In-memory databases are private to the process and need none.
func (s *SQLiteStore) LockWriter(context.Context) (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}
	fl := flock.New(s.path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: acquire writer lock")
	}
	if !ok {
		return nil, ErrWriterLocked
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			zap.L().Warn("sqlite: failed to release writer lock", zap.Error(err))
		}
	}, nil
}

// sqlitePath extracts the database file from a DSN, or "" for in-memory
// databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if strings.Contains(path[i:], "mode=memory") {
			return ""
		}
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}
