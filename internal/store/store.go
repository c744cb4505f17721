// Package store wraps an embedded modernc.org/sqlite database: a bounded
// connection pool, scoped transactions, retry on contention, and a
// per-statement deadline (spec §4.1). modernc.org/sqlite is the only
// relational-store driver used anywhere in the retrieval pack
// (internal/plex/dvr.go, internal/plex/epg.go in the teacher) — pure Go, no
// cgo, and FTS5-capable, which is exactly what an embedded full-text search
// store needs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite"

	"github.com/snapetech/mjrindex/internal/apperr"
)

// TxMode selects the BEGIN statement used to open a transaction.
type TxMode string

const (
	TxDeferred  TxMode = "DEFERRED"
	TxImmediate TxMode = "IMMEDIATE"
	TxExclusive TxMode = "EXCLUSIVE"
)

const (
	defaultRetryBase = 50 * time.Millisecond
	defaultRetryCap  = 750 * time.Millisecond
	defaultRetryMax  = 6
)

// Store is a bounded-pool wrapper around a single sqlite database file.
type Store struct {
	db   *sql.DB
	path string

	// sem bounds concurrent store work to PoolSize, independent of
	// database/sql's own internal connection-wait queue, so callers can be
	// observed blocking on store capacity specifically (spec §4.1, §5).
	sem *semaphore.Weighted

	statementTimeout time.Duration
}

// Options configures Open.
type Options struct {
	PoolSize         int
	StatementTimeout time.Duration
	BusyTimeoutMS    int
	CacheSizeKB      int // negative-cache-size target in KB (sqlite cache_size = -N)
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = 8
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = 5 * time.Second
	}
	if o.BusyTimeoutMS <= 0 {
		o.BusyTimeoutMS = 5000
	}
	if o.CacheSizeKB <= 0 {
		o.CacheSizeKB = 20000
	}
	return o
}

// Open opens (creating if necessary) the sqlite database at path with the
// fixed pragma set applied to every connection via DSN parameters: WAL
// journaling, NORMAL sync, a negative cache-size target, MEMORY temp store,
// a store-level busy timeout, and foreign keys on.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	dsn := buildDSN(path, opts)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, "open sqlite database", err)
	}
	db.SetMaxOpenConns(opts.PoolSize)
	db.SetMaxIdleConns(opts.PoolSize)

	s := &Store{
		db:               db,
		path:             path,
		sem:              semaphore.NewWeighted(int64(opts.PoolSize)),
		statementTimeout: opts.StatementTimeout,
	}

	// Fail fast if the pragmas didn't take (e.g. malformed DSN, read-only fs).
	ctx, cancel := context.WithTimeout(context.Background(), opts.StatementTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.CodePragmaFailed, "ping after open", err)
	}
	return s, nil
}

func buildDSN(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeoutMS))
	q.Add("_pragma", fmt.Sprintf("cache_size(-%d)", opts.CacheSizeKB))
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying *sql.DB for callers (e.g. schema migrations)
// that need direct PRAGMA/introspection access outside the retry/tx wrapper.
func (s *Store) DB() *sql.DB { return s.db }

// ─────────────────────────── retry / deadline ───────────────────────────

// withRetry runs fn, retrying on lock/busy errors with exponential backoff
// (base ~50ms, cap ~750ms, up to 6 attempts, jittered) before surfacing
// DB_ERROR. Mirrors internal/httpclient.DoWithRetry's backoff shape from the
// teacher, adapted from HTTP status codes to sqlite busy/locked errors.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	wait := defaultRetryBase
	for attempt := 0; attempt < defaultRetryMax; attempt++ {
		if attempt > 0 {
			jittered := time.Duration(float64(wait) * (0.75 + 0.5*rand.Float64()))
			select {
			case <-ctx.Done():
				return apperr.Wrap(apperr.CodeTimeout, "retry wait interrupted", ctx.Err())
			case <-time.After(jittered):
			}
			wait *= 2
			if wait > defaultRetryCap {
				wait = defaultRetryCap
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusyErr(lastErr) {
			return lastErr
		}
		log.Printf("store: busy/locked (attempt %d/%d): %v", attempt+1, defaultRetryMax, lastErr)
	}
	return apperr.Wrap(apperr.CodeDBError, "exhausted retries on busy/locked", lastErr)
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "sqlite_busy")
}

// withDeadline applies the store's per-statement deadline to ctx if the
// caller hasn't already set a tighter one.
func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < s.statementTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.statementTimeout)
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeTimeout, "statement deadline exceeded", err)
	}
	if ae := (*apperr.Error)(nil); errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.CodeDBError, "statement failed", err)
}

// ─────────────────────────────── execution ───────────────────────────────

// execer/queryer are satisfied by both *sql.DB and *sql.Tx/*sql.Conn so
// Execute/Query can transparently run against whichever is active for ctx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) conn(ctx context.Context) (execer, queryer, bool) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.conn, tx.conn, true
	}
	return s.db, s.db, false
}

// Execute runs a write statement, applying retry-on-busy and the
// per-statement deadline. If ctx carries an active transaction (via
// Store.WithTx), it runs against that transaction's connection; otherwise it
// acquires one from the pool for the duration of the call.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	exec, _, inTx := s.conn(ctx)
	if !inTx {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, apperr.Wrap(apperr.CodeTimeout, "pool capacity wait", err)
		}
		defer s.sem.Release(1)
	}
	var res sql.Result
	err := withRetry(ctx, func() error {
		dctx, cancel := s.withDeadline(ctx)
		defer cancel()
		var innerErr error
		res, innerErr = exec.ExecContext(dctx, query, args...)
		return innerErr
	})
	if err != nil {
		return nil, classifyErr(err)
	}
	return res, nil
}

// Query runs a read statement the same way Execute does. Callers must
// close the returned *sql.Rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	_, q, inTx := s.conn(ctx)
	if !inTx {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, apperr.Wrap(apperr.CodeTimeout, "pool capacity wait", err)
		}
		defer s.sem.Release(1)
	}
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		dctx, cancel := s.withDeadline(ctx)
		defer cancel()
		var innerErr error
		rows, innerErr = q.QueryContext(dctx, query, args...)
		return innerErr
	})
	if err != nil {
		return nil, classifyErr(err)
	}
	return rows, nil
}

// ExecuteMany runs query once per entry in paramsBatch, inside the caller's
// transaction scope if any. Returns total rows affected.
func (s *Store) ExecuteMany(ctx context.Context, query string, paramsBatch [][]any) (int64, error) {
	var total int64
	for _, params := range paramsBatch {
		res, err := s.Execute(ctx, query, params...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// ExecuteScript runs a multi-statement SQL script directly against the
// underlying connection (used by schema migrations).
func (s *Store) ExecuteScript(ctx context.Context, script string) error {
	exec, _, inTx := s.conn(ctx)
	if !inTx {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return apperr.Wrap(apperr.CodeTimeout, "pool capacity wait", err)
		}
		defer s.sem.Release(1)
	}
	dctx, cancel := s.withDeadline(ctx)
	defer cancel()
	if execSQL, ok := exec.(interface {
		ExecContext(context.Context, string, ...any) (sql.Result, error)
	}); ok {
		if _, err := execSQL.ExecContext(dctx, script); err != nil {
			return classifyErr(err)
		}
		return nil
	}
	return apperr.New(apperr.CodeDBError, "no executor for script")
}

// ────────────────────────────── kv metadata ──────────────────────────────

// GetSchemaVersion reads KeyValueMetadata's schema_version (0 if unset).
func (s *Store) GetSchemaVersion(ctx context.Context) (int, error) {
	rows, err := s.Query(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, nil
	}
	var v string
	if err := rows.Scan(&v); err != nil {
		return 0, classifyErr(err)
	}
	var n int
	fmt.Sscanf(v, "%d", &n)
	return n, nil
}

// SetSchemaVersion writes KeyValueMetadata's schema_version.
func (s *Store) SetSchemaVersion(ctx context.Context, version int) error {
	_, err := s.Execute(ctx, `INSERT INTO metadata(key, value) VALUES('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", version))
	return err
}

// HasTable reports whether name exists in sqlite_master.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	rows, err := s.Query(ctx, `SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?`, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

// Vacuum runs VACUUM outside any transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		return classifyErr(err)
	}
	return nil
}
