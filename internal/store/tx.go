package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snapetech/mjrindex/internal/apperr"
)

type txState struct {
	conn  *sql.Conn
	depth int
}

type txKeyType struct{}

var txKey = txKeyType{}

func txFromContext(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey).(*txState)
	return tx
}

// WithTx runs fn inside a transaction opened with the given mode. If ctx
// already carries an active transaction (a nested call), fn runs against
// that same connection with no new BEGIN/COMMIT — nested scopes are no-ops,
// per spec §4.1/§9's re-entrant write guard requirement.
//
// With an empty mode WithTx opens BEGIN IMMEDIATE, avoiding deferred-upgrade
// deadlocks (spec §4.1); callers needing a read-only or exclusive scope pass
// TxDeferred/TxExclusive explicitly.
func (s *Store) WithTx(ctx context.Context, mode TxMode, fn func(ctx context.Context) error) error {
	if existing := txFromContext(ctx); existing != nil {
		existing.depth++
		defer func() { existing.depth-- }()
		return fn(ctx)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(apperr.CodeTimeout, "pool capacity wait for transaction", err)
	}
	defer s.sem.Release(1)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, "acquire connection", err)
	}
	defer conn.Close()

	beginStmt := fmt.Sprintf("BEGIN %s", mode)
	if mode == "" {
		beginStmt = "BEGIN IMMEDIATE"
	}
	if err := withRetry(ctx, func() error {
		dctx, cancel := s.withDeadline(ctx)
		defer cancel()
		_, e := conn.ExecContext(dctx, beginStmt)
		return e
	}); err != nil {
		return classifyErr(err)
	}

	txCtx := context.WithValue(ctx, txKey, &txState{conn: conn})

	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
				panic(r)
			}
		}()
		return fn(txCtx)
	}()

	if runErr != nil {
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			return apperr.Wrap(apperr.CodeDBError, "rollback failed after error", runErr)
		}
		return runErr
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return apperr.Wrap(apperr.CodeDBError, "commit failed", err)
	}
	return nil
}

// GetKV reads a single KeyValueMetadata value, returning ("", false) if
// unset.
func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	rows, err := s.Query(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, nil
	}
	var v string
	if err := rows.Scan(&v); err != nil {
		return "", false, classifyErr(err)
	}
	return v, true, nil
}

// SetKV upserts a single KeyValueMetadata value.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.Execute(ctx, `INSERT INTO metadata(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
