// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/videoforge/insights/internal/apperrors"
)

// Tx drives a transaction through a single checked-out *sql.Conn with
// nested-savepoint support. SQLite serializes writes itself, so the
// isolation level is advisory; IMMEDIATE is requested at BEGIN so the
// write lock is acquired up front rather than on first write, avoiding
// SQLITE_BUSY races between readers and the eventual writer.
//
// *sql.Tx cannot be constructed from an already-BEGIN'd connection, so
// the transaction is driven directly through the conn and Commit/
// Rollback/Savepoint issue the matching statements by hand.
type Tx struct {
	conn    *sql.Conn
	spCount atomic.Int64
}

// Transaction begins a new transaction with BEGIN IMMEDIATE semantics.
// Callers must call Commit or Rollback; WithTransaction is preferred for
// the common commit-on-success/rollback-on-error shape.
func (s *Store) Transaction(ctx context.Context) (*Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "acquire connection", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.StoreTransient, "begin immediate", err)
	}
	return &Tx{conn: conn}, nil
}

// Commit commits the underlying transaction and releases the connection.
func (tx *Tx) Commit(ctx context.Context) error {
	defer tx.conn.Close()
	if _, err := tx.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return apperrors.Wrap(apperrors.StoreTransient, "commit", err)
	}
	return nil
}

// Rollback rolls back the underlying transaction and releases the
// connection.
func (tx *Tx) Rollback(ctx context.Context) error {
	defer tx.conn.Close()
	if _, err := tx.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return apperrors.Wrap(apperrors.StoreTransient, "rollback", err)
	}
	return nil
}

// Savepoint creates a new named savepoint and returns its name.
func (tx *Tx) Savepoint(ctx context.Context) (string, error) {
	name := fmt.Sprintf("sp_%d", tx.spCount.Add(1))
	if _, err := tx.conn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return "", apperrors.Wrap(apperrors.StoreTransient, "savepoint", err)
	}
	return name, nil
}

// RollbackTo rolls back to the named savepoint without ending the
// enclosing transaction.
func (tx *Tx) RollbackTo(ctx context.Context, name string) error {
	if _, err := tx.conn.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
		return apperrors.Wrap(apperrors.StoreTransient, "rollback to savepoint", err)
	}
	return nil
}

// Release releases the named savepoint, folding its changes into the
// enclosing transaction or savepoint.
func (tx *Tx) Release(ctx context.Context, name string) error {
	if _, err := tx.conn.ExecContext(ctx, "RELEASE "+name); err != nil {
		return apperrors.Wrap(apperrors.StoreTransient, "release savepoint", err)
	}
	return nil
}

// Exec runs a statement within the transaction.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := tx.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "exec in transaction", err)
	}
	return res, nil
}

// Query runs a read query within the transaction.
func (tx *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := tx.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query in transaction", err)
	}
	return rows, nil
}

// QueryRow runs a single-row read query within the transaction.
func (tx *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.conn.QueryRowContext(ctx, query, args...)
}

// WithTransaction runs fn inside a transaction, committing on a nil
// return and rolling back otherwise. Panics are re-panicked after
// rollback.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Transaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return apperrors.Wrap(apperrors.StoreTransient, "rollback after error", err)
		}
		return err
	}

	return tx.Commit(ctx)
}
