// SPDX-License-Identifier: MIT

// Package store provides the typed persistence layer over a single
// embedded SQLite file: connection pool, prepared-statement cache,
// nested-transaction helpers, and schema initialization. Every other
// component reaches the database exclusively through this package.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/log"
)

// Config defines the operational parameters for the SQLite connection pool.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	StmtCacheSize   int
}

// DefaultConfig returns the recommended pool configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		StmtCacheSize:   50,
	}
}

// Store wraps a *sql.DB opened against a single SQLite file with the
// pragmas required for correctness under concurrent access, plus a
// bounded, FIFO-evicted prepared-statement cache.
type Store struct {
	db  *sql.DB
	cfg Config

	stmtMu    sync.Mutex
	stmtCache map[string]*sql.Stmt
	stmtOrder []string
}

// Open initializes a connection pool against path with mandatory pragmas:
// WAL journaling, the configured busy timeout, NORMAL synchronous mode,
// a 64MB page cache, memory temp storage, and foreign-key enforcement.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)&_pragma=temp_store(MEMORY)",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreFatal, "open sqlite database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.StoreFatal, "ping sqlite database", err)
	}

	s := &Store{
		db:        db,
		cfg:       cfg,
		stmtCache: make(map[string]*sql.Stmt, cfg.StmtCacheSize),
	}

	log.WithComponent("store").Info().Str("path", cfg.Path).Msg("store opened")
	return s, nil
}

// Close releases the underlying connection pool and all cached statements.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, key := range s.stmtOrder {
		if stmt, ok := s.stmtCache[key]; ok {
			_ = stmt.Close()
		}
	}
	s.stmtCache = nil
	s.stmtOrder = nil
	s.stmtMu.Unlock()

	return s.db.Close()
}

// DB exposes the underlying pool for components that need raw access
// (e.g. integrity tooling running ad-hoc diagnostic queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

func stmtKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:16])
}

// prepare returns a cached prepared statement for query, preparing and
// inserting it if absent. The cache is bounded at cfg.StmtCacheSize with
// FIFO eviction.
func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	key := stmtKey(query)

	s.stmtMu.Lock()
	if stmt, ok := s.stmtCache[key]; ok {
		s.stmtMu.Unlock()
		return stmt, nil
	}
	s.stmtMu.Unlock()

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "prepare statement", err)
	}

	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if existing, ok := s.stmtCache[key]; ok {
		_ = stmt.Close()
		return existing, nil
	}
	if len(s.stmtOrder) >= s.cfg.StmtCacheSize {
		oldest := s.stmtOrder[0]
		s.stmtOrder = s.stmtOrder[1:]
		if old, ok := s.stmtCache[oldest]; ok {
			_ = old.Close()
			delete(s.stmtCache, oldest)
		}
	}
	s.stmtCache[key] = stmt
	s.stmtOrder = append(s.stmtOrder, key)
	return stmt, nil
}

// ExecuteQuery runs a read query through the prepared-statement cache.
func (s *Store) ExecuteQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "execute query", err)
	}
	return rows, nil
}

// ExecuteUpdate runs a write statement through the prepared-statement
// cache and returns the number of affected rows.
func (s *Store) ExecuteUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.StoreTransient, "execute update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.StoreTransient, "read rows affected", err)
	}
	return n, nil
}

// ExecuteBatch runs query once per entry in argsList, in one transaction
// per chunk of batchSize entries, each committed on its own (a batchSize
// of 0 or less puts every entry in a single transaction). It returns the
// total number of affected rows, including those of chunks committed
// before a failing one.
func (s *Store) ExecuteBatch(ctx context.Context, query string, argsList [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = len(argsList)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	var total int64
	for offset := 0; offset < len(argsList); offset += batchSize {
		end := offset + batchSize
		if end > len(argsList) {
			end = len(argsList)
		}
		chunk := argsList[offset:end]

		err := s.WithTransaction(ctx, func(tx *Tx) error {
			for _, args := range chunk {
				res, err := tx.Exec(ctx, query, args...)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return apperrors.Wrap(apperrors.StoreTransient, "read batch rows affected", err)
				}
				total += n
			}
			return nil
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
