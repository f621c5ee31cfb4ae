// src/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/logger"
	_ "modernc.org/sqlite"
)

// Handle owns the process-wide sqlite connection. Components receive it by
// injection; only the write queue and the backup engine may close or reopen it.
type Handle struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
}

// Open opens the database file with WAL mode, busy_timeout and foreign keys
// enabled, and verifies the connection with a ping.
func Open(path string) (*Handle, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	// Limit open connections to 1 for SQLite to avoid locking issues.
	// Reads go through the same connection; WAL keeps them cheap.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.L.Info("Database connection established with WAL mode, busy_timeout, and foreign_keys enabled.", "path", path)
	return &Handle{db: db, path: path}, nil
}

// DB returns the underlying *sql.DB. Callers must not hold on to it across a
// Reconnect.
func (h *Handle) DB() *sql.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db
}

// Path returns the database file path the handle was opened with.
func (h *Handle) Path() string {
	return h.path
}

// Close closes the underlying connection. Safe to call on an already-closed
// handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Reconnect closes the current connection (if any) and reopens it, retrying up
// to attempts times with a fixed delay between tries. The wait yields to the
// context instead of blocking, so a shutdown can interrupt it.
func (h *Handle) Reconnect(ctx context.Context, attempts int, delay time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		if err := h.db.Close(); err != nil {
			logger.L.Warn("Closing stale database connection failed", "error", err)
		}
		h.db = nil
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := sql.Open("sqlite", dsn(h.path))
		if err == nil {
			db.SetMaxOpenConns(1)
			if err = db.PingContext(ctx); err == nil {
				h.db = db
				logger.L.Info("Database reconnected", "path", h.path, "attempt", i)
				return nil
			}
			db.Close()
		}
		lastErr = err
		logger.L.Warn("Database reconnect attempt failed", "attempt", i, "of", attempts, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("reconnect aborted: %w", ctx.Err())
		}
	}
	return fmt.Errorf("database reconnect exhausted %d attempts: %w", attempts, lastErr)
}

// Checkpoint forces a WAL checkpoint so the main database file reflects all
// acknowledged writes. Required before copying the file for a backup.
func (h *Handle) Checkpoint() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return fmt.Errorf("checkpoint: database is closed")
	}
	if _, err := h.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return nil
}
