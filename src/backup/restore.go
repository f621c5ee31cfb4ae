// src/backup/restore.go
package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BanziSeo/habiOS-sub002/src/logger"
)

// ErrNotAnArchive is returned when the archive lacks a recognizable database
// entry.
var ErrNotAnArchive = errors.New("archive does not contain a database file")

// Restore installs the archive's files in place of the live ones. The write
// queue is drained before the handle closes (sequencing, not locking); the
// current files are copied aside first, and any failure after that point puts
// them back verbatim, reopens the handle, and re-raises the original error.
func (e *Engine) Restore(ctx context.Context, archivePath string) (err error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening backup archive: %w", err)
	}
	defer zr.Close()

	dbPath := e.handle.Path()
	dbName := filepath.Base(dbPath)
	entries := map[string]*zip.File{}
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	if _, ok := entries[dbName]; !ok {
		return fmt.Errorf("%w: expected entry %q", ErrNotAnArchive, dbName)
	}

	// No new writes may be accepted while the files are being swapped;
	// callers see ErrQueuePaused instead of a half-closed handle.
	e.queue.Pause()
	defer e.queue.Resume()
	if err := e.queue.Quiesce(ctx); err != nil {
		return fmt.Errorf("draining write queue before restore: %w", err)
	}
	if err := e.handle.Close(); err != nil {
		return fmt.Errorf("closing storage handle before restore: %w", err)
	}

	safety, err := e.takeSafetyCopy()
	if err != nil {
		// Nothing was touched yet; just get the handle back.
		e.reopen(ctx)
		return fmt.Errorf("taking safety copy: %w", err)
	}
	defer os.RemoveAll(safety.dir)

	install := func() error {
		liveFiles := map[string]string{
			dbName:                         dbPath,
			dbName + "-wal":                dbPath + "-wal",
			dbName + "-shm":                dbPath + "-shm",
			filepath.Base(e.settings.Path()): e.settings.Path(),
		}
		for entryName, target := range liveFiles {
			entry, ok := entries[entryName]
			if !ok {
				// The archive predates this sidecar; a stale live copy must
				// not survive next to the restored database.
				if entryName != filepath.Base(e.settings.Path()) {
					if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
						return rmErr
					}
				}
				continue
			}
			if err := extractEntry(entry, target); err != nil {
				return err
			}
		}
		return nil
	}

	if installErr := install(); installErr != nil {
		logger.L.Error("Restore failed after safety copy; rolling back", "error", installErr)
		if rbErr := safety.restore(); rbErr != nil {
			logger.L.Error("Safety-copy rollback failed; storage may need manual recovery", "error", rbErr)
		}
		e.reopen(ctx)
		return fmt.Errorf("installing backup files: %w", installErr)
	}

	if err := e.reopen(ctx); err != nil {
		logger.L.Error("Reopening storage after restore failed; rolling back", "error", err)
		if rbErr := safety.restore(); rbErr != nil {
			logger.L.Error("Safety-copy rollback failed; storage may need manual recovery", "error", rbErr)
		} else {
			e.reopen(ctx)
		}
		return fmt.Errorf("reopening storage after restore: %w", err)
	}

	if err := e.settings.Reload(); err != nil {
		logger.L.Warn("Restored settings file could not be loaded", "error", err)
	}
	logger.L.Info("Restore complete", "archive", archivePath)
	return nil
}

// RestoreLegacy restores from a bare database file (pre-archive backups) with
// the same close/copy/reopen/rollback discipline, minus the metadata step.
func (e *Engine) RestoreLegacy(ctx context.Context, filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("backup file not readable: %w", err)
	}

	e.queue.Pause()
	defer e.queue.Resume()
	if err := e.queue.Quiesce(ctx); err != nil {
		return fmt.Errorf("draining write queue before restore: %w", err)
	}
	if err := e.handle.Close(); err != nil {
		return fmt.Errorf("closing storage handle before restore: %w", err)
	}

	safety, err := e.takeSafetyCopy()
	if err != nil {
		e.reopen(ctx)
		return fmt.Errorf("taking safety copy: %w", err)
	}
	defer os.RemoveAll(safety.dir)

	dbPath := e.handle.Path()
	install := func() error {
		if err := copyFile(filePath, dbPath); err != nil {
			return err
		}
		// The incoming file carries no WAL; stale sidecars would corrupt it.
		for _, sidecar := range []string{dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	}

	if installErr := install(); installErr != nil {
		logger.L.Error("Legacy restore failed after safety copy; rolling back", "error", installErr)
		if rbErr := safety.restore(); rbErr != nil {
			logger.L.Error("Safety-copy rollback failed; storage may need manual recovery", "error", rbErr)
		}
		e.reopen(ctx)
		return fmt.Errorf("installing backup file: %w", installErr)
	}

	if err := e.reopen(ctx); err != nil {
		if rbErr := safety.restore(); rbErr != nil {
			logger.L.Error("Safety-copy rollback failed; storage may need manual recovery", "error", rbErr)
		} else {
			e.reopen(ctx)
		}
		return fmt.Errorf("reopening storage after restore: %w", err)
	}
	logger.L.Info("Legacy restore complete", "file", filePath)
	return nil
}

func (e *Engine) reopen(ctx context.Context) error {
	return e.handle.Reconnect(ctx, e.reconnectAttempts, e.reconnectDelay)
}

// safetyCopy tracks the pre-restore state of every live file so it can be put
// back verbatim.
type safetyCopy struct {
	dir   string
	files map[string]string // live path -> copy path ("" when the live file was absent)
}

func (e *Engine) takeSafetyCopy() (*safetyCopy, error) {
	dir, err := os.MkdirTemp(filepath.Dir(e.handle.Path()), "restore-safety-")
	if err != nil {
		return nil, err
	}
	sc := &safetyCopy{dir: dir, files: map[string]string{}}
	dbPath := e.handle.Path()
	for _, live := range []string{dbPath, dbPath + "-wal", dbPath + "-shm", e.settings.Path()} {
		if _, err := os.Stat(live); err != nil {
			if os.IsNotExist(err) {
				sc.files[live] = ""
				continue
			}
			os.RemoveAll(dir)
			return nil, err
		}
		dst := filepath.Join(dir, filepath.Base(live))
		if err := copyFile(live, dst); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		sc.files[live] = dst
	}
	return sc, nil
}

// restore puts every live file back exactly as it was, removing files that
// did not exist before.
func (sc *safetyCopy) restore() error {
	var firstErr error
	for live, saved := range sc.files {
		if saved == "" {
			if err := os.Remove(live); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := copyFile(saved, live); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func extractEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, rc); err != nil {
		dst.Close()
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	return dst.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
