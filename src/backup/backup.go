// src/backup/backup.go
//
// Snapshots the database plus the auxiliary settings file into a portable zip
// archive, and restores such archives (or legacy bare database files) with a
// safety copy and rollback, so the live store is never left half-restored.
package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/settings"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
)

const (
	infoEntryName = "backup_info.json"
	// FormatVersion identifies the archive layout. Bump when entries change.
	FormatVersion = 2
)

// Info is the metadata record packaged with every archive.
type Info struct {
	FormatVersion int       `json:"formatVersion"`
	AppVersion    string    `json:"appVersion"`
	Timestamp     time.Time `json:"timestamp"`
	Platform      string    `json:"platform"`
}

// Engine performs backup and restore against the live storage handle. It and
// the write queue are the only components allowed to close/reopen the handle.
type Engine struct {
	handle     *database.Handle
	queue      *writequeue.Queue
	settings   *settings.Store
	dir        string
	appVersion string

	reconnectAttempts int
	reconnectDelay    time.Duration
}

func New(handle *database.Handle, queue *writequeue.Queue, st *settings.Store, dir, appVersion string, reconnectAttempts int, reconnectDelay time.Duration) *Engine {
	return &Engine{
		handle:            handle,
		queue:             queue,
		settings:          st,
		dir:               dir,
		appVersion:        appVersion,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
	}
}

// Create takes a snapshot and returns the archive path. The write queue is
// drained and the WAL checkpointed first, so the snapshot reflects every
// acknowledged write.
func (e *Engine) Create(ctx context.Context) (string, error) {
	if err := e.queue.Quiesce(ctx); err != nil {
		return "", fmt.Errorf("draining write queue before backup: %w", err)
	}
	if err := e.handle.Checkpoint(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	archivePath := filepath.Join(e.dir, fmt.Sprintf("habios-backup-%s.zip", time.Now().Format("20060102-150405")))

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating backup archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	info := Info{
		FormatVersion: FormatVersion,
		AppVersion:    e.appVersion,
		Timestamp:     time.Now().UTC(),
		Platform:      runtime.GOOS,
	}
	infoBytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", err
	}
	w, err := zw.Create(infoEntryName)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(infoBytes); err != nil {
		return "", err
	}

	dbPath := e.handle.Path()
	entries := []struct {
		path     string
		required bool
	}{
		{dbPath, true},
		{dbPath + "-wal", false},
		{dbPath + "-shm", false},
		{e.settings.Path(), false},
	}
	for _, entry := range entries {
		if _, err := os.Stat(entry.path); err != nil {
			if os.IsNotExist(err) && !entry.required {
				continue
			}
			return "", fmt.Errorf("stat %s: %w", entry.path, err)
		}
		if err := addFileEntry(zw, entry.path); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalizing backup archive: %w", err)
	}
	logger.L.Info("Backup created", "archive", archivePath)
	return archivePath, nil
}

func addFileEntry(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for backup: %w", path, err)
	}
	defer src.Close()
	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}

// ReadInfo extracts the metadata record from an archive without restoring it.
func ReadInfo(archivePath string) (Info, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return Info{}, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()
	for _, entry := range zr.File {
		if entry.Name != infoEntryName {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return Info{}, err
		}
		defer rc.Close()
		var info Info
		if err := json.NewDecoder(rc).Decode(&info); err != nil {
			return Info{}, fmt.Errorf("parsing %s: %w", infoEntryName, err)
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("archive has no %s entry", infoEntryName)
}
