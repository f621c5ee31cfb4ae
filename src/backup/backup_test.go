// src/backup/backup_test.go
package backup

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/settings"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type fixture struct {
	handle   *database.Handle
	queue    *writequeue.Queue
	settings *settings.Store
	engine   *Engine
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	h, err := database.Open(filepath.Join(dir, "habios.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(h.DB(), database.JournalMigrations()))

	st, err := settings.Open(filepath.Join(dir, "habios-settings.json"))
	require.NoError(t, err)

	q := writequeue.New(h, 100)
	t.Cleanup(func() {
		q.Shutdown(2 * time.Second)
		h.Close()
	})

	e := New(h, q, st, filepath.Join(dir, "backups"), "test", 3, 10*time.Millisecond)
	return &fixture{handle: h, queue: q, settings: st, engine: e, dir: dir}
}

func (f *fixture) addAccount(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, store.InsertAccount(f.handle.DB(), models.Account{
		ID: id, Name: "acct " + id, AccountType: models.AccountTypeUS,
		Currency: models.CurrencyUSD, InitialBalance: decimal.NewFromInt(1000),
	}))
}

func (f *fixture) accountIDs(t *testing.T) []string {
	t.Helper()
	accounts, err := store.ListAccounts(f.handle.DB())
	require.NoError(t, err)
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestBackupRestoreCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccount(t, "kept")
	require.NoError(t, f.settings.Set("theme", "dark"))

	archive, err := f.engine.Create(ctx)
	require.NoError(t, err)
	require.FileExists(t, archive)

	// Diverge from the snapshot.
	f.addAccount(t, "after-snapshot")
	require.NoError(t, f.settings.Set("theme", "light"))
	require.Len(t, f.accountIDs(t), 2)

	require.NoError(t, f.engine.Restore(ctx, archive))

	assert.Equal(t, []string{"kept"}, f.accountIDs(t))
	theme, err := f.settings.GetString("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme, "settings roll back with the database")

	// The reopened handle accepts writes again.
	f.addAccount(t, "post-restore")
	assert.Len(t, f.accountIDs(t), 2)
}

func TestReadInfo(t *testing.T) {
	f := newFixture(t)
	archive, err := f.engine.Create(context.Background())
	require.NoError(t, err)

	info, err := ReadInfo(archive)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, info.FormatVersion)
	assert.Equal(t, "test", info.AppVersion)
	assert.Equal(t, runtime.GOOS, info.Platform)
	assert.WithinDuration(t, time.Now(), info.Timestamp, time.Minute)
}

func TestRestoreRejectsArchiveWithoutDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "survivor")

	// A zip that is valid but holds no database entry.
	bogus := filepath.Join(f.dir, "bogus.zip")
	out, err := os.Create(bogus)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("unrelated.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	err = f.engine.Restore(ctx, bogus)
	require.ErrorIs(t, err, ErrNotAnArchive)

	// The live store is untouched and still writable.
	assert.Equal(t, []string{"survivor"}, f.accountIDs(t))
	f.addAccount(t, "still-works")
}

func TestRestorePausesWriteIntake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccount(t, "kept")
	archive, err := f.engine.Create(ctx)
	require.NoError(t, err)

	// Occupy the worker so the restore sits in its drain phase with intake
	// already paused.
	started := make(chan struct{})
	release := make(chan struct{})
	blockerDone := make(chan error, 1)
	go func() {
		blockerDone <- f.queue.Submit(ctx, "blocker", func(tx *sql.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	restoreDone := make(chan error, 1)
	go func() {
		restoreDone <- f.engine.Restore(ctx, archive)
	}()

	// A write landing mid-restore is refused outright instead of failing
	// later against a closed handle.
	require.Eventually(t, func() bool {
		tick, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := f.queue.Submit(tick, "mid-restore", func(tx *sql.Tx) error { return nil })
		return errors.Is(err, writequeue.ErrQueuePaused)
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, <-blockerDone)
	require.NoError(t, <-restoreDone)

	// Intake resumes once the restore finishes.
	f.addAccount(t, "post-restore")
	assert.Equal(t, []string{"kept", "post-restore"}, f.accountIDs(t))
}

func TestRestoreRejectsGarbageFile(t *testing.T) {
	f := newFixture(t)
	garbage := filepath.Join(f.dir, "garbage.zip")
	require.NoError(t, os.WriteFile(garbage, []byte("not a zip at all"), 0o644))
	require.Error(t, f.engine.Restore(context.Background(), garbage))
}

func TestRestoreLegacyBareDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccount(t, "old-state")
	require.NoError(t, f.queue.Quiesce(ctx))
	require.NoError(t, f.handle.Checkpoint())

	// Snapshot the bare database file, the pre-archive backup format.
	legacy := filepath.Join(f.dir, "manual-backup.db")
	src, err := os.ReadFile(f.handle.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(legacy, src, 0o644))

	f.addAccount(t, "newer")
	require.Len(t, f.accountIDs(t), 2)

	require.NoError(t, f.engine.RestoreLegacy(ctx, legacy))

	assert.Equal(t, []string{"old-state"}, f.accountIDs(t))

	f.addAccount(t, "post-restore")
	assert.Len(t, f.accountIDs(t), 2)
}

func TestRestoreLegacyMissingFile(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.engine.RestoreLegacy(context.Background(), filepath.Join(f.dir, "absent.db")))
}

func TestBackupIncludesSettingsEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settings.Set("theme", "dark"))

	archive, err := f.engine.Create(context.Background())
	require.NoError(t, err)

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, entry := range zr.File {
		names[entry.Name] = true
	}
	assert.True(t, names["backup_info.json"])
	assert.True(t, names["habios.db"])
	assert.True(t, names["habios-settings.json"])
}
