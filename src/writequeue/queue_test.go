// src/writequeue/queue_test.go
package writequeue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestQueue(t *testing.T, capacity int) (*database.Handle, *Queue) {
	t.Helper()
	h, err := database.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	_, err = h.DB().Exec(`CREATE TABLE log (seq INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT NOT NULL)`)
	require.NoError(t, err)

	q := New(h, capacity)
	t.Cleanup(func() {
		q.Shutdown(2 * time.Second)
		h.Close()
	})
	return h, q
}

func readLabels(t *testing.T, h *database.Handle) []string {
	t.Helper()
	rows, err := h.DB().Query("SELECT label FROM log ORDER BY seq ASC")
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var label string
		require.NoError(t, rows.Scan(&label))
		out = append(out, label)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestSubmitRunsTasksInOrder(t *testing.T) {
	h, q := newTestQueue(t, 100)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		label := fmt.Sprintf("task-%02d", i)
		require.NoError(t, q.Submit(ctx, label, func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO log (label) VALUES (?)", label)
			return err
		}))
	}

	labels := readLabels(t, h)
	require.Len(t, labels, 20)
	for i, label := range labels {
		assert.Equal(t, fmt.Sprintf("task-%02d", i), label)
	}
}

func TestSubmitRollsBackFailedTask(t *testing.T) {
	h, q := newTestQueue(t, 10)
	ctx := context.Background()

	taskErr := errors.New("boom")
	err := q.Submit(ctx, "failing", func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO log (label) VALUES ('should-vanish')"); err != nil {
			return err
		}
		return taskErr
	})
	require.ErrorIs(t, err, taskErr)

	assert.Empty(t, readLabels(t, h), "failed task must leave no rows behind")
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	_, q := newTestQueue(t, 1)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	blockerDone := make(chan error, 1)

	// Occupy the worker so queued tasks pile up behind it.
	go func() {
		blockerDone <- q.Submit(ctx, "blocker", func(tx *sql.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Fill the single buffer slot.
	queuedDone := make(chan error, 1)
	go func() {
		queuedDone <- q.Submit(ctx, "queued", func(tx *sql.Tx) error { return nil })
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// Capacity exhausted: the enqueue must fail fast, never block.
	err := q.Submit(ctx, "overflow", func(tx *sql.Tx) error { return nil })
	require.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, <-blockerDone)
	require.NoError(t, <-queuedDone)
}

func TestSubmitContextAbandonsWaitNotTask(t *testing.T) {
	h, q := newTestQueue(t, 10)

	release := make(chan struct{})
	started := make(chan struct{})
	blockerDone := make(chan error, 1)
	go func() {
		blockerDone <- q.Submit(context.Background(), "blocker", func(tx *sql.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		abandoned <- q.Submit(ctx, "abandoned", func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO log (label) VALUES ('ran-anyway')")
			return err
		})
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-abandoned, context.Canceled)

	close(release)
	require.NoError(t, <-blockerDone)

	// The abandoned task still executes once dequeued.
	require.NoError(t, q.Quiesce(context.Background()))
	assert.Equal(t, []string{"ran-anyway"}, readLabels(t, h))
}

func TestQuiesceWaitsForQueuedWork(t *testing.T) {
	h, q := newTestQueue(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Submit(ctx, "bg", func(tx *sql.Tx) error {
				_, err := tx.Exec("INSERT INTO log (label) VALUES ('bg')")
				return err
			})
		}()
	}
	wg.Wait()

	require.NoError(t, q.Quiesce(ctx))
	assert.Len(t, readLabels(t, h), 10)
}

func TestPauseStopsIntakeUntilResume(t *testing.T) {
	h, q := newTestQueue(t, 10)
	ctx := context.Background()

	q.Pause()
	err := q.Submit(ctx, "during-pause", func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO log (label) VALUES ('during-pause')")
		return err
	})
	require.ErrorIs(t, err, ErrQueuePaused)

	// Draining still works while paused; restores depend on it.
	require.NoError(t, q.Quiesce(ctx))

	q.Resume()
	require.NoError(t, q.Submit(ctx, "after-resume", func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO log (label) VALUES ('after-resume')")
		return err
	}))
	assert.Equal(t, []string{"after-resume"}, readLabels(t, h))
}

func TestShutdownStopsIntake(t *testing.T) {
	h, err := database.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer h.Close()
	q := New(h, 10)

	q.Shutdown(time.Second)

	err = q.Submit(context.Background(), "late", func(tx *sql.Tx) error { return nil })
	require.ErrorIs(t, err, ErrQueueClosed)
	require.ErrorIs(t, q.Quiesce(context.Background()), ErrQueueClosed)
}
