package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileSnapshotter struct {
	err   error
	calls atomic.Int32
}

func (f *fileSnapshotter) Snapshot(_ context.Context, dest string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("snapshot"), 0o644)
}

func TestPerformBackup(t *testing.T) {
	dir := t.TempDir()
	src := &fileSnapshotter{}
	svc := NewBackupService(src, BackupOptions{Enabled: true, Dir: dir}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC) }

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "planner_20240312_093000.db"), path)
	assert.FileExists(t, path)

	src.err = errors.New("disk full")
	_, err = svc.PerformBackup(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.AddDate(0, 0, -10)

	write := func(name string, mod time.Time) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, mod, mod))
		return p
	}
	stale := write("planner_20240101_000000.db", old)
	fresh := write("planner_20240311_000000.db", now)
	foreign := write("notes.txt", old)

	svc := NewBackupService(&fileSnapshotter{}, BackupOptions{Enabled: true, Dir: dir, RetentionDays: 7}, zerolog.Nop())
	assert.Equal(t, 1, svc.CleanupOldBackups())

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
}

func TestStart_Disabled(t *testing.T) {
	src := &fileSnapshotter{}
	svc := NewBackupService(src, BackupOptions{Dir: t.TempDir()}, zerolog.Nop())
	svc.Start(context.Background())
	assert.Zero(t, src.calls.Load())
}

func TestStart_RunsImmediately(t *testing.T) {
	src := &fileSnapshotter{}
	svc := NewBackupService(src, BackupOptions{Enabled: true, Dir: t.TempDir(), Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
