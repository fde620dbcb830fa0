package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbag/core/internal/infrastructure/logger"
)

type prefixFilter struct{ prefix string }

func (f prefixFilter) Excluded(path string) bool {
	return f.prefix != "" && strings.HasPrefix(path, f.prefix)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		d.Touch()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_StopCancelsPendingCall(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Touch()
	d.Stop()
	d.Touch()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_TriggersOnChange(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32

	w, err := New(root, nil, 20*time.Millisecond, func() { calls.Add(1) }, logger.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "deploy.ps1"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Files inside directories created after start are seen too.
	sub := filepath.Join(root, "scripts")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(sub, "setup.sh"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresExcludedPaths(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, ".git")
	require.NoError(t, os.Mkdir(excluded, 0755))

	var calls atomic.Int32
	w, err := New(root, prefixFilter{prefix: excluded}, 20*time.Millisecond, func() { calls.Add(1) }, logger.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(excluded, "HEAD"), []byte("ref"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
