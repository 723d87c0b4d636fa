package settings_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reglet-dev/exthost/infrastructure/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signalReloader struct {
	reloads chan struct{}
	err     error
}

func (r *signalReloader) ReloadGrantedCapabilities(context.Context) error {
	r.reloads <- struct{}{}
	return r.err
}

func startWatcher(t *testing.T, path string, r settings.Reloader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := settings.NewGrantsWatcher(path, r, settings.WithDebounce(20*time.Millisecond))
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give the watcher a moment to register before the test writes.
	time.Sleep(50 * time.Millisecond)
}

func TestGrantsWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exthost", "grants.yaml")
	r := &signalReloader{reloads: make(chan struct{}, 8)}
	startWatcher(t, path, r)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Dir(path))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "watcher creates the grants directory")
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("granted_extension_capabilities: []\n"), 0o600))

	select {
	case <-r.reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the grants file was written")
	}
}

func TestGrantsWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	r := &signalReloader{reloads: make(chan struct{}, 8)}
	startWatcher(t, filepath.Join(dir, "grants.yaml"), r)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "exthost.yaml"), []byte("log_level: debug\n"), 0o600))

	select {
	case <-r.reloads:
		t.Fatal("reloaded for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGrantsWatcher_KeepsRunningAfterReloadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	r := &signalReloader{reloads: make(chan struct{}, 8), err: errors.New("bad yaml")}
	startWatcher(t, path, r)

	for i := range 2 {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		select {
		case <-r.reloads:
		case <-time.After(5 * time.Second):
			t.Fatalf("no reload for write %d", i)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
