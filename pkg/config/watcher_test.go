package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherPulsesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slskd.yml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o644))

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no pulse after config write")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slskd.yml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1\n"), 0o644))

	select {
	case <-w.Events():
		t.Fatal("pulse for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherSurvivesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slskd.yml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()

	// Editors often write a temp file and rename it over the target.
	tmp := filepath.Join(dir, ".slskd.yml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("debug: true\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no pulse after rename-replace")
	}
}
