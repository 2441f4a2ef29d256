package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techradar/internal/storage/local"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "archive", "runs")
	_, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{BaseDir: "  "})
	require.ErrorContains(t, err, "archive.base_dir")

	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = local.New(local.Config{BaseDir: file})
	require.ErrorContains(t, err, "not a directory")
}

func TestPutObjectWritesSnapshot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	data := []byte(`{"id":"run-1","status":"success"}`)
	uri, err := store.PutObject(context.Background(), "runs/run-1.json", "application/json", bytes.NewReader(data))
	require.NoError(t, err)

	full := filepath.Join(base, "runs", "run-1.json")
	require.Equal(t, "file://"+full, uri)
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(full)
	require.NoError(t, err)
	require.Equal(t, data, got)

	entries, err := os.ReadDir(filepath.Join(base, "runs"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestPutObjectOverwrites(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	for _, body := range []string{`{"v":1}`, `{"v":2}`} {
		_, err := store.PutObject(context.Background(), "runs/run-1.json", "application/json", strings.NewReader(body))
		require.NoError(t, err)
	}
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(base, "runs", "run-1.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(got))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("data"))
	require.ErrorContains(t, err, "path is required")

	_, err = store.PutObject(context.Background(), "../escape.json", "application/json", strings.NewReader("{}"))
	require.ErrorIs(t, err, local.ErrPathTraversal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.PutObject(ctx, "runs/late.json", "application/json", strings.NewReader("{}"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.PutObject(context.Background(), "runs/broken.json", "application/json", failingReader{})
	require.ErrorContains(t, err, "disk on fire")
	entries, err := os.ReadDir(filepath.Join(base, "runs"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
