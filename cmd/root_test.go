package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techradar/internal/discovery"
	"github.com/JakeFAU/techradar/internal/dispatcher"
	"github.com/JakeFAU/techradar/internal/radar"
)

const testConfigYAML = `
logging:
  development: false
  level: error
worker:
  poll_interval_ms: 10
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "techradar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueuePrintsIDs(t *testing.T) {
	t.Parallel()

	out, err := run(t, "enqueue", "--mode", "dummy")
	require.NoError(t, err)

	var enqueued dispatcher.Enqueued
	require.NoError(t, json.Unmarshal([]byte(out), &enqueued))
	require.NotEmpty(t, enqueued.RunID)
	require.NotEmpty(t, enqueued.JobID)
	require.NotEqual(t, enqueued.RunID, enqueued.JobID)
}

func TestEnqueueWaitRunsDummyMode(t *testing.T) {
	t.Parallel()

	out, err := run(t, "enqueue", "--mode", "dummy", "--limit", "AI=2,BE=1", "--wait")
	require.NoError(t, err)

	var finished radar.Run
	require.NoError(t, json.Unmarshal([]byte(out), &finished))
	require.Equal(t, radar.RunStatusSuccess, finished.Status)
	require.NotNil(t, finished.Result)
	require.Equal(t, 3, finished.Result.Counts.TotalStored)
	require.Equal(t, radar.ModeDummy, finished.Params.Mode)
}

func TestEnqueueRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	_, err := run(t, "enqueue", "--mode", "turbo")
	require.ErrorContains(t, err, "mode")

	_, err = run(t, "enqueue", "--limit", "XX=1")
	require.ErrorContains(t, err, "unknown category")
}

func TestEnqueueOptionsParams(t *testing.T) {
	t.Parallel()

	opts := enqueueOptions{
		mode:         "real",
		locale:       "ko",
		sources:      []string{"s1", "s2"},
		htmlFallback: false,
		limits:       map[string]int{"AI": 4},
	}
	params := opts.params(true)
	require.Equal(t, radar.ModeReal, params.Mode)
	require.Equal(t, "ko", params.Locale)
	require.Equal(t, []string{"s1", "s2"}, params.SourceIDs)
	require.NotNil(t, params.HTMLFallback)
	require.False(t, *params.HTMLFallback)
	require.Equal(t, 4, params.Limits[radar.CategoryAI])

	require.Nil(t, opts.params(false).HTMLFallback)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := run(t, "migrate", "up")
	require.ErrorContains(t, err, "db.dsn is required")

	_, err = run(t, "migrate", "down", "--steps", "2")
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestDiscoverPrintsFeeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title></channel></rss>`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "discover", srv.URL+"/feed.xml")
	require.NoError(t, err)

	var result discovery.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, []string{srv.URL + "/feed.xml"}, result.Feeds)
}

func TestDiscoverRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := run(t, "discover", "ftp://example.com")
	require.ErrorIs(t, err, discovery.ErrInvalidURL)
}

func TestUnknownConfigFile(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "worker"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "load config")
}
