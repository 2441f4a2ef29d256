package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/app"
	"github.com/JakeFAU/techradar/internal/config"
	memorypublisher "github.com/JakeFAU/techradar/internal/publisher/memory"
	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/storage/local"
	"github.com/JakeFAU/techradar/internal/storage/memory"
)

func loadConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Worker.PollIntervalMs = 10
	return cfg
}

func TestNewDefaultsToInMemoryServices(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), loadConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.IsType(t, &memory.Store{}, a.Store())
	require.IsType(t, &memorypublisher.Publisher{}, a.Publisher())
	require.Nil(t, a.Archive())
	require.NotNil(t, a.Discoverer())
	require.NotNil(t, a.Orchestrator())

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDummyRunEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Archive.Backend = config.BackendMemory
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Dispatcher().Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	out, err := a.Dispatcher().Enqueue(context.Background(), radar.RunParams{
		Mode:   radar.ModeDummy,
		Limits: map[radar.Category]int{radar.CategoryAI: 2},
	}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, err := a.Store().GetRun(context.Background(), out.RunID)
		return err == nil && run.Status == radar.RunStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	run, err := a.Store().GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	require.Equal(t, 2, run.Result.Counts.TotalStored)

	archive, ok := a.Archive().(*memory.BlobStore)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		_, _, found := archive.Object("runs/" + out.RunID + ".json")
		return found
	}, time.Second, 10*time.Millisecond)

	pub, ok := a.Publisher().(*memorypublisher.Publisher)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return len(pub.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "radar-runs", pub.Messages()[0].Topic)
}

func TestNewLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Archive.Backend = config.BackendLocal
	cfg.Archive.BaseDir = filepath.Join(t.TempDir(), "archive")
	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.IsType(t, &local.BlobStore{}, a.Archive())
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t)
	cfg.Archive.Backend = "s3"
	_, err := app.New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown archive backend: s3")

	cfg = loadConfig(t)
	cfg.Cache.Backend = "memcached"
	_, err = app.New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown cache backend: memcached")
}
