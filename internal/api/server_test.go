package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/config"
	"github.com/JakeFAU/techradar/internal/discovery"
	"github.com/JakeFAU/techradar/internal/dispatcher"
	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/storage/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeDiscoverer struct {
	result discovery.Result
	err    error
	got    string
}

func (d *fakeDiscoverer) Discover(_ context.Context, rawURL string) (discovery.Result, error) {
	d.got = rawURL
	return d.result, d.err
}

type failingEnqueuer struct{ err error }

func (f failingEnqueuer) Enqueue(context.Context, radar.RunParams, int) (dispatcher.Enqueued, error) {
	return dispatcher.Enqueued{}, f.err
}

type downStore struct {
	*memory.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Worker: config.WorkerConfig{Concurrency: 1, MaxAttempts: 4},
	}
}

type testEnv struct {
	server     *Server
	store      *memory.Store
	discoverer *fakeDiscoverer
}

func newTestEnv(cfg config.Config) testEnv {
	store := memory.NewStore()
	disc := &fakeDiscoverer{}
	dispatch := dispatcher.New(store, &seqIDs{}, fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}, nil)
	return testEnv{
		server:     NewServer(store, dispatch, disc, cfg, zap.NewNop()),
		store:      store,
		discoverer: disc,
	}
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := serve(env.server, req)

	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(downStore{memory.NewStore()}, failingEnqueuer{}, &fakeDiscoverer{}, testConfig(), nil)
	rec = serve(down, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "store unavailable")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	serve(env.server, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_CreateRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	body := `{"mode":"dummy","locale":"en","limits":{"AI":3},"max_attempts":2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
	rec := serve(env.server, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"run_id":"id-1","job_id":"id-2"}`, rec.Body.String())

	run, err := env.store.GetRun(context.Background(), "id-1")
	require.NoError(t, err)
	require.Equal(t, radar.RunStatusRunning, run.Status)
	require.Equal(t, radar.ModeDummy, run.Params.Mode)
	require.Equal(t, 3, run.Params.Limits[radar.CategoryAI])

	job, ok := env.store.Job("id-2")
	require.True(t, ok)
	require.Equal(t, 2, job.MaxAttempts)
}

func TestServer_CreateRunDefaultsMaxAttempts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	rec := serve(env.server, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	job, ok := env.store.Job("id-2")
	require.True(t, ok)
	require.Equal(t, 4, job.MaxAttempts)
}

func TestServer_CreateRunRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid json":      `{invalid`,
		"bad locale":        `{"locale":"fr"}`,
		"bad mode":          `{"mode":"turbo"}`,
		"negative attempts": `{"max_attempts":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(testConfig())
			rec := serve(env.server, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			_, ok := env.store.Job("id-2")
			require.False(t, ok)
		})
	}
}

func TestServer_CreateRunEnqueueFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewStore(), failingEnqueuer{err: errors.New("db down")}, &fakeDiscoverer{}, testConfig(), nil)
	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	serve(env.server, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"mode":"dummy"}`)))

	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/runs/id-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var run radar.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, "id-1", run.ID)
	require.Equal(t, radar.RunStatusRunning, run.Status)
}

func TestServer_GetRunNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}

func TestServer_Discover(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	env.discoverer.result = discovery.Result{
		Feeds:    []string{"https://blog.example.com/feed.xml"},
		FinalURL: "https://blog.example.com/",
	}
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/discover?url=https://blog.example.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://blog.example.com", env.discoverer.got)
	require.JSONEq(t, `{"feeds":["https://blog.example.com/feed.xml"],"finalUrl":"https://blog.example.com/"}`, rec.Body.String())
}

func TestServer_DiscoverErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(testConfig())
	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/discover", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.discoverer.err = fmt.Errorf("%w %q", discovery.ErrInvalidURL, "ftp://x")
	rec = serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/discover?url=ftp://x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.discoverer.err = errors.New("dial tcp: connection refused")
	rec = serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/discover?url=https://down.example", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	env := newTestEnv(cfg)

	rec := serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/runs/id-1", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{}`))
	req.Header.Set("X-API-Key", "secret")
	rec = serve(env.server, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/id-1", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = serve(env.server, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(env.server, httptest.NewRequest(http.MethodGet, "/v1/runs/id-1?api_key=secret", nil))
	require.Equal(t, http.StatusForbidden, rec.Code, "query string keys are not accepted")

	for _, wrong := range []string{"secre", "secret2", "SECRET"} {
		req = httptest.NewRequest(http.MethodGet, "/v1/runs/id-1", nil)
		req.Header.Set("X-API-Key", wrong)
		rec = serve(env.server, req)
		require.Equal(t, http.StatusForbidden, rec.Code, wrong)
	}

	rec = serve(env.server, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	handler := timeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "request timed out")
}
