package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvl-group/leadradar/internal/enrich"
	"github.com/jvl-group/leadradar/internal/export"
	"github.com/jvl-group/leadradar/internal/fetcher"
	"github.com/jvl-group/leadradar/internal/jobs"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/scorer"
	"github.com/jvl-group/leadradar/internal/sources"
	"github.com/jvl-group/leadradar/internal/taxonomy"
	"github.com/jvl-group/leadradar/internal/tracker"
)

type stubAdapter struct {
	website string
}

func (s stubAdapter) Name() string { return "STUB" }

func (s stubAdapter) Scan(ctx context.Context, country string, sinceMonths, maxItems int) ([]leadstore.RawCandidate, error) {
	return []leadstore.RawCandidate{{
		Name:    "Acme Robotics",
		Country: country,
		Website: s.website,
		Source:  "STUB",
	}}, nil
}

type testEnv struct {
	api *httptest.Server
	trk *tracker.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/kontakt" {
			fmt.Fprint(w, `<html><body>vertrieb@acme.de</body></html>`)
			return
		}
		fmt.Fprint(w, `<html lang="de"><body>
<h1>Acme Robotics</h1>
<p>EtherCAT und PROFINET Antriebe.</p>
<a href="/kontakt">Kontakt</a>
</body></html>`)
	}))
	t.Cleanup(site.Close)

	rules := taxonomy.DefaultRuleset()
	fetch := fetcher.New(fetcher.Options{
		PerHostRPS:  1000,
		MaxRetries:  1,
		BackoffBase: 1.01,
		Timeout:     5 * time.Second,
	})
	store := leadstore.New(rules)

	registry := sources.NewRegistry(fetch)
	registry.Register(stubAdapter{website: site.URL + "/"})

	orch := jobs.NewOrchestrator(store, registry, jobs.NewRegistry(), rules, 4)
	walker := enrich.New(fetch, store, rules)
	sc := scorer.New(store, rules)
	exporter := export.New(store, t.TempDir())

	trk, err := tracker.NewSQLite(filepath.Join(t.TempDir(), "analytics.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { trk.Close() })
	require.NoError(t, trk.Migrate(context.Background()))

	srv := New(store, orch, walker, sc, exporter, trk, Options{
		MaxWorkers: 4,
		PerHostRPS: 1000,
		DemoURL:    "http://localhost:8866",
	})
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)

	return &testEnv{api: api, trk: trk}
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.api.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.api.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(0), body["leads"])
	assert.Equal(t, float64(4), body["max_workers"])
}

func TestScanRequiresCountries(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.post(t, "/v1/jobs/scan", map[string]any{"sources": []string{"STUB"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "countries is required", body["error"])
}

func TestPipelineFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/v1/jobs/scan", map[string]any{
		"countries": []string{"DE"},
		"sources":   []string{"STUB"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, jobs.StatusScanned, body["status"])

	resp, body = env.post(t, "/v1/enrich", map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobs.StatusEnriched, body["status"])

	resp, body = env.post(t, "/v1/score", map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobs.StatusScored, body["status"])

	resp, body = env.get(t, "/v1/leads")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	lead := items[0].(map[string]any)
	assert.Equal(t, "Acme Robotics", lead["company_name"])
	assert.Equal(t, "vertrieb@acme.de", lead["contact_email"])
	assert.NotEmpty(t, lead["priority_class"])

	resp, body = env.post(t, "/v1/export", map[string]any{"format": []string{"csv"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["export_id"])
	files, ok := body["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)

	resp, body = env.get(t, "/v1/jobs/"+jobID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobs.StatusScored, body["status"])

	resp, body = env.get(t, "/v1/jobs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobItems, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, jobItems, 2, "scan job plus export job")
}

func TestLeadsEmpty(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/v1/leads")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])
	items, ok := body["items"].([]any)
	require.True(t, ok, "items must be a list even when empty")
	assert.Empty(t, items)
}

func TestJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/v1/jobs/scan_20200101_000000_abcdef")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job not found", body["error"])
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestTrackOpenRedirect(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.trk.Mint(context.Background(), "company-1", "https://acme.de/demo")
	require.NoError(t, err)

	resp, err := noRedirectClient().Get(env.api.URL + "/t/" + token)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://acme.de/demo?token="+token, resp.Header.Get("Location"))

	stats, err := env.trk.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Opens)
}

func TestTrackOpenUnknownTokenFallsBack(t *testing.T) {
	env := newTestEnv(t)

	resp, err := noRedirectClient().Get(env.api.URL + "/t/unknown-token")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "http://localhost:8866?token=unknown-token", resp.Header.Get("Location"))
}

func TestTrackEvent(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.trk.Mint(context.Background(), "company-1", "")
	require.NoError(t, err)

	resp, body := env.post(t, "/event", map[string]any{
		"token": token,
		"name":  "demo_started",
		"meta":  map[string]string{"page": "motors"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, body = env.post(t, "/event", map[string]any{"token": token})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "token and name are required", body["error"])

	stats, err := env.trk.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Events)
}

func TestTrackStats(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/v1/track/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Empty(t, items)
}
