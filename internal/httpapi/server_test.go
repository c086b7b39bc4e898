package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/themedup/internal/auth"
	"horse.fit/themedup/internal/db"
	"horse.fit/themedup/internal/dedup"
	"horse.fit/themedup/internal/globaltime"
	"horse.fit/themedup/internal/theme"
)

type fakeRunStore struct {
	runs      map[string]*db.RunDetail
	saved     []*dedup.Result
	saveUUID  string
	pingErr   error
	listLimit int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*db.RunDetail{}}
}

func (s *fakeRunStore) Ping(context.Context) error {
	return s.pingErr
}

func (s *fakeRunStore) SaveRun(_ context.Context, result *dedup.Result, source string) (string, error) {
	if source != db.RunSourceAPI {
		return "", fmt.Errorf("unexpected source %q", source)
	}
	s.saved = append(s.saved, result)
	return s.saveUUID, nil
}

func (s *fakeRunStore) ListRuns(_ context.Context, limit int) ([]db.RunSummary, error) {
	s.listLimit = limit
	items := make([]db.RunSummary, 0, len(s.runs))
	for _, detail := range s.runs {
		items = append(items, detail.Run)
	}
	return items, nil
}

func (s *fakeRunStore) GetRun(_ context.Context, runUUID string, _ bool) (*db.RunDetail, error) {
	detail, ok := s.runs[runUUID]
	if !ok {
		return nil, db.ErrNoRows
	}
	return detail, nil
}

type fakeRunner struct {
	received   []theme.Theme
	compareErr error
}

func (r *fakeRunner) Run(_ context.Context, themes []theme.Theme) (*dedup.Result, error) {
	r.received = themes
	return &dedup.Result{
		RunID:      "run-1",
		Settings:   dedup.DefaultSettings(),
		Singletons: []string{},
		Stats:      dedup.Stats{Themes: len(themes)},
	}, nil
}

func (r *fakeRunner) ComparePair(_ context.Context, a, b theme.Theme) (dedup.PairRecord, error) {
	if r.compareErr != nil {
		return dedup.PairRecord{}, r.compareErr
	}
	return dedup.PairRecord{ThemeA: a.ID, ThemeB: b.ID, Decision: dedup.DecisionDeny, Stage: dedup.StageGated}, nil
}

func newTestServer(store runStore, runner themeRunner, apiKeyHash string) *Server {
	s := NewServer(nil, runner, zerolog.Nop(), Options{APIKeyHash: apiKeyHash})
	s.store = store
	return s
}

func serve(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) jsendResponse {
	t.Helper()
	var resp jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

const twoThemesBody = `{"themes":[
	{"id":"a","statement":"Customers want clearer pricing tiers","subject":"Pricing"},
	{"id":"b","statement":"Pricing tiers confuse buyers","subject":"Pricing","origin":"discovered"},
	{"id":"c","statement":"","subject":"Pricing"}
]}`

func TestHealthWithoutDatabase(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(nil, &fakeRunner{}, ""), http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	resp := decodeEnvelope(t, rec)
	data, _ := resp.Data.(map[string]any)
	if resp.Status != "success" || data["database"] != "disabled" {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

// Not parallel: it pins the process clock.
func TestHealthReportsServerTime(t *testing.T) {
	frozen := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	restore := globaltime.Freeze(frozen)
	defer restore()

	rec := serve(t, newTestServer(newFakeRunStore(), &fakeRunner{}, ""), http.MethodGet, "/api/v1/health", "", nil)
	resp := decodeEnvelope(t, rec)
	data, _ := resp.Data.(map[string]any)
	if data["database"] != "ok" || data["time"] != "2026-03-02T08:30:00Z" {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

func TestHealthReportsUnreachableDatabase(t *testing.T) {
	t.Parallel()

	store := newFakeRunStore()
	store.pingErr = fmt.Errorf("connection refused")
	rec := serve(t, newTestServer(store, &fakeRunner{}, ""), http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCreateRunQuarantinesInvalidRecords(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	rec := serve(t, newTestServer(nil, runner, ""), http.MethodPost, "/api/v1/runs", twoThemesBody, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(runner.received) != 2 {
		t.Fatalf("unexpected themes passed to engine: got %d want 2", len(runner.received))
	}
	if runner.received[0].Origin != theme.OriginResearch {
		t.Fatalf("expected blank origin to default to research, got %q", runner.received[0].Origin)
	}

	var body struct {
		Data createRunResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Persisted || body.Data.RunUUID != "" {
		t.Fatalf("did not expect persistence: %+v", body.Data)
	}
	if len(body.Data.Quarantined) != 1 || body.Data.Quarantined[0].ID != "c" {
		t.Fatalf("unexpected quarantine: %+v", body.Data.Quarantined)
	}
	if body.Data.Result == nil || body.Data.Result.RunID != "run-1" {
		t.Fatalf("unexpected result: %+v", body.Data.Result)
	}
}

func TestCreateRunPersists(t *testing.T) {
	t.Parallel()

	store := newFakeRunStore()
	store.saveUUID = "0b8c1a52-55a4-4a57-9d0e-3f1f7d3a8e21"
	body := `{"persist":true,"themes":[{"id":"a","statement":"Customers want clearer pricing tiers"}]}`

	rec := serve(t, newTestServer(store, &fakeRunner{}, ""), http.MethodPost, "/api/v1/runs", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(store.saved) != 1 || store.saved[0].RunID != "run-1" {
		t.Fatalf("expected one saved run, got %d", len(store.saved))
	}

	var resp struct {
		Data createRunResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.Persisted || resp.Data.RunUUID != store.saveUUID {
		t.Fatalf("unexpected persistence fields: %+v", resp.Data)
	}
}

func TestCreateRunPersistWithoutDatabase(t *testing.T) {
	t.Parallel()

	body := `{"persist":true,"themes":[{"id":"a","statement":"x"}]}`
	rec := serve(t, newTestServer(nil, &fakeRunner{}, ""), http.MethodPost, "/api/v1/runs", body, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCreateRunRejectsBadBodies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "missing themes", body: `{"persist":false}`},
		{name: "unknown field", body: `{"themes":[],"extra":1}`},
		{name: "themes not records", body: `{"themes":"nope"}`},
	}

	s := newTestServer(nil, &fakeRunner{}, "")
	for _, tc := range cases {
		rec := serve(t, s, http.MethodPost, "/api/v1/runs", tc.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status: got %d want %d (%s)", tc.name, rec.Code, http.StatusBadRequest, rec.Body.String())
		}
		if resp := decodeEnvelope(t, rec); resp.Status != "fail" {
			t.Fatalf("%s: unexpected envelope status %q", tc.name, resp.Status)
		}
	}
}

func TestMutatingRoutesRequireAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashAPIKey("tdk_secret")
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	s := newTestServer(nil, &fakeRunner{}, hash)
	body := `{"themes":[{"id":"a","statement":"Customers want clearer pricing tiers"}]}`

	if rec := serve(t, s, http.MethodPost, "/api/v1/runs", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status without key: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
	rec := serve(t, s, http.MethodPost, "/api/v1/runs", body, map[string]string{headerAPIKey: "tdk_wrong", echo.HeaderXRequestID: "req-77"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status with wrong key: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeEnvelope(t, rec); resp.Status != statusFail || resp.RequestID != "req-77" {
		t.Fatalf("unexpected rejection envelope: %+v", resp)
	}
	if rec := serve(t, s, http.MethodPost, "/api/v1/runs", body, map[string]string{headerAPIKey: "tdk_secret"}); rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status with key: got %d want %d", rec.Code, http.StatusCreated)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("read routes must stay open: got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	const known = "8f5f3c3e-3c39-4d0c-9d43-5b8f2a0b7f11"
	store := newFakeRunStore()
	store.runs[known] = &db.RunDetail{Run: db.RunSummary{RunUUID: known, Preset: "broad"}}
	s := newTestServer(store, &fakeRunner{}, "")

	if rec := serve(t, s, http.MethodGet, "/api/v1/runs/"+known, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status for known run: got %d want %d", rec.Code, http.StatusOK)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/runs/1b7e9d0a-8f0e-4b8a-9a55-0e3c1d1d2f00", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status for unknown run: got %d want %d", rec.Code, http.StatusNotFound)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/runs/not-a-uuid", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for malformed id: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/runs/"+known+"?pairs=maybe", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad pairs flag: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store := newFakeRunStore()
	s := newTestServer(store, &fakeRunner{}, "")

	if rec := serve(t, s, http.MethodGet, "/api/v1/runs?limit=10", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	if store.listLimit != 10 {
		t.Fatalf("unexpected limit: got %d want 10", store.listLimit)
	}
	if rec := serve(t, s, http.MethodGet, "/api/v1/runs?limit=0", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for zero limit: got %d want %d", rec.Code, http.StatusBadRequest)
	}

	if rec := serve(t, newTestServer(nil, &fakeRunner{}, ""), http.MethodGet, "/api/v1/runs", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status without database: got %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	body := `{"a":{"id":"a","statement":"Pricing is unclear"},"b":{"id":"b","statement":"Pricing tiers confuse buyers"}}`

	rec := serve(t, newTestServer(nil, &fakeRunner{}, ""), http.MethodPost, "/api/v1/compare", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	missing := `{"a":{"id":"a","statement":"Pricing is unclear"}}`
	rec = serve(t, newTestServer(nil, &fakeRunner{}, ""), http.MethodPost, "/api/v1/compare", missing, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for missing theme: got %d want %d", rec.Code, http.StatusBadRequest)
	}

	unavailable := &fakeRunner{compareErr: fmt.Errorf("%w: theme a: timeout", dedup.ErrEmbeddingUnavailable)}
	rec = serve(t, newTestServer(nil, unavailable, ""), http.MethodPost, "/api/v1/compare", body, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status for embedding failure: got %d want %d", rec.Code, http.StatusBadGateway)
	}

	malformed := &fakeRunner{compareErr: fmt.Errorf("%w: cannot compare theme a with itself", theme.ErrMalformedTheme)}
	rec = serve(t, newTestServer(nil, malformed, ""), http.MethodPost, "/api/v1/compare", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for malformed pair: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}
