package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/keyword"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/internal/search"
	"github.com/airrygarments/stylematch/internal/vector"
)

type mockWatchService struct {
	mu    sync.Mutex
	files []string
}

func (m *mockWatchService) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.files...)
	sort.Strings(out)
	return out
}

func (m *mockWatchService) AddFile(path string, _ bool) error {
	if filepath.Ext(path) != ".csv" {
		return errors.New("unsupported inventory file type")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f == path {
			return nil
		}
	}
	m.files = append(m.files, path)
	return nil
}

func (m *mockWatchService) RemoveFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f == path {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return nil
		}
	}
	return nil
}

type mockGenerator struct {
	result *outreach.Result
	err    error
	calls  int
}

func (m *mockGenerator) Run(ctx context.Context, productURL, clientURL string) (*outreach.Result, error) {
	m.calls++
	return m.result, m.err
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   vector.Store
	cfg     *config.Config
}

func newTestEnv(t *testing.T, gen EmailGenerator, watch WatchService, configPath string) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store := vector.NewMemoryStore()
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 16})
	if err != nil {
		t.Fatal(err)
	}
	dense := embedding.NewMockEmbedder(16)
	descs := map[string]string{
		"S1": "Shell: 100% Cotton, Lining: 100% Polyester",
		"S2": "Shell: 70% Wool, Lining: 30% Silk",
	}
	bm25, err := keyword.NewBM25Encoder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bm25.Fit([]string{descs["S1"], descs["S2"]}); err != nil {
		t.Fatal(err)
	}
	for id, desc := range descs {
		path := filepath.Join(dir, id+".jpg")
		if err := os.WriteFile(path, []byte(id), 0644); err != nil {
			t.Fatal(err)
		}
		d, err := dense.EmbedImage(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		s, err := bm25.EncodeDocuments(desc)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := idx.Upsert(ctx, &models.InventoryItem{
			ID: id, Dense: d, Sparse: s,
			Metadata: models.Metadata{models.MetaStyle: id, models.MetaImage: id + ".jpg", models.MetaDescription: desc},
		}); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	m := metrics.New()
	engine := search.NewEngine(idx, dense, bm25, &cfg.Search, search.WithMetrics(m))
	srv := NewServer(engine, gen, store, cfg, nil, watch, configPath, m)
	return &testEnv{srv: srv, handler: srv.Router(), store: store, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	for _, path := range []string{"/health", "/api/health"} {
		w := env.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, w.Code)
		}
		var out map[string]string
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out["status"] != "healthy" {
			t.Errorf("%s: body %v", path, out)
		}
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")

	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchRequest{Query: "100% Cotton", Mode: models.ModeFabric})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "fabric" || len(resp.Matches) != 2 || resp.Matches[0].ID != "S1" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Collected.Styles) != 2 || resp.Collected.Styles[0] != "S1" {
		t.Errorf("collected = %+v", resp.Collected)
	}
}

func TestHandleSearch_badRequests(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	weight := 1.5
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"empty query", models.SearchRequest{}},
		{"weight out of range", models.SearchRequest{Query: "wool", Weight: &weight}},
		{"negative top k", models.SearchRequest{Query: "wool", TopK: -1}},
		{"unknown mode", models.SearchRequest{Query: "wool", Mode: "color"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleGetStyle(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")

	w := env.do(t, http.MethodGet, "/api/v1/styles/S2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var item models.InventoryItem
	if err := json.NewDecoder(w.Body).Decode(&item); err != nil {
		t.Fatal(err)
	}
	if item.ID != "S2" || item.Metadata[models.MetaDescription] != "Shell: 70% Wool, Lining: 30% Silk" {
		t.Errorf("item = %+v", item)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/styles/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing style: status %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	watch := &mockWatchService{files: []string{"/data/inventory.csv"}}
	env := newTestEnv(t, nil, watch, "")

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var status models.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Index != "styles" || status.Backend != "memory" || status.Records != 2 || status.Dimension != 16 {
		t.Errorf("status = %+v", status)
	}
	if status.Config == nil || len(status.Config.WatchedFiles) != 1 {
		t.Errorf("config = %+v", status.Config)
	}
}

func TestHandleStatus_concurrentWatchChanges(t *testing.T) {
	dir := t.TempDir()
	watch := &mockWatchService{}
	env := newTestEnv(t, nil, watch, filepath.Join(dir, "config.yaml"))
	inv := filepath.Join(dir, "inventory.csv")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if w := env.do(t, http.MethodGet, "/api/v1/status", nil); w.Code != http.StatusOK {
				t.Errorf("status: %d", w.Code)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				env.do(t, http.MethodPost, "/api/v1/watch/files", watchAddRequest{Path: inv})
			} else {
				env.do(t, http.MethodDelete, "/api/v1/watch/files?path="+inv, nil)
			}
		}(i)
	}
	wg.Wait()
}

func TestConfigSnapshot_copiesWatchList(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	env.cfg.Watch.Files = []string{"/data/a.csv"}

	snap := env.srv.configSnapshot()
	snap.Watch.Files[0] = "/data/changed.csv"
	if env.cfg.Watch.Files[0] != "/data/a.csv" {
		t.Errorf("snapshot shares the watch list: %v", env.cfg.Watch.Files)
	}
}

func TestHandleGenerateEmail(t *testing.T) {
	gen := &mockGenerator{result: &outreach.Result{
		Email:   "Dear team,\nMay we send samples?",
		Product: &outreach.ProductInfo{Brand: "Dudalina"},
	}}
	env := newTestEnv(t, gen, nil, "")

	for _, path := range []string{"/api/generate-email", "/api/v1/generate-email"} {
		w := env.do(t, http.MethodPost, path, generateEmailRequest{ProductURL: "https://a.example/p", ClientURL: "https://a.example/about"})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d: %s", path, w.Code, w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s: CORS header = %q", path, got)
		}
		var out generateEmailResponse
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Status != "success" || out.EmailContent != gen.result.Email {
			t.Errorf("%s: response = %+v", path, out)
		}
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls)
	}
}

func TestHandleGenerateEmail_errors(t *testing.T) {
	t.Run("missing urls", func(t *testing.T) {
		gen := &mockGenerator{}
		env := newTestEnv(t, gen, nil, "")
		w := env.do(t, http.MethodPost, "/api/generate-email", generateEmailRequest{ProductURL: "https://a.example"})
		if w.Code != http.StatusBadRequest || gen.calls != 0 {
			t.Errorf("status %d, calls %d", w.Code, gen.calls)
		}
	})
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil, nil, "")
		w := env.do(t, http.MethodPost, "/api/generate-email", generateEmailRequest{ProductURL: "a", ClientURL: "b"})
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status %d", w.Code)
		}
	})
	t.Run("pipeline failure", func(t *testing.T) {
		gen := &mockGenerator{err: outreach.ErrMalformedResponse}
		env := newTestEnv(t, gen, nil, "")
		w := env.do(t, http.MethodPost, "/api/generate-email", generateEmailRequest{ProductURL: "a", ClientURL: "b"})
		if w.Code != http.StatusBadGateway {
			t.Errorf("status %d", w.Code)
		}
		var out generateEmailResponse
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Status != "error" || out.Message == "" {
			t.Errorf("response = %+v", out)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	w := env.do(t, http.MethodOptions, "/api/generate-email", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing Access-Control-Allow-Methods")
	}
}

func TestHandleWatchFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	watch := &mockWatchService{}
	env := newTestEnv(t, nil, watch, configPath)
	inv := filepath.Join(dir, "inventory.csv")

	w := env.do(t, http.MethodPost, "/api/v1/watch/files", watchAddRequest{Path: inv})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: status %d: %s", w.Code, w.Body.String())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Files) != 1 || saved.Watch.Files[0] != inv {
		t.Errorf("persisted files = %v", saved.Watch.Files)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/watch/files", watchAddRequest{Path: filepath.Join(dir, "notes.txt")}); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported file: status %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/watch/files", watchAddRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty path: status %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/watch/files", nil)
	var list struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Files) != 1 {
		t.Errorf("files = %v", list.Files)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/watch/files?path="+inv, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: status %d", w.Code)
	}
	if len(watch.files) != 0 {
		t.Errorf("files after remove = %v", watch.files)
	}
}

func TestHandleWatchFiles_disabled(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	if w := env.do(t, http.MethodGet, "/api/v1/watch/files", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status %d, want 501", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	env.do(t, http.MethodPost, "/api/v1/search", models.SearchRequest{Query: "wool"})
	w := env.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("stylematch_")) {
		t.Error("metrics output should contain stylematch series")
	}
}
