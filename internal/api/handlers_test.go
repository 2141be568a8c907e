package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/batch"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

type mockAnalyzer struct {
	result analyzer.Result
	err    error
}

func (m *mockAnalyzer) Analyze(ctx context.Context, e entity.Entity) (analyzer.Result, error) {
	return m.result, m.err
}

type mockRunner struct {
	result  batch.Result
	gotOpts batch.Options
}

func (m *mockRunner) Run(ctx context.Context, opts batch.Options, onProgress func(batch.Progress)) (batch.Result, error) {
	m.gotOpts = opts
	return m.result, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return Deps{
		Store:    s,
		Entities: entity.NewStore(s),
		Registry: vectors.NewRegistry(s, s),
		Settings: vectors.NewSettings(s),
		Analyzer: &mockAnalyzer{result: analyzer.Result{Status: analyzer.StatusAnalyzed}},
		Runner:   &mockRunner{},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func TestHealthzUnauthenticated(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewHandler(deps)

	w := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewHandler(deps)

	if w := doJSON(t, h, http.MethodGet, "/vectors", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", w.Code)
	} else if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 response missing WWW-Authenticate challenge")
	}
	if w := doJSON(t, h, http.MethodGet, "/vectors", "wrong", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/vectors", "secret", nil); w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}

func TestVectorCRUD(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	// Create without weight: auto-assigned, 201.
	w := doJSON(t, h, http.MethodPost, "/vectors", "", map[string]any{
		"id": "pii_disclosure", "label": "PII", "description": "personal data",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created vectors.Vector
	decodeBody(t, w, &created)
	if created.Weight != 0 {
		t.Errorf("auto weight = %d, want 0", created.Weight)
	}

	// Existing id with omitted weight updates in place, keeping the weight.
	w = doJSON(t, h, http.MethodPost, "/vectors", "", map[string]any{
		"id": "pii_disclosure", "label": "PII renamed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("no-weight update status = %d: %s", w.Code, w.Body.String())
	}
	var updated vectors.Vector
	decodeBody(t, w, &updated)
	if updated.Label != "PII renamed" || updated.Weight != created.Weight {
		t.Errorf("no-weight update = %+v, want weight %d preserved", updated, created.Weight)
	}

	// Explicit weight upserts.
	w = doJSON(t, h, http.MethodPost, "/vectors", "", map[string]any{
		"id": "pii_disclosure", "label": "PII updated", "weight": 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/vectors/pii_disclosure", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got vectors.Vector
	decodeBody(t, w, &got)
	if got.Label != "PII updated" || got.Weight != 5 {
		t.Errorf("got = %+v", got)
	}

	if w = doJSON(t, h, http.MethodDelete, "/vectors/pii_disclosure", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w = doJSON(t, h, http.MethodGet, "/vectors/pii_disclosure", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestVectorCreateRequiresID(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	w := doJSON(t, h, http.MethodPost, "/vectors", "", map[string]any{"label": "no id"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	w := doJSON(t, h, http.MethodPut, "/settings/node/article", "", vectors.BundleSettings{
		Enabled: true, Vectors: []string{"pii_disclosure"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/settings/node/article", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var bs vectors.BundleSettings
	decodeBody(t, w, &bs)
	if !bs.Enabled || len(bs.Vectors) != 1 {
		t.Errorf("settings = %+v", bs)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	deps.Analyzer = &mockAnalyzer{result: analyzer.Result{
		Status: analyzer.StatusAnalyzed,
		Scores: map[string]int{"pii_disclosure": 85},
		Vectors: []vectors.Vector{
			{ID: "pii_disclosure", Label: "PII disclosure", Weight: 0},
		},
	}}
	h := NewHandler(deps)

	if _, err := deps.Store.SaveContentItem(storage.ContentItem{
		EntityType: "node", Bundle: "article", Title: "t", Published: true,
	}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/analyze/node/1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status  string         `json:"status"`
		Scores  map[string]int `json:"scores"`
		Summary *struct {
			Label string `json:"label"`
			Value int    `json:"value"`
		} `json:"summary"`
	}
	decodeBody(t, w, &resp)
	if resp.Status != "analyzed" || resp.Scores["pii_disclosure"] != 85 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Summary == nil || resp.Summary.Label != "PII disclosure" {
		t.Errorf("summary = %+v", resp.Summary)
	}

	// Unknown entities are 404, malformed ids 400.
	if w = doJSON(t, h, http.MethodPost, "/analyze/node/999", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing entity status = %d, want 404", w.Code)
	}
	if w = doJSON(t, h, http.MethodPost, "/analyze/node/abc", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	runner := &mockRunner{result: batch.Result{RunID: "run-1", Total: 2, Processed: 2}}
	deps.Runner = runner
	deps.Batch = BatchDefaults{
		ChunkSize:    3,
		Policy:       batch.PolicyRecentWindow,
		RecentWindow: 48 * time.Hour,
	}
	h := NewHandler(deps)

	w := doJSON(t, h, http.MethodPost, "/batch", "", map[string]any{
		"targets": []map[string]string{{"Type": "node", "Bundle": "article"}},
		"force":   true,
		"limit":   10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("batch status = %d: %s", w.Code, w.Body.String())
	}
	var res batch.Result
	decodeBody(t, w, &res)
	if res.Processed != 2 {
		t.Errorf("result = %+v", res)
	}
	if !runner.gotOpts.Force || runner.gotOpts.Limit != 10 {
		t.Errorf("runner options = %+v", runner.gotOpts)
	}
	// The configured tuning reaches the runner unchanged.
	if runner.gotOpts.ChunkSize != 3 || runner.gotOpts.Policy != batch.PolicyRecentWindow || runner.gotOpts.RecentWindow != 48*time.Hour {
		t.Errorf("configured batch tuning dropped: %+v", runner.gotOpts)
	}

	// Empty target list is rejected before the runner is reached.
	w = doJSON(t, h, http.MethodPost, "/batch", "", map[string]any{"targets": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty targets status = %d, want 400", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	key := storage.ScoreKey{EntityType: "node", EntityID: 1, Langcode: "en"}
	if err := deps.Store.SaveScores(key, map[string]int{"pii_disclosure": 40}, "h", "g"); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodGet, "/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TotalRecords  int                `json:"total_records"`
		AverageScores map[string]float64 `json:"average_scores"`
	}
	decodeBody(t, w, &resp)
	if resp.TotalRecords != 1 {
		t.Errorf("total_records = %d, want 1", resp.TotalRecords)
	}
	if resp.AverageScores["pii_disclosure"] != 40 {
		t.Errorf("average_scores = %v", resp.AverageScores)
	}
}

func TestErrorShape(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewHandler(deps)

	w := doJSON(t, h, http.MethodGet, "/vectors", "", nil)
	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	if resp.Error.Type != "authentication_error" || resp.Error.Message == "" {
		t.Errorf("error body = %+v", resp)
	}
}
