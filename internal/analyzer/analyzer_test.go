package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/llm"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

type mockScoreStore struct {
	getFn    func(key storage.ScoreKey, contentHash, configHash string) (map[string]int, error)
	saveFn   func(key storage.ScoreKey, scores map[string]int, contentHash, configHash string) error
	saved    map[string]int
	savedKey storage.ScoreKey
}

func (m *mockScoreStore) GetScores(key storage.ScoreKey, contentHash, configHash string) (map[string]int, error) {
	if m.getFn != nil {
		return m.getFn(key, contentHash, configHash)
	}
	return nil, nil
}

func (m *mockScoreStore) SaveScores(key storage.ScoreKey, scores map[string]int, contentHash, configHash string) error {
	if m.saveFn != nil {
		return m.saveFn(key, scores, contentHash, configHash)
	}
	m.saved = scores
	m.savedKey = key
	return nil
}

type mockRegistry struct {
	vectors []vectors.Vector
	hash    string
}

func (m *mockRegistry) List() ([]vectors.Vector, error) { return m.vectors, nil }
func (m *mockRegistry) ConfigHash() (string, error)     { return m.hash, nil }

type mockSettings struct {
	settings vectors.BundleSettings
	err      error
}

func (m *mockSettings) Get(entityType, bundle string) (vectors.BundleSettings, error) {
	return m.settings, m.err
}

type mockChat struct {
	available bool
	model     string
	chatFn    func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error)
	calls     int
}

func (m *mockChat) HasAvailableProvider(ctx context.Context) bool { return m.available }

func (m *mockChat) DefaultModel(ctx context.Context) (llm.Model, bool) {
	if m.model == "" {
		return llm.Model{}, false
	}
	return llm.Model{Provider: "ollama", ID: m.model}, true
}

func (m *mockChat) Chat(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
	m.calls++
	if m.chatFn != nil {
		return m.chatFn(ctx, model, messages, schema)
	}
	return "{}", nil
}

type mockRenderer struct {
	renderFn func(e entity.Entity, langcode string) (string, error)
}

func (m *mockRenderer) RenderDefaultView(e entity.Entity, langcode string) (string, error) {
	if m.renderFn != nil {
		return m.renderFn(e, langcode)
	}
	return fmt.Sprintf("<h1>%s</h1>\n%s", e.Title, e.Body), nil
}

var testVectors = []vectors.Vector{
	{ID: "pii_disclosure", Label: "PII disclosure", Description: "personal data", Weight: 0},
	{ID: "credentials_disclosure", Label: "Credentials disclosure", Description: "secrets", Weight: 1},
}

func testEntity() entity.Entity {
	return entity.Entity{
		Type:      "node",
		ID:        1,
		Bundle:    "article",
		Langcode:  "en",
		Title:     "Contact page",
		Body:      "<p>Reach Jane at jane@example.com or 555-0100.</p>",
		Published: true,
	}
}

func newTestAnalyzer(store *mockScoreStore, chat *mockChat, settings vectors.BundleSettings) *Analyzer {
	return New(
		store,
		&mockRegistry{vectors: testVectors, hash: "cfg-v1"},
		&mockSettings{settings: settings},
		chat,
		&mockRenderer{},
	)
}

func TestAnalyzeNotEnabled(t *testing.T) {
	a := newTestAnalyzer(&mockScoreStore{}, &mockChat{}, vectors.BundleSettings{Enabled: false})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != StatusNotEnabled {
		t.Errorf("Status = %v, want not_enabled", res.Status)
	}
}

func TestAnalyzeNoVectors(t *testing.T) {
	a := New(
		&mockScoreStore{},
		&mockRegistry{vectors: nil, hash: "cfg-v1"},
		&mockSettings{settings: vectors.BundleSettings{Enabled: true}},
		&mockChat{},
		&mockRenderer{},
	)

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != StatusNoVectors {
		t.Errorf("Status = %v, want no_vectors", res.Status)
	}
}

func TestAnalyzeNoProvider(t *testing.T) {
	chat := &mockChat{available: false}
	a := newTestAnalyzer(&mockScoreStore{}, chat, vectors.BundleSettings{Enabled: true})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != StatusNoProvider {
		t.Errorf("Status = %v, want no_provider", res.Status)
	}

	// Reachable backend without a usable model is the same outcome.
	chat = &mockChat{available: true, model: ""}
	a = newTestAnalyzer(&mockScoreStore{}, chat, vectors.BundleSettings{Enabled: true})
	res, err = a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusNoProvider {
		t.Errorf("Status = %v, want no_provider", res.Status)
	}
	if chat.calls != 0 {
		t.Errorf("chat called %d times without a model", chat.calls)
	}
}

func TestAnalyzeScoresAndCaches(t *testing.T) {
	store := &mockScoreStore{}
	chat := &mockChat{
		available: true,
		model:     "mistral-nemo",
		chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
			return `{"pii_disclosure": 85, "credentials_disclosure": 2}`, nil
		},
	}
	a := newTestAnalyzer(store, chat, vectors.BundleSettings{Enabled: true})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != StatusAnalyzed {
		t.Fatalf("Status = %v, want analyzed", res.Status)
	}
	if res.Scores["pii_disclosure"] != 85 || res.Scores["credentials_disclosure"] != 2 {
		t.Errorf("Scores = %v", res.Scores)
	}
	if res.ContentHash == "" || res.ConfigHash != "cfg-v1" {
		t.Errorf("hashes = %q / %q", res.ContentHash, res.ConfigHash)
	}

	// Write-through happened with the full key.
	if store.saved == nil {
		t.Fatal("scores were not written through")
	}
	if store.savedKey.EntityType != "node" || store.savedKey.EntityID != 1 || store.savedKey.Langcode != "en" {
		t.Errorf("saved key = %+v", store.savedKey)
	}

	summary, ok := Summary(res)
	if !ok || summary.Label != "PII disclosure" || summary.Value != 85 {
		t.Errorf("Summary = %+v, %v", summary, ok)
	}
	report := Report(res)
	if len(report) != 2 || report[0].Label != "PII disclosure" || report[1].Label != "Credentials disclosure" {
		t.Errorf("Report = %+v", report)
	}
}

// TestAnalyzeCacheHitSkipsChat verifies a second analysis of unchanged content
// under unchanged configuration never reaches the model.
func TestAnalyzeCacheHitSkipsChat(t *testing.T) {
	cached := map[string]int{"pii_disclosure": 40}
	store := &mockScoreStore{
		getFn: func(key storage.ScoreKey, contentHash, configHash string) (map[string]int, error) {
			return cached, nil
		},
	}
	chat := &mockChat{available: true, model: "mistral-nemo"}
	a := newTestAnalyzer(store, chat, vectors.BundleSettings{Enabled: true})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != StatusCacheHit {
		t.Errorf("Status = %v, want cache_hit", res.Status)
	}
	if res.Scores["pii_disclosure"] != 40 {
		t.Errorf("Scores = %v", res.Scores)
	}
	if chat.calls != 0 {
		t.Errorf("chat called %d times on a cache hit", chat.calls)
	}
}

func TestAnalyzeClampsModelScores(t *testing.T) {
	store := &mockScoreStore{}
	chat := &mockChat{
		available: true,
		model:     "mistral-nemo",
		chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
			return `{"pii_disclosure": 500, "credentials_disclosure": -50}`, nil
		},
	}
	a := newTestAnalyzer(store, chat, vectors.BundleSettings{Enabled: true})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scores["pii_disclosure"] != 100 {
		t.Errorf("over-range score = %d, want 100", res.Scores["pii_disclosure"])
	}
	if res.Scores["credentials_disclosure"] != 0 {
		t.Errorf("under-range score = %d, want 0", res.Scores["credentials_disclosure"])
	}
}

// TestAnalyzePartialResponse verifies a response covering only some vectors
// keeps the covered ones and omits the rest rather than zero-filling.
func TestAnalyzePartialResponse(t *testing.T) {
	store := &mockScoreStore{}
	chat := &mockChat{
		available: true,
		model:     "mistral-nemo",
		chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
			return `{"pii_disclosure": 60, "unknown_vector": 99, "credentials_disclosure": "not a number"}`, nil
		},
	}
	a := newTestAnalyzer(store, chat, vectors.BundleSettings{Enabled: true})

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAnalyzed {
		t.Fatalf("Status = %v, want analyzed", res.Status)
	}
	if len(res.Scores) != 1 || res.Scores["pii_disclosure"] != 60 {
		t.Errorf("Scores = %v, want only pii_disclosure=60", res.Scores)
	}
}

func TestAnalyzeNoResult(t *testing.T) {
	responses := []string{
		"I cannot score that content.",
		`{"unknown_vector": 10}`,
		`{}`,
	}
	for _, raw := range responses {
		raw := raw
		store := &mockScoreStore{}
		chat := &mockChat{
			available: true,
			model:     "mistral-nemo",
			chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
				return raw, nil
			},
		}
		a := newTestAnalyzer(store, chat, vectors.BundleSettings{Enabled: true})

		res, err := a.Analyze(context.Background(), testEntity())
		if err != nil {
			t.Fatalf("Analyze(%q): %v", raw, err)
		}
		if res.Status != StatusNoResult {
			t.Errorf("response %q: Status = %v, want no_result", raw, res.Status)
		}
		if store.saved != nil {
			t.Errorf("response %q: cache written on no_result", raw)
		}
	}
}

func TestAnalyzeChatErrorIsFault(t *testing.T) {
	chat := &mockChat{
		available: true,
		model:     "mistral-nemo",
		chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	a := newTestAnalyzer(&mockScoreStore{}, chat, vectors.BundleSettings{Enabled: true})

	if _, err := a.Analyze(context.Background(), testEntity()); err == nil {
		t.Error("chat transport error surfaced as a status instead of an error")
	}
}

func TestAnalyzeVectorSubset(t *testing.T) {
	store := &mockScoreStore{}
	var gotSchema *llm.Schema
	chat := &mockChat{
		available: true,
		model:     "mistral-nemo",
		chatFn: func(ctx context.Context, model string, messages []llm.Message, schema *llm.Schema) (string, error) {
			gotSchema = schema
			return `{"credentials_disclosure": 15}`, nil
		},
	}
	settings := vectors.BundleSettings{Enabled: true, Vectors: []string{"credentials_disclosure"}}
	a := newTestAnalyzer(store, chat, settings)

	res, err := a.Analyze(context.Background(), testEntity())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Vectors) != 1 || res.Vectors[0].ID != "credentials_disclosure" {
		t.Errorf("enabled vectors = %v", res.Vectors)
	}
	if gotSchema == nil {
		t.Fatal("no schema passed to chat")
	}
	if len(gotSchema.Properties) != 1 {
		t.Errorf("schema covers %d vectors, want 1", len(gotSchema.Properties))
	}
}

func TestBuildMessagesMentionsEveryVector(t *testing.T) {
	messages := buildMessages("the content", testVectors)
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	system, user := messages[0], messages[1]
	if system.Role != "system" || user.Role != "user" {
		t.Errorf("roles = %s/%s", system.Role, user.Role)
	}
	for _, v := range testVectors {
		if !strings.Contains(system.Content, v.ID) || !strings.Contains(system.Content, v.Description) {
			t.Errorf("system prompt missing vector %s", v.ID)
		}
	}
	if user.Content != "the content" {
		t.Errorf("user content = %q", user.Content)
	}
}
