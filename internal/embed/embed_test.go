package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/mnemo/internal/vector"
)

func TestHash(t *testing.T) {
	h := NewHash(32)
	ctx := context.Background()

	a, err := h.Embed(ctx, "alpha")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	again, _ := h.Embed(ctx, "alpha")
	other, _ := h.Embed(ctx, "beta")

	if len(a) != 32 || h.Dimensions() != 32 {
		t.Errorf("expected 32 dimensions, got %d", len(a))
	}
	if math.Abs(vector.Norm(a)-1) > 1e-5 {
		t.Errorf("expected unit vector, got norm %f", vector.Norm(a))
	}
	if vector.Cosine(a, again) < 0.999999 {
		t.Error("expected identical text to embed identically")
	}
	if vector.Cosine(a, other) > 0.99 {
		t.Error("expected different text to embed differently")
	}
}

func TestHash_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHash(4).Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" {
			t.Errorf("expected default model, got %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding": [0.5, 0.25, -1]}`))
	}))
	defer server.Close()

	o, err := NewOllama(server.URL, "", 3)
	if err != nil {
		t.Fatalf("NewOllama failed: %v", err)
	}
	vec, err := o.Embed(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[2] != -1 {
		t.Errorf("expected [0.5 0.25 -1], got %v", vec)
	}
	if o.Dimensions() != 3 {
		t.Errorf("expected dimension 3, got %d", o.Dimensions())
	}
}

func TestOllama_UsesEnvHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding": []}`))
	}))
	defer server.Close()
	t.Setenv("OLLAMA_HOST", server.URL)

	o, err := NewOllama("", "mxbai-embed-large", 0)
	if err != nil {
		t.Fatalf("NewOllama failed: %v", err)
	}
	if _, err := o.Embed(context.Background(), "hi"); !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("expected ErrNoEmbedding, got %v", err)
	}
}

func TestOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "text-embedding-3-small" {
			t.Errorf("expected default embedding model, got %v", req["model"])
		}
		if req["dimensions"] != float64(2) {
			t.Errorf("expected requested dimensions 2, got %v", req["dimensions"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.9]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	o, err := NewOpenAI("test-key", server.URL, "", 2)
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	vec, err := o.Embed(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.9 {
		t.Errorf("expected [0.1 0.9], got %v", vec)
	}
}

func TestOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI("", "", "", 0); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("expected ErrAPIKeyRequired, got %v", err)
	}
}

func TestOpenAI_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	o, _ := NewOpenAI("wrong", server.URL, "", 0)
	if _, err := o.Embed(context.Background(), "hi"); err == nil {
		t.Error("expected error from server")
	}
}

func TestGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "", 0); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("expected ErrAPIKeyRequired, got %v", err)
	}
}

type countingEmbedder struct {
	calls  atomic.Int64
	closed bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if text == "bad" {
		return nil, errors.New("boom")
	}
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) Dimensions() int { return 3 }

func (c *countingEmbedder) Close() error {
	c.closed = true
	return nil
}

func TestCached(t *testing.T) {
	next := &countingEmbedder{}
	c, err := NewCached(next, 16)
	if err != nil {
		t.Fatalf("NewCached failed: %v", err)
	}
	ctx := context.Background()

	first, err := c.Embed(ctx, "q")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	c.Wait()
	first[0] = 99

	second, err := c.Embed(ctx, "q")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if second[0] != 1 {
		t.Errorf("cached vector was mutated through a returned slice: %v", second)
	}
	if next.calls.Load() != 1 {
		t.Errorf("expected one upstream call, got %d", next.calls.Load())
	}
	hits, misses := c.Counts()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}
	if c.Dimensions() != 3 {
		t.Errorf("expected dimension 3, got %d", c.Dimensions())
	}

	if _, err := c.Embed(ctx, "bad"); err == nil {
		t.Error("expected upstream error to propagate")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !next.closed {
		t.Error("expected Close to reach the wrapped embedder")
	}
}

func TestNewCached_InvalidSize(t *testing.T) {
	if _, err := NewCached(&countingEmbedder{}, 0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
		wantDim int
	}{
		{"default is hash", Config{Dimension: 8}, false, 8},
		{"hash cached", Config{Provider: "hash", Dimension: 16, CacheSize: 10}, false, 16},
		{"ollama", Config{Provider: "ollama", BaseURL: "http://127.0.0.1:1", Dimension: 4}, false, 4},
		{"openai without key", Config{Provider: "openai"}, true, 0},
		{"gemini without key", Config{Provider: "gemini"}, true, 0},
		{"plugin without path", Config{Provider: "plugin"}, true, 0},
		{"unknown", Config{Provider: "word2vec"}, true, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, closer, err := New(context.Background(), tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer closer.Close()
			if e.Dimensions() != tc.wantDim {
				t.Errorf("expected dimension %d, got %d", tc.wantDim, e.Dimensions())
			}
		})
	}
}
