package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/kotae/internal/ollama"
)

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		embs := make([][]float32, len(req.Input))
		for i := range embs {
			embs[i] = []float32{3, 4, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(ollama.New(srv.URL), "nomic-embed-text", 3, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	embs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	// Vectors come back L2-normalized.
	if math.Abs(float64(embs[0][0])-0.6) > 1e-6 || math.Abs(float64(embs[0][1])-0.8) > 1e-6 {
		t.Errorf("embedding = %v, want normalized [0.6 0.8 0]", embs[0])
	}

	// Second Embed of a seen text is served from the cache.
	if _, err := e.Embed(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestOllamaEmbedder_ModelDown(t *testing.T) {
	e, err := NewOllamaEmbedder(ollama.New("http://127.0.0.1:1"), "m", 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "text")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	e, _ := NewOllamaEmbedder(ollama.New(srv.URL), "m", 3, 4)
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
