package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeOllama serves the Ollama endpoints the engine uses.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"0.6.2"}`))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"},{"name":"all-minilm:l6-v2"}]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 250})
		enc.Encode(map[string]any{"status": "success"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEngine_Embed(t *testing.T) {
	e := NewOllamaEngine(fakeOllama(t).URL)

	vec, err := e.Embed(context.Background(), "nomic-embed-text", "merhaba")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 1 {
		t.Errorf("vec = %v", vec)
	}

	vecs, err := e.EmbedBatch(context.Background(), "nomic-embed-text", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 2 {
		t.Errorf("vecs = %v, want input order kept", vecs)
	}
}

func TestOllamaEngine_Models(t *testing.T) {
	e := NewOllamaEngine(fakeOllama(t).URL)
	ctx := context.Background()

	if !e.IsRunning(ctx) {
		t.Fatal("IsRunning() = false")
	}
	names, err := e.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "nomic-embed-text:latest" {
		t.Errorf("ListModels = %v", names)
	}
	if !e.HasModel(ctx, "nomic-embed-text") {
		t.Error("HasModel(nomic-embed-text) = false")
	}
	if e.HasModel(ctx, "mxbai-embed-large") {
		t.Error("HasModel(mxbai-embed-large) = true")
	}
}

func TestOllamaEngine_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	e := NewOllamaEngine(srv.URL)

	if e.IsRunning(context.Background()) {
		t.Error("IsRunning() = true for a closed server")
	}
	if e.HasModel(context.Background(), "nomic-embed-text") {
		t.Error("HasModel() = true for a closed server")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	e := NewOllamaEngine(fakeOllama(t).URL)

	var got []PullProgress
	if err := e.PullModel(context.Background(), "nomic-embed-text", func(p PullProgress) {
		got = append(got, p)
	}); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("received %d progress updates, want 2", len(got))
	}
	if pct, ok := got[0].Percent(); !ok || pct != 25 {
		t.Errorf("first update = %+v", got[0])
	}

	if err := e.PullModel(context.Background(), "nomic-embed-text", nil); err != nil {
		t.Errorf("PullModel with nil callback: %v", err)
	}
}
