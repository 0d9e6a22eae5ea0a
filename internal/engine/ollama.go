package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/semdoc/internal/ollama"
)

var (
	_ Engine        = (*OllamaEngine)(nil)
	_ BatchEmbedder = (*OllamaEngine)(nil)
)

// ollamaKeepAlive keeps the embedding model loaded between requests of a
// bulk import.
const ollamaKeepAlive = 10 * time.Minute

// OllamaEngine serves embeddings from a local Ollama server.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL, ollama.WithKeepAlive(ollamaKeepAlive))}
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, model, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	models, err := e.client.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ollama models: %w", err)
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names, nil
}

// HasModel treats an unreachable server as not having the model.
func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	ok, err := e.client.HasModel(ctx, name)
	return err == nil && ok
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		if onProgress != nil {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	})
}
