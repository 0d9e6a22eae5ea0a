package engine

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// maxOpenAIBatch caps the number of inputs per embeddings request.
const maxOpenAIBatch = 100

var (
	_ Engine        = (*OpenAIEngine)(nil)
	_ BatchEmbedder = (*OpenAIEngine)(nil)
)

// OpenAIEngine embeds through the OpenAI embeddings API or any server that
// speaks it (vLLM, LM Studio, llama.cpp server).
type OpenAIEngine struct {
	client     *openai.Client
	dimensions int
}

// NewOpenAIEngine creates an engine for the given API key. An empty baseURL
// targets api.openai.com. dimensions > 0 requests shortened embeddings from
// models that support it.
func NewOpenAIEngine(apiKey, baseURL string, dimensions int) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{client: openai.NewClientWithConfig(cfg), dimensions: dimensions}
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxOpenAIBatch {
		end := min(start+maxOpenAIBatch, len(texts))
		batch := texts[start:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding request: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}
		for i, d := range resp.Data {
			idx := i
			if d.Index >= 0 && d.Index < len(batch) {
				idx = d.Index
			}
			out[start+idx] = d.Embedding
		}
	}
	return out, nil
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEngine) ListModels(ctx context.Context) ([]string, error) {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	names := make([]string, len(list.Models))
	for i, m := range list.Models {
		names[i] = m.ID
	}
	return names, nil
}

func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	models, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name {
			return true
		}
	}
	return false
}

// PullModel is unsupported: hosted models cannot be downloaded.
func (e *OpenAIEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("model %s is not available from the OpenAI-compatible endpoint and cannot be pulled", name)
}
