package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/kalambet/semdoc/internal/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrEmbedding is returned when text cannot be turned into a vector: the
// text is blank, the engine failed, or the engine returned a degenerate vector.
var ErrEmbedding = errors.New("embedding failed")

// Vector is a unit-length embedding.
type Vector = []float32

// Defaults for Options fields left at zero.
const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 32
)

// Options tunes how an Embedder talks to its engine.
type Options struct {
	// Concurrency bounds in-flight engine calls in EncodeMany.
	Concurrency int
	// BatchSize is the number of texts per call for engines that embed in batches.
	BatchSize int
	// RateLimit caps engine calls per second; 0 disables limiting.
	RateLimit float64
}

// Embedder wraps an Engine to produce normalized text embeddings of a fixed
// dimension.
type Embedder struct {
	engine    engine.Engine
	model     string
	limit     int
	batchSize int
	limiter   *rate.Limiter
	dim       atomic.Int64
}

// New creates an Embedder using the given Engine and model name.
func New(e engine.Engine, model string, opts Options) *Embedder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	emb := &Embedder{
		engine:    e,
		model:     model,
		limit:     opts.Concurrency,
		batchSize: opts.BatchSize,
	}
	if opts.RateLimit > 0 {
		emb.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(math.Ceil(opts.RateLimit))))
	}
	return emb
}

// Model returns the engine model name.
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the vector length established by Probe, or 0 before it.
func (e *Embedder) Dimension() int {
	return int(e.dim.Load())
}

// Probe embeds a fixed text to learn the model's dimension. Every later
// vector must have the same length. A failure here means the model is
// unusable and the process should not start.
func (e *Embedder) Probe(ctx context.Context) (int, error) {
	vec, err := e.EncodeOne(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

// EncodeOne returns the normalized embedding of text.
func (e *Embedder) EncodeOne(ctx context.Context, text string) (Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrEmbedding)
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return e.finish(vec)
}

// EncodeMany embeds every text, preserving input order. It fails as a whole
// if any text is blank or any engine call fails; no partial result is returned.
// Returns nil (not error) for empty input.
func (e *Embedder) EncodeMany(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmbedding, i)
		}
	}

	results := make([]Vector, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	if be, ok := e.engine.(engine.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += e.batchSize {
			start, end := start, min(start+e.batchSize, len(texts))
			g.Go(func() error {
				if err := e.wait(gCtx); err != nil {
					return err
				}
				vecs, err := be.EmbedBatch(gCtx, e.model, texts[start:end])
				if err != nil {
					return fmt.Errorf("%w: texts %d-%d: %w", ErrEmbedding, start, end-1, err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("%w: engine returned %d vectors for %d texts", ErrEmbedding, len(vecs), end-start)
				}
				for i, v := range vecs {
					if results[start+i], err = e.finish(v); err != nil {
						return fmt.Errorf("text %d: %w", start+i, err)
					}
				}
				return nil
			})
		}
	} else {
		for i, text := range texts {
			g.Go(func() error {
				if err := e.wait(gCtx); err != nil {
					return err
				}
				vec, err := e.engine.Embed(gCtx, e.model, text)
				if err != nil {
					return fmt.Errorf("%w: text %d: %w", ErrEmbedding, i, err)
				}
				if results[i], err = e.finish(vec); err != nil {
					return fmt.Errorf("text %d: %w", i, err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Embedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for rate limiter: %w", ErrEmbedding, err)
	}
	return nil
}

// finish normalizes vec and pins or checks the dimension.
func (e *Embedder) finish(vec []float32) (Vector, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: engine returned an empty vector", ErrEmbedding)
	}
	if !e.dim.CompareAndSwap(0, int64(len(vec))) {
		if d := e.dim.Load(); int(d) != len(vec) {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbedding, len(vec), d)
		}
	}
	out, ok := Normalize(vec)
	if !ok {
		return nil, fmt.Errorf("%w: engine returned a zero vector", ErrEmbedding)
	}
	return out, nil
}

// Normalize returns a copy of v scaled to unit L2 length. It reports false
// for zero or non-finite vectors.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out, true
}
