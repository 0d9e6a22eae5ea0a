package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashModel is the only model name the hash engine serves.
const HashModel = "hash"

// DefaultHashDimensions is used when no dimension is configured.
const DefaultHashDimensions = 384

var _ Engine = (*HashEngine)(nil)

// HashEngine is a deterministic bag-of-features embedder that needs no
// external service. Each lower-cased word and each character trigram of a
// word is hashed into one signed bucket. Texts sharing vocabulary land close
// together, which is enough for offline use and tests; it has no notion of
// synonyms. Only blank text yields a zero vector.
type HashEngine struct {
	dim int
}

// NewHashEngine returns a hash engine producing vectors of length dim.
func NewHashEngine(dim int) *HashEngine {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &HashEngine{dim: dim}
}

func (e *HashEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model != "" && model != HashModel {
		return nil, fmt.Errorf("hash engine: unknown model %q", model)
	}

	vec := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		e.add(vec, "w:"+w, 1)
		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "t:"+string(runes[i:i+3]), 0.5)
		}
	}
	// Text without letters or digits ("!!", "??") becomes one raw feature.
	if raw := strings.Join(strings.Fields(text), " "); len(words) == 0 && raw != "" {
		e.add(vec, "r:"+raw, 1)
	}
	return vec, nil
}

func (e *HashEngine) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func (e *HashEngine) IsRunning(context.Context) bool { return true }

func (e *HashEngine) ListModels(context.Context) ([]string, error) {
	return []string{HashModel}, nil
}

func (e *HashEngine) HasModel(_ context.Context, name string) bool {
	return name == HashModel
}

func (e *HashEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	if name == HashModel {
		return nil
	}
	return fmt.Errorf("hash engine: unknown model %q", name)
}
