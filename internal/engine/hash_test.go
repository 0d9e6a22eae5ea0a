package engine

import (
	"context"
	"math"
	"testing"
)

func cosineSim(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEngine_Deterministic(t *testing.T) {
	e := NewHashEngine(128)
	a, err := e.Embed(context.Background(), HashModel, "Enflasyon raporu")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := e.Embed(context.Background(), HashModel, "Enflasyon raporu")
	if len(a) != 128 {
		t.Fatalf("len = %d, want 128", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestHashEngine_SharedVocabularyIsCloser(t *testing.T) {
	e := NewHashEngine(DefaultHashDimensions)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "", "enflasyon")
	near, _ := e.Embed(ctx, "", "Enflasyon raporu Fiyatlar arttı")
	far, _ := e.Embed(ctx, "", "Futbol maçı sonucu")

	if cosineSim(q, near) <= cosineSim(q, far) {
		t.Errorf("sim(near) = %f, sim(far) = %f; want near > far", cosineSim(q, near), cosineSim(q, far))
	}
}

func TestHashEngine_PunctuationOnly(t *testing.T) {
	e := NewHashEngine(16)
	ctx := context.Background()

	v, err := e.Embed(ctx, HashModel, "!! ??")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	nonZero := false
	for _, f := range v {
		if f != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Fatal("punctuation-only text produced a zero vector")
	}

	same, _ := e.Embed(ctx, HashModel, "  !!\n??  ")
	if cosineSim(v, same) < 0.999 {
		t.Errorf("whitespace changed the vector: sim = %f", cosineSim(v, same))
	}
}

func TestHashEngine_BlankIsZero(t *testing.T) {
	e := NewHashEngine(16)
	v, err := e.Embed(context.Background(), HashModel, " \t\n")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, f := range v {
		if f != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestHashEngine_UnknownModel(t *testing.T) {
	e := NewHashEngine(16)
	if _, err := e.Embed(context.Background(), "bert", "x"); err == nil {
		t.Error("expected error for unknown model")
	}
	if e.HasModel(context.Background(), "bert") {
		t.Error("HasModel(bert) = true")
	}
}
