package engine

import "testing"

func TestDetect_DefaultsToOllama(t *testing.T) {
	e, err := Detect(DetectConfig{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	o, ok := e.(*OllamaEngine)
	if !ok {
		t.Fatalf("Detect returned %T, want *OllamaEngine", e)
	}
	if got := o.client.BaseURL(); got != DefaultOllamaURL {
		t.Errorf("base URL = %q, want %q", got, DefaultOllamaURL)
	}
}

func TestModelFor(t *testing.T) {
	if got := ModelFor(ProviderHash, "nomic-embed-text"); got != HashModel {
		t.Errorf("ModelFor(hash) = %q, want %q", got, HashModel)
	}
	if got := ModelFor(ProviderOllama, "nomic-embed-text"); got != "nomic-embed-text" {
		t.Errorf("ModelFor(ollama) = %q", got)
	}
}

func TestDetect_Providers(t *testing.T) {
	e, err := Detect(DetectConfig{Provider: ProviderOpenAI, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("Detect(openai): %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}

	e, err = Detect(DetectConfig{Provider: ProviderHash, Dimensions: 64})
	if err != nil {
		t.Fatalf("Detect(hash): %v", err)
	}
	if h, ok := e.(*HashEngine); !ok || h.dim != 64 {
		t.Errorf("Detect returned %#v, want 64-dim *HashEngine", e)
	}
}

func TestDetect_Errors(t *testing.T) {
	if _, err := Detect(DetectConfig{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error for openai without API key")
	}
	if _, err := Detect(DetectConfig{Provider: "bert"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
