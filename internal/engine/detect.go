package engine

import "fmt"

// Provider names accepted by Detect.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// DefaultOllamaURL is used for the Ollama provider when BaseURL is empty.
const DefaultOllamaURL = "http://localhost:11434"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// Detect returns the engine for the configured provider. An empty provider
// means Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaURL
		}
		return NewOllamaEngine(cfg.BaseURL), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s requires an API key", ProviderOpenAI)
		}
		return NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Dimensions), nil
	case ProviderHash:
		return NewHashEngine(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// ModelFor returns the model name to request from the provider. The hash
// provider serves a single model regardless of configuration.
func ModelFor(provider, model string) string {
	if provider == ProviderHash {
		return HashModel
	}
	return model
}
