package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Index     IndexConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Graph     GraphConfig
	Stats     StatsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type IndexConfig struct {
	DataDir    string
	Collection string
}

// EmbeddingConfig selects the embedding backend. An empty BaseURL means the
// provider's default endpoint.
type EmbeddingConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Dimensions  int
	Concurrency int
	RateLimit   float64
}

type SearchConfig struct {
	DefaultLimit     int
	DefaultThreshold float64
}

type GraphConfig struct {
	CandidateLimit int
	Threshold      float64
}

type StatsConfig struct {
	PageSize int
}

type LogConfig struct {
	Level  string
	Format string
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Index: IndexConfig{
			DataDir:    defaultDataDir(),
			Collection: "documents",
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			Concurrency: 4,
		},
		Search: SearchConfig{
			DefaultLimit:     10,
			DefaultThreshold: 0.5,
		},
		Graph: GraphConfig{
			CandidateLimit: 10,
			Threshold:      0.5,
		},
		Stats: StatsConfig{
			PageSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the YAML file at ConfigFilePath and then
// applies environment variables (SEMDOC_*), which win over file values.
// Secrets are only read from the environment; for the OpenAI provider the
// conventional OPENAI_API_KEY is used when SEMDOC_EMBEDDING_API_KEY is unset.
func Load() (Config, error) {
	return loadFromPath(ConfigFilePath())
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	b, err := openFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	applyBackend(&cfg, b)
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validProviders = map[string]bool{"ollama": true, "openai": true, "hash": true}

// Validate checks that the configuration contains usable values.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Index.DataDir == "" {
		return fmt.Errorf("index.data_dir is required")
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index.collection is required")
	}
	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of ollama, openai, hash", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("missing required config: embedding API key. " +
			"Set it via environment variable SEMDOC_EMBEDDING_API_KEY or OPENAI_API_KEY")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions < 0 || c.Embedding.Concurrency < 0 || c.Embedding.RateLimit < 0 {
		return fmt.Errorf("embedding.dimensions, embedding.concurrency and embedding.rate_limit must be non-negative")
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 100 {
		return fmt.Errorf("search.default_limit must be within [1, 100], got %d", c.Search.DefaultLimit)
	}
	for key, v := range map[string]float64{
		"search.default_threshold": c.Search.DefaultThreshold,
		"graph.threshold":          c.Graph.Threshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %g", key, v)
		}
	}
	if c.Graph.CandidateLimit < 1 {
		return fmt.Errorf("graph.candidate_limit must be positive")
	}
	if c.Stats.PageSize < 1 {
		return fmt.Errorf("stats.page_size must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", s)
	}
	return l, nil
}

// ConfigFilePath returns the YAML config location: $SEMDOC_CONFIG when set,
// otherwise $XDG_CONFIG_HOME/semdoc/config.yaml.
func ConfigFilePath() string {
	if p := os.Getenv("SEMDOC_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "semdoc", "config.yaml")
}
