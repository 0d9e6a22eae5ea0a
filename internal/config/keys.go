package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SEMDOC_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SEMDOC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "index.data_dir", typ: kString, env: "SEMDOC_INDEX_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Index.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.DataDir },
	},
	{
		key: "index.collection", typ: kString, env: "SEMDOC_INDEX_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.Index.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Collection },
	},
	{
		key: "embedding.provider", typ: kString, env: "SEMDOC_EMBEDDING_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Provider },
	},
	{
		key: "embedding.model", typ: kString, env: "SEMDOC_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "embedding.base_url", typ: kString, env: "SEMDOC_EMBEDDING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.BaseURL },
	},
	{
		key: "embedding.api_key", typ: kString, env: "SEMDOC_EMBEDDING_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Embedding.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.APIKey },
	},
	{
		key: "embedding.dimensions", typ: kInt, env: "SEMDOC_EMBEDDING_DIMENSIONS",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Dimensions = v.(int) },
		extract: func(cfg Config) any { return cfg.Embedding.Dimensions },
	},
	{
		key: "embedding.concurrency", typ: kInt, env: "SEMDOC_EMBEDDING_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Embedding.Concurrency },
	},
	{
		key: "embedding.rate_limit", typ: kFloat, env: "SEMDOC_EMBEDDING_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Embedding.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Embedding.RateLimit },
	},
	{
		key: "search.default_limit", typ: kInt, env: "SEMDOC_SEARCH_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.DefaultLimit },
	},
	{
		key: "search.default_threshold", typ: kFloat, env: "SEMDOC_SEARCH_DEFAULT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.DefaultThreshold },
	},
	{
		key: "graph.candidate_limit", typ: kInt, env: "SEMDOC_GRAPH_CANDIDATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Graph.CandidateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Graph.CandidateLimit },
	},
	{
		key: "graph.threshold", typ: kFloat, env: "SEMDOC_GRAPH_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Graph.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Graph.Threshold },
	},
	{
		key: "stats.page_size", typ: kInt, env: "SEMDOC_STATS_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Stats.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Stats.PageSize },
	},
	{
		key: "log.level", typ: kString, env: "SEMDOC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "SEMDOC_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts a raw string into the Go type the key expects.
func (s keySpec) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

// applyKoanf copies every known key present in k into cfg. Values that do not
// parse are logged and the previous value is kept.
func applyKoanf(cfg *Config, k *koanf.Koanf, origin string, withSecrets bool) {
	for _, s := range specs {
		if s.secret && !withSecrets {
			continue
		}
		if !k.Exists(s.key) {
			continue
		}
		raw := k.String(s.key)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("ignoring unparsable config value", "key", s.key, "source", origin, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applyBackend applies the non-secret keys stored in the config file.
func applyBackend(cfg *Config, b *fileBackend) {
	applyKoanf(cfg, b.k, b.path, false)
}

// envKeys maps SEMDOC_* variable names to their dotted config keys.
var envKeys = func() map[string]string {
	m := make(map[string]string, len(specs))
	for _, s := range specs {
		m[s.env] = s.key
	}
	return m
}()

func applyEnvOverrides(cfg *Config) error {
	k := koanf.New(".")
	err := k.Load(env.Provider("SEMDOC_", ".", func(name string) string {
		return envKeys[name]
	}), nil)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}
	applyKoanf(cfg, k, "environment", true)
	return nil
}
