package config

import (
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Models    ModelsConfig    `koanf:"models"`
	Engine    EngineConfig    `koanf:"engine"`
	Tools     ToolsConfig     `koanf:"tools"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Retriever RetrieverConfig `koanf:"retriever"`
	Store     StoreConfig     `koanf:"store"`
	Prompts   PromptsConfig   `koanf:"prompts"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type ModelsConfig struct {
	Default        string          `koanf:"default"`
	Fallback       string          `koanf:"fallback"`
	Embedding      string          `koanf:"embedding"`
	RequestTimeout string          `koanf:"request_timeout"`
	Registry       []ModelRegistry `koanf:"registry"`
	// Aliases maps logical model names requested by clients to registry
	// entries. Unmapped names resolve to Default.
	Aliases map[string]string `koanf:"aliases"`
}

type ModelRegistry struct {
	Name     string `koanf:"name"`
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type EngineConfig struct {
	MaxIterations int    `koanf:"max_iterations"`
	HistoryLimit  int    `koanf:"history_limit"`
	TurnTimeout   string `koanf:"turn_timeout"`
}

type ToolsConfig struct {
	CallTimeout    string            `koanf:"call_timeout"`
	MaxParallel    int               `koanf:"max_parallel"`
	ResultMaxChars int               `koanf:"result_max_chars"`
	Web            WebToolConfig     `koanf:"web"`
	Finance        FinanceToolConfig `koanf:"finance"`
	Weather        WeatherToolConfig `koanf:"weather"`
}

type WebToolConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

type FinanceToolConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
	// Keywords gate the finance tool group into the active set; the group
	// is only offered to the model when the latest user message matches.
	Keywords []string `koanf:"keywords"`
}

type WeatherToolConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

type DiscoveryConfig struct {
	Endpoints     []string `koanf:"endpoints"`
	RefreshPolicy string   `koanf:"refresh_policy"` // "cache" or "always"
	CacheTTL      string   `koanf:"cache_ttl"`
	RefreshCron   string   `koanf:"refresh_cron"`
	FetchTimeout  string   `koanf:"fetch_timeout"`
}

type RetrieverConfig struct {
	ChunkSize        int    `koanf:"chunk_size"`
	ChunkOverlap     int    `koanf:"chunk_overlap"`
	TopK             int    `koanf:"top_k"`
	EmbeddingTimeout string `koanf:"embedding_timeout"`
}

type StoreConfig struct {
	Path         string `koanf:"path"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
	InboxSize    int    `koanf:"inbox_size"`
}

type PromptsConfig struct {
	System string `koanf:"system"`
}

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "0s" // streaming responses manage their own deadline
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"

	// Registry entry names double as the provider-side model ids.
	DefaultModelDefault        = "llama-3.3-70b-versatile"
	DefaultModelFallback       = "gemini-2.0-flash"
	DefaultModelEmbedding      = "text-embedding-004"
	DefaultModelRequestTimeout = "60s"
	DefaultGroqBaseURL         = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL       = "https://api.openai.com/v1"

	DefaultEngineMaxIterations = 15
	DefaultEngineHistoryLimit  = 10
	DefaultEngineTurnTimeout   = "120s"

	DefaultToolCallTimeout    = "30s"
	DefaultToolMaxParallel    = 4
	DefaultToolResultMaxChars = 4000
	DefaultWebToolBaseURL     = "https://www.bing.com/search"
	DefaultWebToolTimeout     = "10s"
	DefaultFinanceToolBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	DefaultFinanceToolTimeout = "10s"
	DefaultWeatherToolBaseURL = "https://wttr.in"
	DefaultWeatherToolTimeout = "10s"

	DefaultDiscoveryRefreshPolicy = "cache"
	DefaultDiscoveryCacheTTL      = "5m"
	DefaultDiscoveryFetchTimeout  = "10s"

	DefaultRetrieverChunkSize        = 1000
	DefaultRetrieverChunkOverlap     = 200
	DefaultRetrieverTopK             = 4
	DefaultRetrieverEmbeddingTimeout = "30s"

	DefaultStorePath         = "./data"
	DefaultStoreLockTimeout  = "30s"
	DefaultStoreLockRetry    = "100ms"
	DefaultStoreLockMaxRetry = 300
	DefaultStoreInboxSize    = 100

	DefaultSystemPrompt = "You are Sentinel, an intelligent assistant that helps with daily tasks. " +
		"You are helpful, concise, and proactive. When you need to use tools, explain what " +
		"you are doing and provide helpful responses."
)

// RefreshPolicyCache and RefreshPolicyAlways are the two dynamic tool
// discovery policies; see DiscoveryConfig.RefreshPolicy.
const (
	RefreshPolicyCache  = "cache"
	RefreshPolicyAlways = "always"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             DefaultServerPort,
		"server.log_level":        DefaultServerLogLevel,
		"server.read_timeout":     DefaultServerReadTimeout,
		"server.write_timeout":    DefaultServerWriteTimeout,
		"server.idle_timeout":     DefaultServerIdleTimeout,
		"server.shutdown_timeout": DefaultServerShutdownTimeout,

		"models.default":         DefaultModelDefault,
		"models.fallback":        DefaultModelFallback,
		"models.embedding":       DefaultModelEmbedding,
		"models.request_timeout": DefaultModelRequestTimeout,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "openai", BaseURL: DefaultGroqBaseURL},
			{Name: DefaultModelFallback, Provider: "gemini"},
			{Name: DefaultModelEmbedding, Provider: "gemini"},
		},
		"models.aliases": map[string]string{},

		"engine.max_iterations": DefaultEngineMaxIterations,
		"engine.history_limit":  DefaultEngineHistoryLimit,
		"engine.turn_timeout":   DefaultEngineTurnTimeout,

		"tools.call_timeout":     DefaultToolCallTimeout,
		"tools.max_parallel":     DefaultToolMaxParallel,
		"tools.result_max_chars": DefaultToolResultMaxChars,
		"tools.web.base_url":     DefaultWebToolBaseURL,
		"tools.web.timeout":      DefaultWebToolTimeout,
		"tools.finance.base_url": DefaultFinanceToolBaseURL,
		"tools.finance.timeout":  DefaultFinanceToolTimeout,
		"tools.finance.keywords": []string{
			"stock", "stocks", "ticker", "price", "shares", "market",
			"crypto", "bitcoin", "etf", "fund", "nasdaq", "dividend",
		},
		"tools.weather.base_url": DefaultWeatherToolBaseURL,
		"tools.weather.timeout":  DefaultWeatherToolTimeout,

		"discovery.endpoints":      []string{},
		"discovery.refresh_policy": DefaultDiscoveryRefreshPolicy,
		"discovery.cache_ttl":      DefaultDiscoveryCacheTTL,
		"discovery.fetch_timeout":  DefaultDiscoveryFetchTimeout,

		"retriever.chunk_size":        DefaultRetrieverChunkSize,
		"retriever.chunk_overlap":     DefaultRetrieverChunkOverlap,
		"retriever.top_k":             DefaultRetrieverTopK,
		"retriever.embedding_timeout": DefaultRetrieverEmbeddingTimeout,

		"store.path":           DefaultStorePath,
		"store.lock_timeout":   DefaultStoreLockTimeout,
		"store.lock_retry":     DefaultStoreLockRetry,
		"store.lock_max_retry": DefaultStoreLockMaxRetry,
		"store.inbox_size":     DefaultStoreInboxSize,

		"prompts.system": DefaultSystemPrompt,
	}

	for key, value := range defaults {
		k.Set(key, value)
	}

	// Optional config file
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			if cfgPath := strings.TrimSpace(flag.Value.String()); cfgPath != "" {
				if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
					return nil, err
				}
			}
		}
	}

	// Environment overrides: SENTINEL_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("SENTINEL_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SENTINEL_")), "_", ".")
	}), nil); err != nil {
		slog.Warn("Failed to load env config", "error", err)
	}

	// Command-line flags take highest precedence
	if cmd != nil {
		if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
