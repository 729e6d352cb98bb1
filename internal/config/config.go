package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported model providers.
const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

// Supported plan cache backends.
const (
	CacheBackendFile   = "file"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds the configuration for the application.
type Config struct {
	AppName    string
	AppVersion string
	LogLevel   string
	LogFormat  string
	Host       string
	Port       string

	// Model provider
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	OpenAIAPIKey string
	OpenAIModel  string
	// OpenAIBaseURL points the openai provider at any compatible server.
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	// Pipeline switches
	EnableCache         bool
	EnableLLMValidation bool
	EnableQueryDump     bool
	QueryDumpDir        string

	// Plan cache
	CacheBackend    string
	CacheDir        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	MemoryCacheSize int

	// Usage ledger
	MetricsDBPath     string
	EnableUsageLedger bool

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		AppName:    v.GetString("app_name"),
		AppVersion: v.GetString("app_version"),
		LogLevel:   strings.ToLower(v.GetString("log_level")),
		LogFormat:  strings.ToLower(v.GetString("log_format")),
		Host:       v.GetString("host"),
		Port:       v.GetString("port"),

		LLMProvider:   strings.ToLower(v.GetString("llm_provider")),
		GeminiAPIKey:  v.GetString("gemini_api_key"),
		GeminiModel:   v.GetString("gemini_model"),
		GroqAPIKey:    v.GetString("groq_api_key"),
		GroqModel:     v.GetString("groq_model"),
		OpenAIAPIKey:  v.GetString("openai_api_key"),
		OpenAIModel:   v.GetString("openai_model"),
		OpenAIBaseURL: v.GetString("openai_base_url"),
		LLMTimeout:    v.GetDuration("llm_timeout"),

		EnableCache:         v.GetBool("enable_cache"),
		EnableLLMValidation: v.GetBool("enable_llm_validation"),
		EnableQueryDump:     v.GetBool("enable_query_dump"),
		QueryDumpDir:        v.GetString("query_dump_dir"),

		CacheBackend:    strings.ToLower(v.GetString("cache_backend")),
		CacheDir:        v.GetString("cache_dir"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisDB:         v.GetInt("redis_db"),
		MemoryCacheSize: v.GetInt("memory_cache_size"),

		MetricsDBPath:     v.GetString("metrics_db_path"),
		EnableUsageLedger: v.GetBool("enable_usage_ledger"),

		TelegramBotToken:   v.GetString("telegram_bot_token"),
		TelegramWebhookURL: v.GetString("telegram_webhook_url"),
	}

	ids, err := parseUserIDs(v.GetString("telegram_allowed_user_ids"))
	if err != nil {
		return nil, err
	}
	cfg.TelegramAllowedUserIDs = ids

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "AI Meal Planner API")
	v.SetDefault("app_version", "1.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8001")

	v.SetDefault("llm_provider", ProviderGemini)
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("groq_model", "llama-3.3-70b-versatile")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout", "60s")

	v.SetDefault("enable_cache", true)
	v.SetDefault("enable_llm_validation", true)
	v.SetDefault("enable_query_dump", false)
	v.SetDefault("query_dump_dir", "query_dumps")

	v.SetDefault("cache_backend", CacheBackendFile)
	v.SetDefault("cache_dir", "meals_store")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("memory_cache_size", 256)

	v.SetDefault("metrics_db_path", "data/metrics.db")
	v.SetDefault("enable_usage_ledger", true)
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderGroq, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.LLMTimeout < 0 {
		return fmt.Errorf("LLM_TIMEOUT must not be negative")
	}
	if c.MemoryCacheSize <= 0 {
		return fmt.Errorf("MEMORY_CACHE_SIZE must be positive")
	}
	return nil
}

// ModelConfigured reports whether the selected provider has a credential.
// Without one the pipeline runs regex-only and every meal degrades to a placeholder.
func (c *Config) ModelConfigured() bool {
	return c.APIKey() != ""
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case ProviderGroq:
		return c.GroqAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return c.GeminiAPIKey
	}
}

// Model returns the model identifier of the selected provider.
func (c *Config) Model() string {
	switch c.LLMProvider {
	case ProviderGroq:
		return c.GroqModel
	case ProviderOpenAI:
		return c.OpenAIModel
	default:
		return c.GeminiModel
	}
}

// Addr is the listen address for HTTP servers.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// DataDir is the directory holding the usage database.
func (c *Config) DataDir() string {
	return filepath.Dir(c.MetricsDBPath)
}

func parseUserIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
