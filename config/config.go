package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the briefer service
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Session      SessionConfig      `mapstructure:"session"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Ranking      RankingConfig      `mapstructure:"ranking"`
	WebContext   WebContextConfig   `mapstructure:"web_context"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OrchestratorConfig bounds the fan-out and the per-endpoint circuit breaker.
type OrchestratorConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	AgentTimeout   time.Duration `mapstructure:"agent_timeout"`
	CBFails        int           `mapstructure:"cb_fails"`
	CBCooldown     time.Duration `mapstructure:"cb_cooldown"`
	ServiceBaseURL string        `mapstructure:"service_base_url"`
	ClientName     string        `mapstructure:"client_name"`
	ClientVersion  string        `mapstructure:"client_version"`
}

func (o OrchestratorConfig) Validate() error {
	if o.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be > 0")
	}
	if o.AgentTimeout <= 0 {
		return fmt.Errorf("orchestrator.agent_timeout must be > 0")
	}
	if o.CBFails <= 0 {
		return fmt.Errorf("orchestrator.cb_fails must be > 0")
	}
	if o.CBCooldown <= 0 {
		return fmt.Errorf("orchestrator.cb_cooldown must be > 0")
	}
	return nil
}

// SessionConfig controls the sales endpoint's server-side sessions.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RetrievalConfig struct {
	TopK           int           `mapstructure:"top_k"`
	SemanticWeight float64       `mapstructure:"semantic_weight"`
	MaxCandidates  int           `mapstructure:"max_candidates"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

func (r RetrievalConfig) Validate() error {
	if r.SemanticWeight < 0 || r.SemanticWeight > 1 {
		return fmt.Errorf("retrieval.semantic_weight must be within [0,1]")
	}
	if r.TopK < 0 {
		return fmt.Errorf("retrieval.top_k cannot be negative")
	}
	return nil
}

type RankingConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	BatchSize int     `mapstructure:"batch_size"`
	Provider  string  `mapstructure:"provider"` // gemini | openai | none
	Model     string  `mapstructure:"model"`
}

func (r RankingConfig) Validate() error {
	if r.Threshold <= 0 || r.Threshold > 1 {
		return fmt.Errorf("ranking.threshold must be within (0,1]")
	}
	switch r.Provider {
	case "", "none", "gemini", "openai":
	default:
		return fmt.Errorf("ranking.provider %q is not supported", r.Provider)
	}
	return nil
}

// WebContextConfig selects the snippet backend for agents with web context on.
type WebContextConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"` // gemini | serper | brave
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxSnippets int           `mapstructure:"max_snippets"`
}

func (w WebContextConfig) Validate() error {
	if !w.Enabled {
		return nil
	}
	switch w.Provider {
	case "gemini", "serper", "brave":
	default:
		return fmt.Errorf("web_context.provider %q is not supported", w.Provider)
	}
	if w.Timeout <= 0 {
		return fmt.Errorf("web_context.timeout must be > 0")
	}
	return nil
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Gemini  LLMProvider   `mapstructure:"gemini"`
	OpenAI  LLMProvider   `mapstructure:"openai"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver         string      `mapstructure:"driver"` // sqlite | postgres
	DSN            string      `mapstructure:"dsn"`
	SessionBackend string      `mapstructure:"session_backend"` // memory | redis
	Redis          RedisConfig `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres")
	}
	if strings.TrimSpace(s.DSN) == "" {
		return fmt.Errorf("storage.dsn required")
	}
	switch s.SessionBackend {
	case "memory":
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.session_backend must be memory or redis")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && !strings.HasPrefix(t.MetricsPath, "/") {
		return fmt.Errorf("telemetry.metrics_path must start with /")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("orchestrator.concurrency", 8)
	v.SetDefault("orchestrator.agent_timeout", 25*time.Second)
	v.SetDefault("orchestrator.cb_fails", 2)
	v.SetDefault("orchestrator.cb_cooldown", 60*time.Second)
	v.SetDefault("orchestrator.service_base_url", "http://localhost:8080")
	v.SetDefault("orchestrator.client_name", "briefer")
	v.SetDefault("orchestrator.client_version", "0.1.0")
	v.SetDefault("session.ttl", 60*time.Second)
	v.SetDefault("retrieval.top_k", 50)
	v.SetDefault("retrieval.semantic_weight", 0.6)
	v.SetDefault("retrieval.max_candidates", 50)
	v.SetDefault("retrieval.cache_ttl", 24*time.Hour)
	v.SetDefault("ranking.threshold", 0.70)
	v.SetDefault("ranking.batch_size", 20)
	v.SetDefault("ranking.provider", "none")
	v.SetDefault("web_context.enabled", false)
	v.SetDefault("web_context.provider", "gemini")
	v.SetDefault("web_context.timeout", 8*time.Second)
	v.SetDefault("web_context.max_snippets", 5)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:briefer.db?_pragma=busy_timeout(5000)")
	v.SetDefault("storage.session_backend", "memory")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")

	// Unset keys are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"ranking.model", "web_context.api_key", "web_context.model",
		"llm.gemini.api_key", "llm.gemini.base_url", "llm.gemini.model", "llm.gemini.embedding_model",
		"llm.openai.api_key", "llm.openai.base_url", "llm.openai.model", "llm.openai.embedding_model",
		"storage.redis.password",
	} {
		v.SetDefault(key, "")
	}
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("default config: %w", err))
	}
	return &cfg
}

// LoadConfig loads config from file. A missing config file is not an error
// when no explicit path is given; env vars (BRIEFER_*) override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("BRIEFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	validators := []func() error{
		c.Orchestrator.Validate,
		c.Retrieval.Validate,
		c.Ranking.Validate,
		c.WebContext.Validate,
		c.Storage.Validate,
		c.Telemetry.Validate,
	}
	for _, fn := range validators {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
