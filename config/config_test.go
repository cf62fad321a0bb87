package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ranking.Threshold != 0.70 {
		t.Fatalf("expected threshold 0.70, got %v", cfg.Ranking.Threshold)
	}
	if cfg.Orchestrator.CBFails != 2 || cfg.Orchestrator.CBCooldown != 60*time.Second {
		t.Fatalf("unexpected breaker defaults %+v", cfg.Orchestrator)
	}
	if cfg.Session.TTL != 60*time.Second {
		t.Fatalf("unexpected session ttl %v", cfg.Session.TTL)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"orchestrator": {"concurrency": 3, "agent_timeout": "5s"},
		"ranking": {"threshold": 0.8, "provider": "gemini"},
		"storage": {"driver": "postgres", "dsn": "postgres://localhost/briefer"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BRIEFER_LLM_GEMINI_API_KEY", "k-123")
	t.Setenv("BRIEFER_ORCHESTRATOR_CB_FAILS", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Orchestrator.Concurrency != 3 || cfg.Orchestrator.AgentTimeout != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.CBFails != 4 {
		t.Fatalf("env override not applied: %d", cfg.Orchestrator.CBFails)
	}
	if cfg.LLM.Gemini.APIKey != "k-123" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.Gemini.APIKey)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Ranking.Threshold != 0.8 {
		t.Fatalf("unexpected storage/ranking %+v %+v", cfg.Storage, cfg.Ranking)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"threshold":       func(c *Config) { c.Ranking.Threshold = 1.5 },
		"concurrency":     func(c *Config) { c.Orchestrator.Concurrency = 0 },
		"driver":          func(c *Config) { c.Storage.Driver = "mysql" },
		"session backend": func(c *Config) { c.Storage.SessionBackend = "disk" },
		"redis host": func(c *Config) {
			c.Storage.SessionBackend = "redis"
			c.Storage.Redis.Host = ""
		},
		"web provider": func(c *Config) {
			c.WebContext.Enabled = true
			c.WebContext.Provider = "bing"
		},
		"weight": func(c *Config) { c.Retrieval.SemanticWeight = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
