package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLimits(t *testing.T) {
	cfg := Default()
	if cfg.Loop.MaxIters != 2 || cfg.Loop.MaxQueries != 10 || cfg.Loop.MaxSources != 15 {
		t.Fatalf("unexpected loop limits: %+v", cfg.Loop)
	}
	if cfg.Loop.MaxRetries != 3 || cfg.Loop.MinResultsPerQuery != 3 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Loop)
	}
	if cfg.Loop.TokenBudget != 120000 || cfg.Loop.CompactKeepRecent != 20 {
		t.Fatalf("unexpected compaction defaults: %+v", cfg.Loop)
	}
	if cfg.Loop.CompactBeforeSynthesis {
		t.Fatalf("synthesis compaction must default off")
	}
	if cfg.LLM.Temperature != 0 || cfg.Loop.LLMMaxTokens != 800 {
		t.Fatalf("unexpected model defaults: %+v", cfg.LLM)
	}
	if len(cfg.LowQualityDomains) != 3 || len(cfg.AuthoritativeDomains) != 6 {
		t.Fatalf("unexpected domain lists: %v / %v", cfg.LowQualityDomains, cfg.AuthoritativeDomains)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("missing config file must not fail: %v", err)
	}
	if cfg.Loop.MaxIters != 2 {
		t.Fatalf("defaults not applied: %+v", cfg.Loop)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "researchd.yaml")
	content := "loop:\n  max_iters: 5\nserver:\n  addr: \":9999\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Loop.MaxIters != 5 {
		t.Fatalf("file value not applied: %d", cfg.Loop.MaxIters)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("file value not applied: %s", cfg.Server.Addr)
	}
	// Untouched fields keep their defaults.
	if cfg.Loop.MaxQueries != 10 {
		t.Fatalf("default lost on partial file: %d", cfg.Loop.MaxQueries)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "researchd.yaml")
	if err := os.WriteFile(path, []byte("loop:\n  max_iters: 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RESEARCH_MAX_ITERS", "7")
	t.Setenv("OLLAMA_MODEL", "mistral:latest")
	t.Setenv("SERPAPI_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Loop.MaxIters != 7 {
		t.Fatalf("env must win over file: %d", cfg.Loop.MaxIters)
	}
	if cfg.LLM.Model != "mistral:latest" || cfg.Search.APIKey != "test-key" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestInvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("RESEARCH_MAX_ITERS", "not-a-number")
	t.Setenv("RESEARCH_MAX_QUERIES", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Loop.MaxIters != 2 || cfg.Loop.MaxQueries != 10 {
		t.Fatalf("invalid env values must be ignored: %+v", cfg.Loop)
	}
}
