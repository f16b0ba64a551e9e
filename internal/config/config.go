package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Loop holds the research-loop limits. Every field has an env override so a
// single run can be tuned without touching the config file.
type Loop struct {
	MaxIters               int  `mapstructure:"max_iters"`
	MaxQueries             int  `mapstructure:"max_queries"`
	MaxSources             int  `mapstructure:"max_sources"`
	MaxRetries             int  `mapstructure:"max_retries"`
	MinResultsPerQuery     int  `mapstructure:"min_results_per_query"`
	TokenBudget            int  `mapstructure:"token_budget"`
	CompactKeepRecent      int  `mapstructure:"compact_keep_recent"`
	CompactBeforeSynthesis bool `mapstructure:"compact_before_synthesis"`
	LLMMaxTokens           int  `mapstructure:"llm_max_tokens"`
}

// LLM configures the model backend.
type LLM struct {
	Host        string        `mapstructure:"host"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Search configures the web-search backend.
type Search struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Redis configures the response cache store.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr           string  `mapstructure:"addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Config is the root configuration for the research orchestrator.
type Config struct {
	Loop    Loop    `mapstructure:"loop"`
	LLM     LLM     `mapstructure:"llm"`
	Search  Search  `mapstructure:"search"`
	Redis   Redis   `mapstructure:"redis"`
	Tracing Tracing `mapstructure:"tracing"`
	Server  Server  `mapstructure:"server"`

	AgentsPath string `mapstructure:"agents_path"`
	PromptsDir string `mapstructure:"prompts_dir"`
	TraceDB    string `mapstructure:"trace_db"`

	// LowQualityDomains are substring-matched against source locations and
	// dropped during filtering.
	LowQualityDomains []string `mapstructure:"low_quality_domains"`
	// AuthoritativeDomains mark trusted analyst/news sources; their absence
	// from a finished run is reported as a risk.
	AuthoritativeDomains []string `mapstructure:"authoritative_domains"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Loop: Loop{
			MaxIters:               2,
			MaxQueries:             10,
			MaxSources:             15,
			MaxRetries:             3,
			MinResultsPerQuery:     3,
			TokenBudget:            120000,
			CompactKeepRecent:      20,
			CompactBeforeSynthesis: false,
			LLMMaxTokens:           800,
		},
		LLM: LLM{
			Host:        "http://127.0.0.1:11434",
			Model:       "llama3.1:latest",
			Temperature: 0,
			Timeout:     120 * time.Second,
		},
		Search: Search{
			Endpoint: "https://serpapi.com/search.json",
			Timeout:  20 * time.Second,
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Tracing: Tracing{
			ServiceName: "researchd",
		},
		Server: Server{
			Addr:           ":8080",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		AgentsPath: "config/agents.yaml",
		PromptsDir: "",
		TraceDB:    "traces.db",
		LowQualityDomains: []string{
			"piechartmaker.com",
			"sqmagazine.co.uk",
			"aag-it.com",
		},
		AuthoritativeDomains: []string{
			"statista.com",
			"gartner.com",
			"idc.com",
			"techcrunch.com",
			"theverge.com",
			"bloomberg.com",
		},
	}
}

// Load reads CONFIG_PATH (default config/researchd.yaml) if it exists and
// layers env overrides on top of the built-in defaults. A missing config file
// is not an error; env overrides alone are a supported deployment.
func Load() (*Config, error) {
	cfg := Default()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/researchd.yaml"
	}

	if _, err := os.Stat(cfgPath); err == nil {
		v := viper.New()
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", cfgPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt("RESEARCH_MAX_ITERS", &cfg.Loop.MaxIters)
	overrideInt("RESEARCH_MAX_QUERIES", &cfg.Loop.MaxQueries)
	overrideInt("RESEARCH_MAX_SOURCES", &cfg.Loop.MaxSources)
	overrideInt("RESEARCH_MAX_RETRIES", &cfg.Loop.MaxRetries)
	overrideInt("RESEARCH_TOKEN_BUDGET", &cfg.Loop.TokenBudget)
	overrideInt("RESEARCH_COMPACT_KEEP_RECENT", &cfg.Loop.CompactKeepRecent)
	overrideInt("RESEARCH_LLM_MAX_TOKENS", &cfg.Loop.LLMMaxTokens)
	overrideBool("RESEARCH_COMPACT_BEFORE_SYNTH", &cfg.Loop.CompactBeforeSynthesis)

	overrideString("OLLAMA_HOST", &cfg.LLM.Host)
	overrideString("OLLAMA_MODEL", &cfg.LLM.Model)
	overrideString("SERPAPI_KEY", &cfg.Search.APIKey)
	overrideString("REDIS_ADDR", &cfg.Redis.Addr)
	overrideString("AGENTS_PATH", &cfg.AgentsPath)
	overrideString("PROMPTS_DIR", &cfg.PromptsDir)
	overrideString("TRACE_DB", &cfg.TraceDB)
	overrideString("LISTEN_ADDR", &cfg.Server.Addr)
}

func overrideInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			*dst = x
		}
	}
}

func overrideBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func overrideString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
