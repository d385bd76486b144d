package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "PROSEARCH"
	defaultConfigPath = "./config/prosearch.yaml"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
}

type SearchConfig struct {
	SearxngURL string        `mapstructure:"searxng_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

type AgentIDs struct {
	Rephrase    string `mapstructure:"rephrase"`
	Planning    string `mapstructure:"planning"`
	SearchQuery string `mapstructure:"search_query"`
	Answer      string `mapstructure:"answer"`
	Related     string `mapstructure:"related"`
}

type LLMConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AgentsFile string        `mapstructure:"agents_file"`
	Agents     AgentIDs      `mapstructure:"agents"`
}

type ProModeConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	BufferPlanEvents bool `mapstructure:"buffer_plan_events"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// Config is the full process configuration.
type Config struct {
	Server  ServerConfig `mapstructure:"server"`
	Metrics struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Search    SearchConfig    `mapstructure:"search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	ProMode   ProModeConfig   `mapstructure:"pro_mode"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
}

// Validate reports missing required settings as a ConfigurationError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Search.SearxngURL) == "" {
		return &llm.ConfigurationError{Field: "search.searxng_url", Reason: "must be set"}
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return &llm.ConfigurationError{Field: "llm.base_url", Reason: "must be set"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &llm.ConfigurationError{Field: "server.port", Reason: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return &llm.ConfigurationError{Field: "ratelimit.requests_per_minute", Reason: "must not be negative"}
	}
	return nil
}

// AgentMap returns the configured agent ids keyed by capability.
func (c *Config) AgentMap() map[llm.Kind]string {
	return map[llm.Kind]string{
		llm.KindRephrase:    c.LLM.Agents.Rephrase,
		llm.KindPlanning:    c.LLM.Agents.Planning,
		llm.KindSearchQuery: c.LLM.Agents.SearchQuery,
		llm.KindAnswer:      c.LLM.Agents.Answer,
		llm.KindRelated:     c.LLM.Agents.Related,
	}
}

// LLMClient returns the agent client configuration.
func (c *Config) LLMClient() llm.Config {
	return llm.Config{
		BaseURL: c.LLM.BaseURL,
		APIKey:  c.LLM.APIKey,
		Timeout: c.LLM.Timeout,
		Agents:  c.AgentMap(),
	}
}

// Loader reads configuration from an optional YAML file and PROSEARCH_* variables.
type Loader struct {
	mu       sync.Mutex
	v        *viper.Viper
	path     string
	fileUsed bool
}

// NewLoader builds a loader for path; an empty path uses CONFIG_PATH or the default location.
func NewLoader(path string) *Loader {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// names used by existing deployments
	_ = v.BindEnv("search.searxng_url", "PROSEARCH_SEARCH_SEARXNG_URL", "SEARXNG_BASE_URL")
	_ = v.BindEnv("llm.base_url", "PROSEARCH_LLM_BASE_URL", "LYZR_API_BASE")
	_ = v.BindEnv("llm.api_key", "PROSEARCH_LLM_API_KEY", "LYZR_API_KEY")
	_ = v.BindEnv("llm.agents.rephrase", "PROSEARCH_LLM_AGENTS_REPHRASE", "LYZR_QUERY_REPHRASE_AGENT_ID")
	_ = v.BindEnv("llm.agents.planning", "PROSEARCH_LLM_AGENTS_PLANNING", "LYZR_QUERY_PLANNING_AGENT_ID")
	_ = v.BindEnv("llm.agents.search_query", "PROSEARCH_LLM_AGENTS_SEARCH_QUERY", "LYZR_SEARCH_QUERY_AGENT_ID")
	_ = v.BindEnv("llm.agents.answer", "PROSEARCH_LLM_AGENTS_ANSWER", "LYZR_ANSWER_GENERATION_AGENT_ID")
	_ = v.BindEnv("llm.agents.related", "PROSEARCH_LLM_AGENTS_RELATED", "LYZR_RELATED_QUESTIONS_AGENT_ID")
	_ = v.BindEnv("pro_mode.enabled", "PROSEARCH_PRO_MODE_ENABLED", "PRO_MODE_ENABLED")

	return &Loader{v: v, path: path}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.heartbeat", 15*time.Second)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("logging.level", "info")
	v.SetDefault("search.searxng_url", "")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.max_results", 6)
	v.SetDefault("llm.base_url", "https://agent.api.lyzr.app")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.agents_file", "")
	for _, k := range llm.AllKinds {
		v.SetDefault("llm.agents."+k.String(), "")
	}
	v.SetDefault("pro_mode.enabled", true)
	v.SetDefault("pro_mode.buffer_plan_events", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("ratelimit.requests_per_minute", 60)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "prosearch")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// Path returns the config file location.
func (l *Loader) Path() string { return l.path }

// FileUsed reports whether the last Load found a config file.
func (l *Loader) FileUsed() bool { return l.fileUsed }

// Load reads and validates the configuration. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fileUsed = false
	if err := l.v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	} else {
		l.fileUsed = true
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.AgentsFile != "" {
		defs, err := llm.LoadAgentDefinitions(cfg.LLM.AgentsFile)
		if err != nil {
			return nil, err
		}
		applyAgentDefinitions(&cfg, defs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyAgentDefinitions fills agent ids that were not set directly.
func applyAgentDefinitions(cfg *Config, defs map[llm.Kind]string) {
	slots := map[llm.Kind]*string{
		llm.KindRephrase:    &cfg.LLM.Agents.Rephrase,
		llm.KindPlanning:    &cfg.LLM.Agents.Planning,
		llm.KindSearchQuery: &cfg.LLM.Agents.SearchQuery,
		llm.KindAnswer:      &cfg.LLM.Agents.Answer,
		llm.KindRelated:     &cfg.LLM.Agents.Related,
	}
	for kind, id := range defs {
		if slot := slots[kind]; slot != nil && *slot == "" {
			*slot = id
		}
	}
}
