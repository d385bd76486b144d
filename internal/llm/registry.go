package llm

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/circuitbreaker"
	"go.uber.org/zap"
)

// Breaker names registered with the circuit breaker collector.
const (
	BreakerName       = "llm"
	StreamBreakerName = "llm-stream"
)

// Config describes how to reach the agent API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Agents  map[Kind]string
}

// AgentSet holds one Agent per capability for a single credential.
type AgentSet struct {
	apiKey string
	agents map[Kind]*Agent
}

// Agent returns the agent for kind. Unconfigured agents fail with ConfigurationError when used.
func (s *AgentSet) Agent(kind Kind) *Agent {
	return s.agents[kind]
}

// APIKey returns the credential the set was built for.
func (s *AgentSet) APIKey() string { return s.apiKey }

// Registry caches agent sets per credential. Entries are inserted once and never evicted.
type Registry struct {
	cfg    Config
	sets   sync.Map // api key -> *AgentSet
	http   *circuitbreaker.HTTPWrapper
	stream *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewRegistry validates cfg and prepares the shared transports.
func NewRegistry(cfg Config, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ConfigurationError{Field: "llm.base_url", Reason: "must be set"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Registry{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, BreakerName, "llm", logger),
		stream: circuitbreaker.NewHTTPWrapper(&http.Client{}, StreamBreakerName, "llm", logger),
		logger: logger,
	}, nil
}

// Get returns the agent set for the credential in use, building it on first use. A
// configured server key takes precedence over the caller's key; only without one does
// apiKey select the set.
func (r *Registry) Get(apiKey string) *AgentSet {
	if r.cfg.APIKey != "" {
		apiKey = r.cfg.APIKey
	}
	if set, ok := r.sets.Load(apiKey); ok {
		return set.(*AgentSet)
	}
	set, loaded := r.sets.LoadOrStore(apiKey, r.build(apiKey))
	if !loaded {
		r.logger.Debug("Created agent set", zap.Int("agents", len(AllKinds)))
	}
	return set.(*AgentSet)
}

// Len reports the number of cached credentials.
func (r *Registry) Len() int {
	n := 0
	r.sets.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (r *Registry) build(apiKey string) *AgentSet {
	set := &AgentSet{apiKey: apiKey, agents: make(map[Kind]*Agent, len(AllKinds))}
	for _, kind := range AllKinds {
		set.agents[kind] = &Agent{
			kind:    kind,
			agentID: r.cfg.Agents[kind],
			baseURL: r.cfg.BaseURL,
			apiKey:  apiKey,
			http:    r.http,
			stream:  r.stream,
			logger:  r.logger.With(zap.String("agent_kind", kind.String())),
		}
	}
	return set
}
