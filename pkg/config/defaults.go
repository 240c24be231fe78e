package config

import (
	"os"
	"strconv"
	"time"
)

// CircuitBreakerDefaults configures per-agent circuit breakers.
type CircuitBreakerDefaults struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// AgentDefaults are the baseline execution settings for every agent.
type AgentDefaults struct {
	Timeout        time.Duration          `yaml:"timeout"`
	MaxRetries     int                    `yaml:"max_retries"`
	RetryDelay     time.Duration          `yaml:"retry_delay"`
	MaxToolCalls   int                    `yaml:"max_tool_calls"`
	QuestionWait   time.Duration          `yaml:"question_wait"`
	SubAgentWait   time.Duration          `yaml:"sub_agent_wait"`
	CircuitBreaker CircuitBreakerDefaults `yaml:"circuit_breaker"`
}

// OrchestratorDefaults are the baseline settings for the orchestrator.
type OrchestratorDefaults struct {
	MaxRetries                int           `yaml:"max_retries"`
	RetryDelay                time.Duration `yaml:"retry_delay"`
	AgentTimeout              time.Duration `yaml:"agent_timeout"`
	EnableGracefulDegradation bool          `yaml:"enable_graceful_degradation"`
	EnableModelSelection      bool          `yaml:"enable_model_selection"`
	DefaultModel              string        `yaml:"default_model"`
}

// TierLimit bounds resource usage for one tier.
type TierLimit struct {
	MaxConcurrentAgents int `yaml:"max_concurrent_agents"`
}

// CacheConfig bounds the process-wide caches.
type CacheConfig struct {
	MaxSize       int           `yaml:"max_size"`
	CompletionTTL time.Duration `yaml:"completion_ttl"`
	SearchTTL     time.Duration `yaml:"search_ttl"`
}

// SearchConfig selects the web search provider. Backup is used when the
// primary provider fails.
type SearchConfig struct {
	Provider   string        `yaml:"provider"`
	SearxngURL string        `yaml:"searxng_url"`
	Backup     string        `yaml:"backup"`
	MaxResults int           `yaml:"max_results"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultSearchConfig returns the built-in search settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Provider:   "searxng",
		Backup:     "duckduckgo",
		MaxResults: 5,
		CacheTTL:   5 * time.Minute,
		Timeout:    30 * time.Second,
	}
}

// LLMConfig holds default LLM credentials and endpoint. A per-turn API key
// on the orchestrator context overrides APIKey.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DefaultAgentDefaults returns the built-in agent defaults.
func DefaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		MaxToolCalls: 5,
		QuestionWait: 120 * time.Second,
		SubAgentWait: 120 * time.Second,
		CircuitBreaker: CircuitBreakerDefaults{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
	}
}

// DefaultOrchestratorDefaults returns the built-in orchestrator defaults.
func DefaultOrchestratorDefaults() OrchestratorDefaults {
	return OrchestratorDefaults{
		MaxRetries:                2,
		RetryDelay:                time.Second,
		AgentTimeout:              120 * time.Second,
		EnableGracefulDegradation: true,
		EnableModelSelection:      true,
	}
}

// DefaultTierLimits returns the built-in tier table.
func DefaultTierLimits() map[Tier]TierLimit {
	return map[Tier]TierLimit{
		TierFree: {MaxConcurrentAgents: 3},
		TierPro:  {MaxConcurrentAgents: 8},
	}
}

// DefaultCacheConfig returns the built-in cache bounds.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize:       1000,
		CompletionTTL: 5 * time.Minute,
		SearchTTL:     5 * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
