// Package config provides configuration management for the Orito system:
// agent definitions, tier limits, model catalog, cache bounds, and the
// environment-driven defaults for agents and the orchestrator.
package config

import (
	"context"
	"embed"
	"log/slog"
	"strings"
)

//go:embed resources
var resources embed.FS

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	definitionsDir string

	Agent        AgentDefaults
	Orchestrator OrchestratorDefaults
	Cache        CacheConfig
	Search       SearchConfig
	LLM          LLMConfig
	Models       ModelCatalog
	TierLimits   map[Tier]TierLimit

	// Definitions loads and caches declarative agent definitions.
	Definitions *DefinitionLoader

	// AuditSecret signs audit log entries.
	AuditSecret string
}

// Initialize builds the configuration from the environment and the optional
// definitions directory (overrides for the embedded agent definitions).
func Initialize(ctx context.Context, definitionsDir string) (*Config, error) {
	cfg := &Config{
		definitionsDir: definitionsDir,
		Agent:          DefaultAgentDefaults(),
		Orchestrator:   DefaultOrchestratorDefaults(),
		Cache:          DefaultCacheConfig(),
		Models:         DefaultModelCatalog(),
		TierLimits:     DefaultTierLimits(),
		Definitions:    NewDefinitionLoader(definitionsDir),
	}

	cfg.Agent.Timeout = getEnvDuration("ORITO_AGENT_TIMEOUT", cfg.Agent.Timeout)
	cfg.Agent.MaxRetries = getEnvInt("ORITO_AGENT_MAX_RETRIES", cfg.Agent.MaxRetries)
	cfg.Agent.RetryDelay = getEnvDuration("ORITO_AGENT_RETRY_DELAY", cfg.Agent.RetryDelay)
	cfg.Agent.CircuitBreaker.FailureThreshold = getEnvInt(
		"ORITO_CB_FAILURE_THRESHOLD", cfg.Agent.CircuitBreaker.FailureThreshold)
	cfg.Agent.CircuitBreaker.ResetTimeout = getEnvDuration(
		"ORITO_CB_RESET_TIMEOUT", cfg.Agent.CircuitBreaker.ResetTimeout)

	cfg.Orchestrator.MaxRetries = getEnvInt("ORITO_ORCH_MAX_RETRIES", cfg.Orchestrator.MaxRetries)
	cfg.Orchestrator.RetryDelay = getEnvDuration("ORITO_ORCH_RETRY_DELAY", cfg.Orchestrator.RetryDelay)
	cfg.Orchestrator.AgentTimeout = getEnvDuration("ORITO_ORCH_AGENT_TIMEOUT", cfg.Orchestrator.AgentTimeout)
	cfg.Orchestrator.DefaultModel = getEnv("ORITO_DEFAULT_MODEL", cfg.Models.FastAgent)

	cfg.Cache.MaxSize = getEnvInt("ORITO_CACHE_MAX_SIZE", cfg.Cache.MaxSize)
	cfg.Cache.CompletionTTL = getEnvDuration("ORITO_CACHE_COMPLETION_TTL", cfg.Cache.CompletionTTL)
	cfg.Cache.SearchTTL = getEnvDuration("ORITO_CACHE_SEARCH_TTL", cfg.Cache.SearchTTL)

	cfg.Search = DefaultSearchConfig()
	cfg.Search.Provider = getEnv("ORITO_SEARCH_PROVIDER", cfg.Search.Provider)
	cfg.Search.SearxngURL = getEnv("ORITO_SEARXNG_URL", "")
	cfg.Search.Backup = getEnv("ORITO_SEARCH_BACKUP", cfg.Search.Backup)
	cfg.Search.MaxResults = getEnvInt("ORITO_SEARCH_MAX_RESULTS", cfg.Search.MaxResults)
	cfg.Search.CacheTTL = getEnvDuration("ORITO_CACHE_SEARCH_TTL", cfg.Search.CacheTTL)

	cfg.LLM = LLMConfig{
		APIKey:  getEnv("ORITO_LLM_API_KEY", ""),
		BaseURL: getEnv("ORITO_LLM_BASE_URL", ""),
	}

	cfg.AuditSecret = getEnv("ORITO_AUDIT_SECRET", "orito-dev-secret")

	if limit := getEnvInt("ORITO_TIER_FREE_MAX_AGENTS", 0); limit > 0 {
		cfg.TierLimits[TierFree] = TierLimit{MaxConcurrentAgents: limit}
	}
	if limit := getEnvInt("ORITO_TIER_PRO_MAX_AGENTS", 0); limit > 0 {
		cfg.TierLimits[TierPro] = TierLimit{MaxConcurrentAgents: limit}
	}

	slog.InfoContext(ctx, "Configuration initialized",
		"definitions_dir", definitionsDir,
		"known_agents", len(cfg.Definitions.Known()),
		"default_model", cfg.Orchestrator.DefaultModel)

	return cfg, nil
}

// TierLimit returns the limit for the given tier, falling back to the free
// tier for unknown values.
func (c *Config) TierLimit(tier Tier) TierLimit {
	if limit, ok := c.TierLimits[tier]; ok {
		return limit
	}
	return c.TierLimits[TierFree]
}

// DeclineMessage returns the verbatim text emitted for declined queries.
func DeclineMessage() string {
	data, err := resources.ReadFile("resources/decline.md")
	if err != nil {
		// The resource is embedded; this cannot happen in a built binary.
		return "I'm **Orito**, a Linux-specialized assistant."
	}
	return strings.TrimRight(string(data), "\n")
}
