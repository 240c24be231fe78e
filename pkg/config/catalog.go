package config

// ModelCatalog maps model roles to concrete model ids. The ids and the
// fallback order are configuration, not contract; each role is overridable
// via environment.
type ModelCatalog struct {
	Reasoning   string `yaml:"reasoning"`
	Coding      string `yaml:"coding"`
	Tool        string `yaml:"tool"`
	LongContext string `yaml:"long_context"`
	Balanced    string `yaml:"balanced"`
	FastAgent   string `yaml:"fast_agent"`

	// FallbackOrder is the configured try-order for model failures.
	// Selection results prepend the selected model and de-duplicate.
	FallbackOrder []string `yaml:"fallback_order"`
}

// DefaultModelCatalog returns the built-in catalog, with per-role
// environment overrides applied.
func DefaultModelCatalog() ModelCatalog {
	c := ModelCatalog{
		Reasoning:   getEnv("ORITO_MODEL_REASONING", "deepseek-r1"),
		Coding:      getEnv("ORITO_MODEL_CODING", "qwen2.5-coder-32b"),
		Tool:        getEnv("ORITO_MODEL_TOOL", "llama-3.1-8b-instant"),
		LongContext: getEnv("ORITO_MODEL_LONG_CONTEXT", "gemini-1.5-pro"),
		Balanced:    getEnv("ORITO_MODEL_BALANCED", "llama-3.3-70b-versatile"),
		FastAgent:   getEnv("ORITO_MODEL_FAST", "llama-3.1-8b-instant"),
	}
	c.FallbackOrder = []string{c.Balanced, c.FastAgent, c.Tool}
	return c
}

// All returns every distinct model id in the catalog.
func (c ModelCatalog) All() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range []string{c.Reasoning, c.Coding, c.Tool, c.LongContext, c.Balanced, c.FastAgent} {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
