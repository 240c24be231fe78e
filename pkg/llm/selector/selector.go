// Package selector maps task characteristics to a model choice with a
// fallback chain. The rules are ordered; the first match wins.
package selector

import (
	"regexp"

	"github.com/orito-labs/orito/pkg/config"
)

// longContextThreshold is the estimated context size (tokens) above which
// the long-context model is preferred.
const longContextThreshold = 128_000

// TaskContext describes the work a model is being selected for.
type TaskContext struct {
	Query                 string
	RequiresTools         bool
	ToolCount             int
	RequiresCoding        bool
	RequiresDeepReasoning bool
	RequiresLongContext   bool
	EstimatedContextSize  int
	Urgency               config.Urgency
	Complexity            string // simple, moderate, complex
}

// Selection is the outcome of model selection. FallbackChain begins with the
// selected model followed by the configured order, de-duplicated.
type Selection struct {
	Model            string
	Confidence       float64
	Reasoning        string
	FallbackChain    []string
	EstimatedLatency config.ModelLatency
}

// Params are per-model sampling defaults.
type Params struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// codingPattern detects coding-flavored queries when the caller did not set
// RequiresCoding explicitly.
var codingPattern = regexp.MustCompile(`(?i)\b(code|script|program|function|compile|debug|python|golang|rust|makefile|regex)\b`)

// Selector chooses models from a catalog.
type Selector struct {
	catalog config.ModelCatalog
}

// New creates a selector over the given catalog.
func New(catalog config.ModelCatalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select picks a model for the task. A non-empty preferred model always wins.
func (s *Selector) Select(tc TaskContext, preferred string) Selection {
	c := s.catalog

	pick := func(model, reasoning string, confidence float64) Selection {
		return Selection{
			Model:            model,
			Confidence:       confidence,
			Reasoning:        reasoning,
			FallbackChain:    s.chain(model),
			EstimatedLatency: s.latency(model),
		}
	}

	switch {
	case preferred != "":
		return pick(preferred, "user-preferred model", 1.0)

	case tc.RequiresDeepReasoning && tc.Urgency == config.UrgencyThorough:
		return pick(c.Reasoning, "deep reasoning with thorough urgency", 0.9)

	case tc.RequiresCoding || codingPattern.MatchString(tc.Query):
		return pick(c.Coding, "coding keywords present", 0.85)

	case tc.RequiresTools && tc.Urgency == config.UrgencyFast && tc.ToolCount > 0:
		return pick(c.Tool, "fast tool-driven task", 0.8)

	case tc.RequiresLongContext || tc.EstimatedContextSize > longContextThreshold:
		return pick(c.LongContext, "long context required", 0.85)

	case tc.Complexity == "complex" && tc.RequiresTools:
		return pick(c.Tool, "complex toolchain", 0.7)

	case tc.Complexity == "complex" || tc.Complexity == "moderate":
		return pick(c.Balanced, "general task of non-trivial complexity", 0.7)

	default:
		return pick(c.FastAgent, "default fast agent model", 0.6)
	}
}

// NextFallback returns the next model in the configured order that is not in
// attempted, or ("", false) when the chain is exhausted.
func (s *Selector) NextFallback(current string, attempted map[string]bool) (string, bool) {
	for _, model := range s.chain(current) {
		if model == current || attempted[model] {
			continue
		}
		return model, true
	}
	return "", false
}

// OptimalParams returns per-model sampling defaults, keyed by catalog role.
func (s *Selector) OptimalParams(model string) Params {
	c := s.catalog
	switch model {
	case c.Reasoning:
		return Params{Temperature: 0.6, TopP: 0.95, MaxTokens: 8192}
	case c.Coding:
		return Params{Temperature: 0.2, TopP: 0.9, MaxTokens: 4096}
	case c.Tool:
		return Params{Temperature: 0.1, TopP: 0.9, MaxTokens: 2048}
	case c.LongContext:
		return Params{Temperature: 0.5, TopP: 0.95, MaxTokens: 8192}
	case c.Balanced:
		return Params{Temperature: 0.7, TopP: 0.95, MaxTokens: 4096}
	default:
		return Params{Temperature: 0.7, TopP: 0.9, MaxTokens: 2048}
	}
}

// chain prepends model to the configured fallback order, de-duplicated.
func (s *Selector) chain(model string) []string {
	seen := map[string]bool{model: true}
	chain := []string{model}
	for _, m := range s.catalog.FallbackOrder {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		chain = append(chain, m)
	}
	return chain
}

func (s *Selector) latency(model string) config.ModelLatency {
	c := s.catalog
	switch model {
	case c.Reasoning, c.LongContext:
		return config.LatencySlow
	case c.Balanced, c.Coding:
		return config.LatencyMedium
	default:
		return config.LatencyFast
	}
}
