// Package llm defines the Completer capability, the abstraction every agent
// uses to talk to a language model, together with retry and caching
// decorators. The OpenAI-compatible HTTP implementation lives in openai.go.
package llm

import (
	"context"
	"fmt"
)

// Role values for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options control a single completion request.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int

	// SkipCache bypasses the completion cache for this request.
	SkipCache bool

	// APIKey overrides the default credentials for this request
	// (per-turn override from the orchestrator context).
	APIKey string

	// Stream tools are not bound natively; the tool-calling loop uses the
	// text sentinel contract. HasTools marks requests that are part of a
	// tool loop so the cache can skip them.
	HasTools bool
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is the outcome of a completion.
type Result struct {
	Content   string `json:"content"`
	ModelUsed string `json:"modelUsed"`
	Usage     *Usage `json:"usage,omitempty"`
}

// ChunkFunc receives partial content strings in generation order.
type ChunkFunc func(content string)

// Completer is the LLM capability used by agents and the orchestrator.
type Completer interface {
	// Complete sends a conversation and returns the full response.
	Complete(ctx context.Context, messages []Message, opts Options) (*Result, error)

	// Stream sends a conversation and delivers partial content via onChunk,
	// returning the same result shape as Complete.
	Stream(ctx context.Context, messages []Message, opts Options, onChunk ChunkFunc) (*Result, error)
}

// LLMError is returned after the retry policy is exhausted.
type LLMError struct {
	Attempts int
	LastErr  error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm request failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *LLMError) Unwrap() error { return e.LastErr }
