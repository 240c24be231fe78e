package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Completer against any OpenAI-compatible endpoint.
// A per-request API key override (Options.APIKey) gets its own underlying
// client, cached for the life of the process.
type OpenAIClient struct {
	apiKey  string
	baseURL string

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIClient creates a client for the given credentials. baseURL may be
// empty to use the provider default.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		clients: make(map[string]*openai.Client),
	}
}

func (c *OpenAIClient) clientFor(opts Options) *openai.Client {
	key := c.apiKey
	if opts.APIKey != "" {
		key = opts.APIKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}
	cfg := openai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	c.clients[key] = client
	return client
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	resp, err := c.clientFor(opts).CreateChatCompletion(ctx, buildRequest(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return &Result{
		Content:   resp.Choices[0].Message.Content,
		ModelUsed: resp.Model,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, opts Options, onChunk ChunkFunc) (*Result, error) {
	req := buildRequest(messages, opts)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.clientFor(opts).CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	var usage *Usage
	modelUsed := opts.Model

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream receive failed: %w", err)
		}
		if chunk.Model != "" {
			modelUsed = chunk.Model
		}
		if chunk.Usage != nil {
			usage = &Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}

	return &Result{
		Content:   content.String(),
		ModelUsed: modelUsed,
		Usage:     usage,
	}, nil
}

func buildRequest(messages []Message, opts Options) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
}
