package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/tools"
)

// toolSentinelPattern extracts a single tool invocation from assistant
// content: <tool>NAME</tool><params>JSON</params>.
var toolSentinelPattern = regexp.MustCompile(`(?s)<tool>\s*([\w\-.]+)\s*</tool>\s*<params>(.*?)</params>`)

// maxToolOutputEventLen bounds the output carried on agent:tool events.
const maxToolOutputEventLen = 500

// ToolLoopOptions tune one CallWithTools invocation.
type ToolLoopOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	MaxToolCalls int

	// OnToolResult is called after each successful tool execution with the
	// tool name and its raw result value. Used by agents that harvest
	// structured data (e.g. citations) out of the loop.
	OnToolResult func(name string, data any)
}

// ToolLoopResult is the outcome of a CallWithTools invocation.
type ToolLoopResult struct {
	Content    string
	TokensUsed int
	ToolCalls  int
	ModelUsed  string
}

// CallWithTools drives the LLM through iterative tool invocations. Each
// iteration requests one completion; if the reply contains a tool sentinel
// the tool is executed and two synthetic messages are appended (the raw
// assistant content, then a user turn carrying the tool result JSON). The
// loop ends at the first non-tool reply or after MaxToolCalls iterations;
// in the latter case the final content is whatever the last turn produced.
func (b *Base) CallWithTools(ctx context.Context, messages []llm.Message, opts ToolLoopOptions) (*ToolLoopResult, error) {
	maxCalls := opts.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = b.defaults.MaxToolCalls
	}
	if maxCalls <= 0 {
		maxCalls = 5
	}

	result := &ToolLoopResult{}
	conversation := append([]llm.Message(nil), messages...)

	for iteration := 0; iteration < maxCalls; iteration++ {
		completion, err := b.Complete(ctx, conversation, llm.Options{
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			HasTools:    true,
		})
		if err != nil {
			return nil, err
		}
		if completion.Usage != nil {
			result.TokensUsed += completion.Usage.TotalTokens
			b.AddTokens(completion.Usage.TotalTokens)
		}
		result.ModelUsed = completion.ModelUsed
		result.Content = completion.Content

		name, rawParams, found := extractToolCall(completion.Content)
		if !found {
			return result, nil
		}

		args := parseToolParams(rawParams)
		toolResult := b.runTool(ctx, name, args)
		result.ToolCalls++
		b.mu.Lock()
		b.metrics.ToolCalls++
		b.mu.Unlock()

		if toolResult.Err == nil && opts.OnToolResult != nil {
			opts.OnToolResult(name, toolResult.Data)
		}

		conversation = append(conversation,
			llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Tool result for %s: %s", name, toolResult.JSON())},
		)
	}

	return result, nil
}

// runTool executes one tool with permission checks and emits the
// running/done agent:tool event pair. Failures are captured in the Result.
func (b *Base) runTool(ctx context.Context, name string, args map[string]any) *tools.Result {
	input, _ := json.Marshal(args)
	b.publish(&events.AgentTool{
		Type:      events.TypeAgentTool,
		AgentID:   b.ID,
		Tool:      name,
		Input:     string(input),
		Status:    events.ToolStatusRunning,
		Timestamp: events.Now(),
	})

	toolResult := b.registry.Execute(ctx, name, args, b.Permissions())

	output := toolResult.JSON()
	if len(output) > maxToolOutputEventLen {
		output = output[:maxToolOutputEventLen] + "…"
	}
	b.publish(&events.AgentTool{
		Type:       events.TypeAgentTool,
		AgentID:    b.ID,
		Tool:       name,
		Status:     events.ToolStatusDone,
		Output:     output,
		DurationMs: toolResult.Duration.Milliseconds(),
		Timestamp:  events.Now(),
	})

	if toolResult.Err != nil {
		b.logger.Warn("Tool execution failed", "tool", name, "error", toolResult.Err)
	}
	return toolResult
}

// extractToolCall finds the first tool sentinel in the assistant content.
func extractToolCall(content string) (name, params string, found bool) {
	m := toolSentinelPattern.FindStringSubmatch(content)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// parseToolParams decodes the params JSON; on parse failure the whole body
// is treated as {query: <raw>} so the tool still gets something usable.
func parseToolParams(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"query": raw}
	}
	return args
}
