package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/models"
)

// SynthesisInput carries everything the synthesizer folds into the final
// response. The orchestrator assembles it from the preceding pipeline stages.
type SynthesisInput struct {
	Query           string
	ResearchSummary string
	Steps           []string
	Commands        []models.PlannedCommand
	Citations       []models.Citation
	Warnings        []string
	Blocked         []models.BlockedCommand
	Suggestions     []string
	Prerequisites   []string
	Troubleshooting []string
}

// SynthesisMetadata describes the produced response.
type SynthesisMetadata struct {
	ResponseType string `json:"responseType"`
	Complexity   string `json:"complexity"`
	CommandCount int    `json:"commandCount"`
}

// SynthesisResult is produced by the synthesizer agent.
type SynthesisResult struct {
	Response   string            `json:"response"`
	Metadata   SynthesisMetadata `json:"metadata"`
	TokensUsed int               `json:"tokensUsed"`
}

var riskGlyphs = map[models.RiskLevel]string{
	models.RiskLow:    "🟢",
	models.RiskMedium: "🟡",
	models.RiskHigh:   "🔴",
}

// Synthesizer streams the final user-facing answer and appends the
// deterministic Interactive Guide section built from the pipeline outputs.
type Synthesizer struct {
	base     *agent.Base
	selector *selector.Selector
}

func (s *Synthesizer) Base() *agent.Base { return s.base }

// Run synthesizes the answer. additionalData keys:
//   - "synthesis": *SynthesisInput
//   - "complexity": the classified complexity (for metadata)
func (s *Synthesizer) Run(ctx context.Context, input string, additionalData map[string]any) (any, error) {
	s.base.StartMetrics()
	s.base.SetStatus(agent.StatusThinking)

	in, _ := additionalData["synthesis"].(*SynthesisInput)
	if in == nil {
		in = &SynthesisInput{Query: input}
	}
	complexity, _ := additionalData["complexity"].(string)
	if complexity == "" {
		complexity = "moderate"
	}

	sel := s.selector.Select(selector.TaskContext{
		Query:      in.Query,
		Urgency:    config.UrgencyBalanced,
		Complexity: complexity,
	}, "")
	params := s.selector.OptimalParams(sel.Model)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.base.SystemPrompt()},
		{Role: llm.RoleUser, Content: s.buildPrompt(in)},
	}

	content, tokens, err := s.stream(ctx, messages, llm.Options{
		Model:       sel.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		s.base.RecordFailure()
		s.base.EndMetrics(0)
		s.base.EmitError(err)
		return nil, err
	}
	s.base.RecordSuccess()
	s.base.AddTokens(tokens)

	guide := BuildGuide(in)
	if guide != "" {
		s.emitChunk("\n\n" + guide)
		content += "\n\n" + guide
	}

	responseType := "answer"
	if len(in.Commands) > 0 || len(in.Blocked) > 0 {
		responseType = "guide"
	}

	result := &SynthesisResult{
		Response: content,
		Metadata: SynthesisMetadata{
			ResponseType: responseType,
			Complexity:   complexity,
			CommandCount: len(in.Commands),
		},
		TokensUsed: tokens,
	}

	s.base.EndMetrics(tokens)
	s.base.EmitResult("Response synthesized")
	return result, nil
}

// stream delivers the completion via message:chunk events. On streaming
// failure it falls back to a non-streaming completion emitted as one chunk.
func (s *Synthesizer) stream(ctx context.Context, messages []llm.Message, opts llm.Options) (string, int, error) {
	res, err := s.base.StreamComplete(ctx, messages, opts, func(chunk string) {
		s.emitChunk(chunk)
	})
	if err == nil {
		return res.Content, usageTokens(res), nil
	}

	s.base.Logger().Warn("Streaming failed, falling back to non-streaming completion", "error", err)
	res, err = s.base.Complete(ctx, messages, opts)
	if err != nil {
		return "", 0, err
	}
	s.emitChunk(res.Content)
	return res.Content, usageTokens(res), nil
}

func (s *Synthesizer) emitChunk(content string) {
	if content == "" {
		return
	}
	s.base.Publish(&events.MessageChunk{
		Type:      events.TypeMessageChunk,
		Content:   content,
		Timestamp: events.Now(),
	})
}

func (s *Synthesizer) buildPrompt(in *SynthesisInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the user's question: %s\n", in.Query)
	if in.ResearchSummary != "" {
		b.WriteString("\nResearch findings:\n" + in.ResearchSummary + "\n")
	}
	if len(in.Steps) > 0 {
		b.WriteString("\nPlanned steps:\n")
		for i, step := range in.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	if len(in.Commands) > 0 {
		b.WriteString("\nValidated commands:\n")
		for _, cmd := range in.Commands {
			fmt.Fprintf(&b, "- %s (%s risk)\n", cmd.Command, cmd.Risk)
		}
	}
	b.WriteString("\nWrite a clear, friendly answer. Do not repeat the command list verbatim; a structured guide is appended separately.")
	return b.String()
}

// BuildGuide renders the deterministic Interactive Guide markdown from the
// pipeline outputs. Independent of any LLM output; empty when there is
// nothing to show.
func BuildGuide(in *SynthesisInput) string {
	if len(in.Steps) == 0 && len(in.Commands) == 0 && len(in.Blocked) == 0 &&
		len(in.Warnings) == 0 && len(in.Suggestions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Interactive Guide\n")

	b.WriteString("\n### Overview\n")
	fmt.Fprintf(&b, "%d steps, %d commands", len(in.Steps), len(in.Commands))
	if len(in.Blocked) > 0 {
		fmt.Fprintf(&b, ", %d blocked", len(in.Blocked))
	}
	b.WriteString("\n")

	writeList(&b, "Prerequisites", in.Prerequisites)

	if len(in.Steps) > 0 {
		b.WriteString("\n### Steps\n")
		for i, step := range in.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	if len(in.Commands) > 0 {
		b.WriteString("\n### Commands\n")
		for _, cmd := range in.Commands {
			glyph := riskGlyphs[cmd.Risk]
			if glyph == "" {
				glyph = riskGlyphs[models.RiskMedium]
			}
			fmt.Fprintf(&b, "%s `%s`", glyph, cmd.Command)
			if cmd.RiskExplanation != "" {
				fmt.Fprintf(&b, " - %s", cmd.RiskExplanation)
			}
			b.WriteString("\n")
		}

		b.WriteString("\n### Verification\n")
		for _, cmd := range in.Commands {
			if cmd.ExpectedOutput != "" {
				fmt.Fprintf(&b, "- `%s` should output: %s\n", cmd.Command, cmd.ExpectedOutput)
			}
		}
	}

	writeList(&b, "Warnings", in.Warnings)

	if len(in.Blocked) > 0 {
		b.WriteString("\n### Blocked Commands\n")
		for _, blocked := range in.Blocked {
			fmt.Fprintf(&b, "- `%s`: %s\n", blocked.Command, blocked.Reason)
		}
	}

	writeList(&b, "Suggestions", in.Suggestions)
	writeList(&b, "Troubleshooting", in.Troubleshooting)

	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, header string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n", header)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func usageTokens(res *llm.Result) int {
	if res == nil || res.Usage == nil {
		return 0
	}
	return res.Usage.TotalTokens
}
