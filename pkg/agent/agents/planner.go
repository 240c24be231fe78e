package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/models"
)

// PlanResult is produced by the planner agent.
type PlanResult struct {
	Steps           []string                `json:"steps"`
	Commands        []models.PlannedCommand `json:"commands"`
	Prerequisites   []string                `json:"prerequisites"`
	Troubleshooting []string                `json:"troubleshooting"`
	TokensUsed      int                     `json:"tokensUsed"`
}

// fencedJSONPattern extracts a ```json fenced block from LLM output.
var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Planner turns research findings into an ordered plan with concrete,
// risk-annotated commands.
type Planner struct {
	base     *agent.Base
	selector *selector.Selector
}

func (p *Planner) Base() *agent.Base { return p.base }

// Run plans the task. additionalData keys:
//   - "researchSummary": background text from the research agent
//   - "citations": []models.Citation carried through to commands
func (p *Planner) Run(ctx context.Context, input string, additionalData map[string]any) (any, error) {
	p.base.StartMetrics()
	p.base.SetStatus(agent.StatusThinking)

	researchSummary, _ := additionalData["researchSummary"].(string)
	citations, _ := additionalData["citations"].([]models.Citation)

	sel := p.selector.Select(selector.TaskContext{
		Query:         input,
		RequiresTools: true,
		ToolCount:     2,
		Urgency:       config.UrgencyBalanced,
		Complexity:    "complex",
	}, "")
	params := p.selector.OptimalParams(sel.Model)

	userPrompt := fmt.Sprintf("Task: %s", input)
	if researchSummary != "" {
		userPrompt += "\n\nResearch findings:\n" + researchSummary
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: p.base.SystemPrompt()},
		{Role: llm.RoleUser, Content: userPrompt},
	}

	loop, err := p.base.CallWithTools(ctx, messages, agent.ToolLoopOptions{
		Model:       sel.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		p.base.RecordFailure()
		p.base.EndMetrics(0)
		p.base.EmitError(err)
		return nil, err
	}
	p.base.RecordSuccess()

	result := parsePlan(loop.Content)
	result.TokensUsed = loop.TokensUsed
	attachCitations(result.Commands, citations)

	// High-risk plans get a validation pass before leaving the planner,
	// when the definition allows a sub-agent.
	if hasHighRisk(result.Commands) && p.base.CanSpawnSubAgent() == nil {
		p.validate(ctx, input, result)
	}

	p.base.EndMetrics(result.TokensUsed)
	p.base.EmitResult(fmt.Sprintf("Plan ready: %d steps, %d commands", len(result.Steps), len(result.Commands)))
	return result, nil
}

// validate runs a validator sub-agent over the planned commands and folds
// the outcome back into the plan. Failures are non-fatal.
func (p *Planner) validate(ctx context.Context, input string, result *PlanResult) {
	reply, err := p.base.SpawnSubAgent(ctx, TypeValidator,
		"Validate planned commands", input,
		map[string]any{"commands": result.Commands})
	if err != nil {
		p.base.Logger().Warn("Plan validation failed", "error", err)
		return
	}
	validation, ok := reply.Result.(*ValidationResult)
	if !ok {
		return
	}
	result.Commands = validation.ValidatedCommands
	for _, blocked := range validation.Blocked {
		result.Troubleshooting = append(result.Troubleshooting,
			fmt.Sprintf("Removed unsafe command %q: %s", blocked.Command, blocked.Reason))
	}
}

// parsePlan decodes the planner's JSON output. The model is instructed to
// answer with a fenced JSON object; bare JSON is accepted as well. Unparsable
// output degrades to a plan whose only step is the raw text.
func parsePlan(content string) *PlanResult {
	result := &PlanResult{}

	raw := content
	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		raw = m[1]
	} else if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			raw = content[start : end+1]
		}
	}

	var parsed struct {
		Steps    []string `json:"steps"`
		Commands []struct {
			Command         string `json:"command"`
			PrivilegeLevel  string `json:"privilegeLevel"`
			Risk            string `json:"risk"`
			RiskExplanation string `json:"riskExplanation"`
			DryRunHint      string `json:"dryRunHint"`
			ExpectedOutput  string `json:"expectedOutput"`
		} `json:"commands"`
		Prerequisites   []string `json:"prerequisites"`
		Troubleshooting []string `json:"troubleshooting"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		result.Steps = []string{strings.TrimSpace(content)}
		return result
	}

	result.Steps = parsed.Steps
	result.Prerequisites = parsed.Prerequisites
	result.Troubleshooting = parsed.Troubleshooting
	for _, c := range parsed.Commands {
		if strings.TrimSpace(c.Command) == "" {
			continue
		}
		cmd := models.PlannedCommand{
			Command:         c.Command,
			PrivilegeLevel:  models.PrivilegeLevel(c.PrivilegeLevel),
			Risk:            models.RiskLevel(c.Risk),
			RiskExplanation: c.RiskExplanation,
			DryRunHint:      c.DryRunHint,
			ExpectedOutput:  c.ExpectedOutput,
		}
		if !cmd.PrivilegeLevel.IsValid() {
			cmd.PrivilegeLevel = models.PrivilegeUser
		}
		if !cmd.Risk.IsValid() {
			cmd.Risk = models.RiskMedium
		}
		result.Commands = append(result.Commands, cmd)
	}
	return result
}

func attachCitations(commands []models.PlannedCommand, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	urls := make([]string, 0, len(citations))
	for _, c := range citations {
		urls = append(urls, c.URL)
	}
	for i := range commands {
		if len(commands[i].Citations) == 0 {
			commands[i].Citations = urls
		}
	}
}

func hasHighRisk(commands []models.PlannedCommand) bool {
	for _, c := range commands {
		if c.Risk == models.RiskHigh {
			return true
		}
	}
	return false
}
