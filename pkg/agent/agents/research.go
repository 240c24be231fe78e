package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/classifier"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/models"
)

// MaxSubResearch caps how many follow-up research sub-agents one research
// run may spawn.
const MaxSubResearch = 2

// ResearchResult is produced by the research agent.
type ResearchResult struct {
	Citations   []models.Citation `json:"citations"`
	Summary     string            `json:"summary"`
	NeedsDeeper bool              `json:"needsDeeper"`
	TokensUsed  int               `json:"tokensUsed"`
}

// maxResultsByStrategy bounds search breadth per strategy.
var maxResultsByStrategy = map[classifier.Strategy]int{
	classifier.StrategyQuick:    3,
	classifier.StrategyAdaptive: 5,
	classifier.StrategyDeep:     8,
}

// Research gathers background information through the search tools and
// summarizes it with citations.
type Research struct {
	base     *agent.Base
	selector *selector.Selector
}

func (r *Research) Base() *agent.Base { return r.base }

// Run drives the tool-calling loop over the search tools. additionalData
// keys: "strategy" (quick/adaptive/deep, default adaptive).
func (r *Research) Run(ctx context.Context, input string, additionalData map[string]any) (any, error) {
	r.base.StartMetrics()
	r.base.SetStatus(agent.StatusThinking)

	strategy := classifier.StrategyAdaptive
	if s, ok := additionalData["strategy"].(string); ok && s != "" {
		strategy = classifier.Strategy(s)
	}
	maxResults, ok := maxResultsByStrategy[strategy]
	if !ok {
		maxResults = maxResultsByStrategy[classifier.StrategyAdaptive]
	}

	var citations []models.Citation
	collect := func(tool string, data any) {
		if tool != "web_search" && tool != "search_wikipedia" {
			return
		}
		citations = append(citations, extractCitations(data)...)
	}

	urgency := config.UrgencyBalanced
	if strategy == classifier.StrategyQuick {
		urgency = config.UrgencyFast
	} else if strategy == classifier.StrategyDeep {
		urgency = config.UrgencyThorough
	}
	sel := r.selector.Select(selector.TaskContext{
		Query:         input,
		RequiresTools: true,
		ToolCount:     2,
		Urgency:       urgency,
		Complexity:    "moderate",
	}, "")
	params := r.selector.OptimalParams(sel.Model)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: r.base.SystemPrompt()},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Research this topic (up to %d sources): %s", maxResults, input)},
	}

	loop, err := r.base.CallWithTools(ctx, messages, agent.ToolLoopOptions{
		Model:        sel.Model,
		Temperature:  params.Temperature,
		MaxTokens:    params.MaxTokens,
		OnToolResult: collect,
	})
	if err != nil {
		r.base.RecordFailure()
		r.base.EndMetrics(0)
		r.base.EmitError(err)
		return nil, err
	}
	r.base.RecordSuccess()

	if len(citations) > maxResults {
		citations = citations[:maxResults]
	}

	result := &ResearchResult{
		Citations:   citations,
		Summary:     loop.Content,
		NeedsDeeper: strategy == classifier.StrategyDeep && len(citations) < maxResults/2,
		TokensUsed:  loop.TokensUsed,
	}

	// Deep strategies may fan out one level of follow-up research when the
	// first pass came back thin.
	if result.NeedsDeeper && r.base.CanSpawnSubAgent() == nil {
		r.deepen(ctx, input, result)
	}

	r.base.EndMetrics(result.TokensUsed)
	r.base.EmitResult(fmt.Sprintf("Research complete: %d citations", len(result.Citations)))
	return result, nil
}

// deepen spawns up to MaxSubResearch follow-up research agents and merges
// their citations. Failures are non-fatal.
func (r *Research) deepen(ctx context.Context, input string, result *ResearchResult) {
	for i := 0; i < MaxSubResearch; i++ {
		if r.base.CanSpawnSubAgent() != nil {
			return
		}
		reply, err := r.base.SpawnSubAgent(ctx, TypeResearch,
			fmt.Sprintf("Find additional sources on: %s", input), input,
			map[string]any{"strategy": string(classifier.StrategyAdaptive)})
		if err != nil {
			r.base.Logger().Warn("Sub-research failed", "error", err)
			return
		}
		sub, ok := reply.Result.(*ResearchResult)
		if !ok {
			return
		}
		result.Citations = append(result.Citations, sub.Citations...)
		if sub.Summary != "" {
			result.Summary += "\n\n" + sub.Summary
		}
		if len(result.Citations) > 0 {
			result.NeedsDeeper = false
			return
		}
	}
}

// extractCitations converts a search tool result into citations. The data
// is round-tripped through JSON so both struct and map shapes work.
func extractCitations(data any) []models.Citation {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var resp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
			Source  string `json:"source"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	citations := make([]models.Citation, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		citations = append(citations, models.Citation{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
			Source:  r.Source,
		})
	}
	return citations
}
