package agents

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/models"
)

// brokenStreamCompleter fails every Stream call but completes normally, to
// exercise the non-streaming fallback path.
type brokenStreamCompleter struct {
	mu        sync.Mutex
	content   string
	streams   int
	completes int
}

func (c *brokenStreamCompleter) Complete(_ context.Context, _ []llm.Message, _ llm.Options) (*llm.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completes++
	return &llm.Result{Content: c.content, Usage: &llm.Usage{TotalTokens: 9}}, nil
}

func (c *brokenStreamCompleter) Stream(_ context.Context, _ []llm.Message, _ llm.Options, _ llm.ChunkFunc) (*llm.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams++
	return nil, assert.AnError
}

func TestSynthesizerFallsBackToNonStreaming(t *testing.T) {
	completer := &brokenStreamCompleter{content: "Here is your guide."}
	deps, bus := newTestDeps(t, completer)

	runner, err := New(Spec{AgentType: TypeSynthesizer, Task: "Answer the user"}, deps)
	require.NoError(t, err)

	in := &SynthesisInput{
		Query:    "install htop",
		Commands: []models.PlannedCommand{{Command: "sudo apt install htop", Risk: models.RiskLow}},
	}
	out, err := runner.Run(context.Background(), "install htop", map[string]any{
		"synthesis":  in,
		"complexity": "moderate",
	})
	require.NoError(t, err)

	result := out.(*SynthesisResult)
	assert.Contains(t, result.Response, "Here is your guide.")
	assert.Contains(t, result.Response, "Interactive Guide")
	assert.Equal(t, "guide", result.Metadata.ResponseType)
	assert.Equal(t, 1, result.Metadata.CommandCount)
	assert.Equal(t, 9, result.TokensUsed)

	assert.GreaterOrEqual(t, completer.streams, 1)
	assert.Equal(t, 1, completer.completes)

	bus.Close()
	var chunks []string
	for e := range bus.Events() {
		if chunk, isChunk := e.(*events.MessageChunk); isChunk {
			chunks = append(chunks, chunk.Content)
		}
	}
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Here is your guide.", chunks[0], "the whole answer arrives as one chunk")
}

func TestBuildGuideLayout(t *testing.T) {
	in := &SynthesisInput{
		Steps: []string{"Update the package index", "Install htop"},
		Commands: []models.PlannedCommand{
			{Command: "sudo apt update", Risk: models.RiskLow, ExpectedOutput: "package lists refreshed"},
			{Command: "sudo apt install htop", Risk: models.RiskMedium, RiskExplanation: "installs new software"},
		},
		Blocked:       []models.BlockedCommand{{Command: "rm -rf /", Reason: "recursively deletes the filesystem root"}},
		Warnings:      []string{"the package index is a week old"},
		Prerequisites: []string{"sudo access"},
		Suggestions:   []string{"Test first with the dry-run form: apt install --dry-run htop"},
	}

	guide := BuildGuide(in)

	assert.True(t, strings.HasPrefix(guide, "## Interactive Guide"))
	assert.Contains(t, guide, "2 steps, 2 commands, 1 blocked")
	assert.Contains(t, guide, "### Prerequisites\n- sudo access")
	assert.Contains(t, guide, "1. Update the package index")
	assert.Contains(t, guide, "2. Install htop")
	assert.Contains(t, guide, "🟢 `sudo apt update`")
	assert.Contains(t, guide, "🟡 `sudo apt install htop` - installs new software")
	assert.Contains(t, guide, "- `sudo apt update` should output: package lists refreshed")
	assert.Contains(t, guide, "### Warnings\n- the package index is a week old")
	assert.Contains(t, guide, "### Blocked Commands\n- `rm -rf /`: recursively deletes the filesystem root")
	assert.Contains(t, guide, "### Suggestions")

	// Section order is fixed.
	assert.Less(t, strings.Index(guide, "### Steps"), strings.Index(guide, "### Commands"))
	assert.Less(t, strings.Index(guide, "### Commands"), strings.Index(guide, "### Blocked Commands"))
}

func TestBuildGuideUnknownRiskGetsMediumGlyph(t *testing.T) {
	guide := BuildGuide(&SynthesisInput{
		Commands: []models.PlannedCommand{{Command: "frobnicate", Risk: "unknown"}},
	})
	assert.Contains(t, guide, "🟡 `frobnicate`")
}

func TestBuildGuideEmptyInput(t *testing.T) {
	assert.Empty(t, BuildGuide(&SynthesisInput{Query: "what is systemd?"}))
}
