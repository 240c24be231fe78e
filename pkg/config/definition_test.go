package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `---
name: Helper
description: A helper agent
mode: autonomous
color: blue
tools:
  allowed:
    - web_search
    - "calc_*"
max_sub_agents: 2
---

You are a helper. Your task: {{task}}
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(validDefinition))
	require.NoError(t, err)
	assert.Equal(t, "Helper", def.Name)
	assert.Equal(t, AgentModeAutonomous, def.Mode)
	assert.Equal(t, []string{"web_search", "calc_*"}, def.Tools.Allowed)
	assert.Equal(t, 2, def.MaxSubAgents)
	assert.Equal(t, "You are a helper. Your task: {{task}}", def.SystemPrompt)
}

func TestParseDefinitionMissingFields(t *testing.T) {
	_, err := ParseDefinition([]byte("---\nname: X\n---\nbody\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
	assert.Contains(t, err.Error(), "description")
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "tools")
}

func TestParseDefinitionInvalidMode(t *testing.T) {
	doc := `---
name: X
description: d
mode: turbo
color: red
tools:
  allowed: ["*"]
---
body
`
	_, err := ParseDefinition([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestParseDefinitionNoFrontmatter(t *testing.T) {
	_, err := ParseDefinition([]byte("just a prompt, no fences"))
	assert.Error(t, err)

	_, err = ParseDefinition([]byte("---\nname: X\nnever closed"))
	assert.Error(t, err)
}

func TestLoaderEmbeddedDefinitions(t *testing.T) {
	l := NewDefinitionLoader("")

	for _, agentType := range []string{"research", "validator", "synthesizer", "curious", "planner"} {
		def, err := l.Load(agentType)
		require.NoError(t, err, agentType)
		assert.NotEmpty(t, def.SystemPrompt, agentType)
		assert.True(t, def.Mode.IsValid(), agentType)
	}

	_, err := l.Load("nonexistent")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	assert.Subset(t, l.Known(), []string{"research", "validator", "synthesizer", "curious", "planner"})
}

func TestLoaderDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	override := `---
name: Custom Research
description: overridden
mode: autonomous
color: green
tools:
  allowed: ["*"]
---
custom prompt
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "research.md"), []byte(override), 0o644))

	l := NewDefinitionLoader(dir)
	def, err := l.Load("research")
	require.NoError(t, err)
	assert.Equal(t, "Custom Research", def.Name)

	// Types without an override still come from the embedded set.
	def, err = l.Load("validator")
	require.NoError(t, err)
	assert.NotEqual(t, "Custom Research", def.Name)
}

func TestLoaderCachesParsedDefinitions(t *testing.T) {
	dir := t.TempDir()
	doc := `---
name: First
description: d
mode: autonomous
color: red
tools:
  allowed: ["*"]
---
p
`
	path := filepath.Join(dir, "custom.md")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	l := NewDefinitionLoader(dir)
	def, err := l.Load("custom")
	require.NoError(t, err)
	assert.Equal(t, "First", def.Name)

	// A file change after the first load is not observed.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	def, err = l.Load("custom")
	require.NoError(t, err)
	assert.Equal(t, "First", def.Name)
}

func TestDefinitionToolAllowances(t *testing.T) {
	l := NewDefinitionLoader("")

	research, err := l.Load("research")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"web_search", "search_wikipedia"}, research.Tools.Allowed)
	assert.Equal(t, 1, research.MaxSubAgents)

	synth, err := l.Load("synthesizer")
	require.NoError(t, err)
	assert.Empty(t, synth.Tools.Allowed)
	assert.Contains(t, synth.Tools.Restricted, "*")
}
