package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/models"
)

func runValidator(t *testing.T, commands []models.PlannedCommand, detectedPM string) *ValidationResult {
	t.Helper()

	deps, _ := newTestDeps(t, nil)
	runner, err := New(Spec{AgentType: TypeValidator, Task: "Validate planned commands"}, deps)
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), "validate", map[string]any{
		"commands":       commands,
		"packageManager": detectedPM,
	})
	require.NoError(t, err)

	result, ok := out.(*ValidationResult)
	require.True(t, ok)
	return result
}

func TestValidatorBlocksDestructiveCommands(t *testing.T) {
	result := runValidator(t, []models.PlannedCommand{
		{Command: "rm -rf /", Risk: models.RiskLow},
		{Command: "mkfs.ext4 /dev/sda1", Risk: models.RiskLow},
		{Command: "sudo apt install docker.io", Risk: models.RiskLow},
	}, "apt")

	require.Len(t, result.Blocked, 2)
	assert.Equal(t, "rm -rf /", result.Blocked[0].Command)
	assert.NotEmpty(t, result.Blocked[0].Reason)
	assert.Equal(t, "mkfs.ext4 /dev/sda1", result.Blocked[1].Command)

	require.Len(t, result.ValidatedCommands, 1)
	assert.Equal(t, "sudo apt install docker.io", result.ValidatedCommands[0].Command)
}

func TestValidatorPassedAndBlockedAreDisjoint(t *testing.T) {
	result := runValidator(t, []models.PlannedCommand{
		{Command: "rm -rf /", Risk: models.RiskLow},
		{Command: "ls -la", Risk: models.RiskLow},
	}, "")

	passed := map[string]bool{}
	for _, cmd := range result.ValidatedCommands {
		passed[cmd.Command] = true
	}
	for _, blocked := range result.Blocked {
		assert.False(t, passed[blocked.Command], "%q appears in both lists", blocked.Command)
	}
}

func TestValidatorWarnsOnPackageManagerMismatch(t *testing.T) {
	result := runValidator(t, []models.PlannedCommand{
		{Command: "sudo apt install htop", Risk: models.RiskLow},
	}, "dnf")

	require.Len(t, result.ValidatedCommands, 1, "a mismatch warns, it does not block")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "apt")
	assert.Contains(t, result.Warnings[0], "dnf")
	require.Len(t, result.Suggestions, 1)
	assert.Contains(t, result.Suggestions[0], "dnf")
}

func TestValidatorAcceptsMatchingPackageManager(t *testing.T) {
	result := runValidator(t, []models.PlannedCommand{
		{Command: "sudo dnf install htop", Risk: models.RiskLow},
	}, "dnf")

	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Suggestions)
	require.Len(t, result.ValidatedCommands, 1)
}

func TestValidatorSuggestsDryRunForRiskyCommands(t *testing.T) {
	result := runValidator(t, []models.PlannedCommand{
		{Command: "sudo apt upgrade", Risk: models.RiskMedium, DryRunHint: "apt upgrade --dry-run"},
		{Command: "ls -la", Risk: models.RiskLow, DryRunHint: "ls -la"},
	}, "apt")

	require.Len(t, result.Suggestions, 1, "low-risk commands get no dry-run suggestion")
	assert.Contains(t, result.Suggestions[0], "apt upgrade --dry-run")
}

func TestValidatorAcceptsJSONShapedCommands(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	runner, err := New(Spec{AgentType: TypeValidator, Task: "Validate planned commands"}, deps)
	require.NoError(t, err)

	// Commands arriving through a serialization boundary come in as []any.
	out, err := runner.Run(context.Background(), "validate", map[string]any{
		"commands": []any{
			map[string]any{"command": "rm -rf /", "risk": "low"},
			map[string]any{"command": "uname -a", "risk": "low"},
		},
	})
	require.NoError(t, err)

	result := out.(*ValidationResult)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "rm -rf /", result.Blocked[0].Command)
	require.Len(t, result.ValidatedCommands, 1)
	assert.Equal(t, "uname -a", result.ValidatedCommands[0].Command)
}
