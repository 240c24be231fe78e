package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/tools"
)

// ValidationResult is produced by the validator agent. ValidatedCommands and
// Blocked are disjoint by command string.
type ValidationResult struct {
	ValidatedCommands []models.PlannedCommand `json:"validatedCommands"`
	Blocked           []models.BlockedCommand `json:"blocked"`
	Warnings          []string                `json:"warnings"`
	Suggestions       []string                `json:"suggestions"`
	TokensUsed        int                     `json:"tokensUsed"`
}

// packageManagerCommands maps command prefixes to the package manager they
// belong to, for mismatch detection against the detected profile.
var packageManagerCommands = map[string]string{
	"apt":     "apt",
	"apt-get": "apt",
	"dpkg":    "apt",
	"dnf":     "dnf",
	"yum":     "dnf",
	"rpm":     "dnf",
	"pacman":  "pacman",
	"yay":     "pacman",
	"zypper":  "zypper",
}

// Validator checks planned commands for safety and fit with the user's
// system. It is rule-driven over the validate_command tool; no LLM call is
// involved.
type Validator struct {
	base     *agent.Base
	registry *tools.Registry
}

func (v *Validator) Base() *agent.Base { return v.base }

// Run validates commands. additionalData keys:
//   - "commands": []models.PlannedCommand to validate
//   - "packageManager": the detected package manager, for mismatch warnings
func (v *Validator) Run(ctx context.Context, input string, additionalData map[string]any) (any, error) {
	v.base.StartMetrics()
	v.base.SetStatus(agent.StatusThinking)
	v.base.SetStatus(agent.StatusValidating)

	commands := plannedCommands(additionalData["commands"])
	detectedPM, _ := additionalData["packageManager"].(string)

	result := &ValidationResult{
		ValidatedCommands: []models.PlannedCommand{},
		Blocked:           []models.BlockedCommand{},
	}

	for _, cmd := range commands {
		blocked, reason := v.checkBlocked(ctx, cmd.Command)
		if blocked {
			result.Blocked = append(result.Blocked, models.BlockedCommand{
				Command: cmd.Command,
				Reason:  reason,
			})
			continue
		}

		if detectedPM != "" {
			if pm := commandPackageManager(cmd.Command); pm != "" && pm != detectedPM {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%q uses %s, but your system uses %s", cmd.Command, pm, detectedPM))
				result.Suggestions = append(result.Suggestions,
					fmt.Sprintf("Rewrite %q for %s", cmd.Command, detectedPM))
			}
		}

		if cmd.Risk != models.RiskLow && cmd.DryRunHint != "" {
			result.Suggestions = append(result.Suggestions,
				fmt.Sprintf("Test first with the dry-run form: %s", cmd.DryRunHint))
		}

		result.ValidatedCommands = append(result.ValidatedCommands, cmd)
	}

	v.base.RecordSuccess()
	v.base.EndMetrics(0)
	v.base.EmitResult(fmt.Sprintf("Validation complete: %d passed, %d blocked",
		len(result.ValidatedCommands), len(result.Blocked)))
	return result, nil
}

// checkBlocked runs the validate_command tool. A tool failure is treated as
// not blocked; validation must never invent blocks.
func (v *Validator) checkBlocked(ctx context.Context, command string) (bool, string) {
	res := v.registry.Execute(ctx, "validate_command",
		map[string]any{"command": command}, v.base.Permissions())
	if res.Err != nil {
		v.base.Logger().Warn("Command validation tool failed", "command", command, "error", res.Err)
		return false, ""
	}

	raw, err := json.Marshal(res.Data)
	if err != nil {
		return false, ""
	}
	var verdict struct {
		Blocked bool   `json:"blocked"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return false, ""
	}
	return verdict.Blocked, verdict.Reason
}

// commandPackageManager returns the package manager a command belongs to,
// skipping a leading sudo.
func commandPackageManager(command string) string {
	fields := strings.Fields(command)
	for _, f := range fields {
		if f == "sudo" || strings.HasPrefix(f, "-") {
			continue
		}
		return packageManagerCommands[f]
	}
	return ""
}

// plannedCommands accepts both the typed slice and a JSON-shaped []any.
func plannedCommands(v any) []models.PlannedCommand {
	if cmds, ok := v.([]models.PlannedCommand); ok {
		return cmds
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var cmds []models.PlannedCommand
	if err := json.Unmarshal(raw, &cmds); err != nil {
		return nil
	}
	return cmds
}
