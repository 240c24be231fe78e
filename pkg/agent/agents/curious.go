package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/profile"
)

// CuriousResult is produced by the curious agent.
type CuriousResult struct {
	// Commands are discovery commands for the client to run (command mode).
	Commands []string `json:"commands"`
	// Prompt is the friendly text accompanying the commands or questions.
	Prompt string `json:"prompt"`
	// Fields lists the profile fields the commands/questions cover.
	Fields []string `json:"fields"`
	// Profile is the collected profile (question mode only).
	Profile *models.SystemProfileData `json:"profile,omitempty"`
}

// discoveryCommands maps missing profile fields to shell commands whose
// output the client pastes back.
var discoveryCommands = map[profile.Field]string{
	profile.FieldDistro:             "cat /etc/os-release",
	profile.FieldVersion:            "cat /etc/os-release",
	profile.FieldPackageManager:     "which apt dnf pacman zypper 2>/dev/null",
	profile.FieldShell:              "echo $SHELL",
	profile.FieldDesktopEnvironment: "echo $XDG_CURRENT_DESKTOP",
}

var problemPattern = regexp.MustCompile(`(?i)\b(error|problem|issue|broken|fail|crash)\b`)

// Curious elicits the user's system profile, either by handing out
// discovery commands or by running the interactive question flow.
type Curious struct {
	base  *agent.Base
	store profile.Store
}

func (c *Curious) Base() *agent.Base { return c.base }

// Run executes profile collection. additionalData keys:
//   - "mode": "questions" to run the interactive flow (default: commands)
//   - "chatId": chat to persist the collected profile into
//   - "existingProfile": *models.SystemProfileData to confirm instead of recollect
func (c *Curious) Run(ctx context.Context, input string, additionalData map[string]any) (any, error) {
	c.base.StartMetrics()
	c.base.SetStatus(agent.StatusThinking)

	if c.base.Task != "" && problemPattern.MatchString(c.base.Task) {
		c.spawnBackgroundResearch(ctx)
	}

	mode, _ := additionalData["mode"].(string)

	var (
		result *CuriousResult
		err    error
	)
	if mode == "questions" {
		result, err = c.runQuestions(ctx, additionalData)
	} else {
		result = c.runCommands(additionalData)
	}
	if err != nil {
		c.base.EndMetrics(0)
		c.base.EmitError(err)
		return nil, err
	}

	c.base.EndMetrics(0)
	c.base.EmitResult(result.Prompt)
	return result, nil
}

// runCommands derives the missing profile fields and maps each to a
// discovery command, then emits a system:discovery event.
func (c *Curious) runCommands(additionalData map[string]any) *CuriousResult {
	existing, _ := additionalData["existingProfile"].(*models.SystemProfileData)

	missing := missingFields(existing)
	seen := make(map[string]bool)
	var commands []string
	var fields []string
	for _, f := range missing {
		fields = append(fields, string(f))
		cmd := discoveryCommands[f]
		if cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		commands = append(commands, cmd)
	}

	prompt := "To tailor my answers to your system, please run these commands and paste the output back:"
	if len(commands) == 0 {
		prompt = "Your system profile is already complete."
	}

	c.base.Publish(&events.SystemDiscovery{
		Type:      events.TypeSystemDiscovery,
		AgentID:   c.base.ID,
		Commands:  commands,
		Prompt:    prompt,
		Timestamp: events.Now(),
	})

	return &CuriousResult{Commands: commands, Prompt: prompt, Fields: fields}
}

// runQuestions drives the interactive profile collector and persists the
// result.
func (c *Curious) runQuestions(ctx context.Context, additionalData map[string]any) (*CuriousResult, error) {
	existing, _ := additionalData["existingProfile"].(*models.SystemProfileData)
	chatID, _ := additionalData["chatId"].(string)

	ask := func(ctx context.Context, q agent.Question) (string, error) {
		answers, err := c.base.AskQuestions(ctx, []agent.Question{q})
		if err != nil {
			return "", err
		}
		return answers[0], nil
	}

	collected, err := profile.EnsureProfile(ctx, existing, ask)
	if err != nil {
		return nil, err
	}

	if chatID != "" {
		if err := profile.Persist(ctx, c.store, chatID, collected); err != nil {
			// Persistence failures don't invalidate the collected profile.
			c.base.Logger().Warn("Failed to persist system profile", "chat_id", chatID, "error", err)
		}
	}

	return &CuriousResult{
		Prompt:  fmt.Sprintf("Thanks! I'll tailor my answers to %s with %s.", collected.Distro, collected.PackageManager),
		Fields:  []string{"distro", "version", "packageManager", "shell", "desktopEnvironment"},
		Profile: collected,
	}, nil
}

// spawnBackgroundResearch kicks off a research sub-agent when the task
// mentions a problem, so background reading is ready once the profile is
// collected. Failures are logged and ignored.
func (c *Curious) spawnBackgroundResearch(ctx context.Context) {
	if c.base.CanSpawnSubAgent() != nil {
		return
	}
	if _, err := c.base.SpawnSubAgent(ctx, TypeResearch, c.base.Task, c.base.Task, nil); err != nil {
		c.base.Logger().Warn("Background research failed", "error", err)
	}
}

// missingFields returns the profile fields still unknown, in question order.
func missingFields(p *models.SystemProfileData) []profile.Field {
	all := []profile.Field{
		profile.FieldDistro,
		profile.FieldVersion,
		profile.FieldPackageManager,
		profile.FieldShell,
		profile.FieldDesktopEnvironment,
	}
	if p == nil {
		return all
	}
	values := map[profile.Field]string{
		profile.FieldDistro:             p.Distro,
		profile.FieldVersion:            p.Version,
		profile.FieldPackageManager:     p.PackageManager,
		profile.FieldShell:              p.Shell,
		profile.FieldDesktopEnvironment: p.DesktopEnvironment,
	}
	var missing []profile.Field
	for _, f := range all {
		if v := values[f]; v == "" || strings.EqualFold(v, "unknown") {
			missing = append(missing, f)
		}
	}
	return missing
}
