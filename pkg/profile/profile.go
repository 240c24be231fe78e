// Package profile implements the interactive system-profile collection
// protocol: a fixed ordered question set, answer normalization, and the
// confirmation flow for previously stored profiles.
package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/models"
)

const (
	answerDontKnow   = "I don't know"
	answerAutoDetect = "Auto-detect"
	valueUnknown     = "Unknown"
)

// Field identifies one profile question.
type Field string

const (
	FieldDistro             Field = "distro"
	FieldVersion            Field = "version"
	FieldPackageManager     Field = "packageManager"
	FieldShell              Field = "shell"
	FieldDesktopEnvironment Field = "desktopEnvironment"
)

// questionSpec binds a field to its interactive question.
type questionSpec struct {
	Field    Field
	Question agent.Question
}

// AskFunc asks the user one question and returns the selected answer.
// Implemented on top of Base.AskQuestions by the curious agent.
type AskFunc func(ctx context.Context, q agent.Question) (string, error)

// Store persists collected profiles. Implemented by the chat store; defined
// here to keep the collector free of persistence concerns.
type Store interface {
	UpdateSystemProfile(ctx context.Context, chatID string, data *models.SystemProfileData, legacy *models.SystemProfile) error
}

// Questions returns the fixed ordered question set. The order is part of
// the protocol: distro, version, packageManager, shell, desktopEnvironment.
func Questions() []agent.Question {
	specs := questionSpecs()
	qs := make([]agent.Question, len(specs))
	for i, s := range specs {
		qs[i] = s.Question
	}
	return qs
}

func questionSpecs() []questionSpec {
	return []questionSpec{
		{
			Field: FieldDistro,
			Question: agent.Question{
				Question: "Which Linux distribution are you running?",
				Header:   "System setup",
				Purpose:  "Tailor commands to your distribution",
				Options: options(
					"Ubuntu", "Debian", "Linux Mint", "Pop!_OS",
					"Fedora", "CentOS", "RHEL",
					"Arch Linux", "Manjaro", "openSUSE",
					answerDontKnow,
				),
				AllowCustom: true,
			},
		},
		{
			Field: FieldVersion,
			Question: agent.Question{
				Question:    "Which version of your distribution?",
				Header:      "System setup",
				Purpose:     "Some packages differ between releases",
				Options:     options(answerDontKnow),
				AllowCustom: true,
			},
		},
		{
			Field: FieldPackageManager,
			Question: agent.Question{
				Question: "Which package manager do you use?",
				Header:   "System setup",
				Purpose:  "Generate install commands you can run directly",
				Options: options(
					"apt", "dnf", "pacman", "zypper",
					answerAutoDetect, answerDontKnow,
				),
			},
		},
		{
			Field: FieldShell,
			Question: agent.Question{
				Question: "Which shell do you use?",
				Header:   "System setup",
				Purpose:  "Match syntax for shell snippets",
				Options: options(
					"bash", "zsh", "fish",
					answerAutoDetect, answerDontKnow,
				),
			},
		},
		{
			Field: FieldDesktopEnvironment,
			Question: agent.Question{
				Question: "Which desktop environment do you use?",
				Header:   "System setup",
				Purpose:  "Desktop-specific settings and tools",
				Options: options(
					"GNOME", "KDE Plasma", "XFCE", "Cinnamon",
					"i3 / Sway", "None (server)",
					answerDontKnow,
				),
			},
		},
	}
}

func options(labels ...string) []events.QuestionOption {
	opts := make([]events.QuestionOption, len(labels))
	for i, l := range labels {
		opts[i] = events.QuestionOption{Label: l}
	}
	return opts
}

// packageManagerByDistro resolves Auto-detect package managers.
var packageManagerByDistro = map[string]string{
	"Ubuntu":     "apt",
	"Debian":     "apt",
	"Linux Mint": "apt",
	"Pop!_OS":    "apt",
	"Fedora":     "dnf",
	"CentOS":     "dnf",
	"RHEL":       "dnf",
	"Arch Linux": "pacman",
	"Manjaro":    "pacman",
	"openSUSE":   "zypper",
}

// Normalize converts raw answers (keyed by Field) into a profile:
// Auto-detect package managers derive from the distro, Auto-detect shells
// become bash, and "I don't know" becomes "Unknown".
func Normalize(answers map[Field]string) *models.SystemProfileData {
	get := func(f Field) string {
		v := answers[f]
		if v == "" || v == answerDontKnow {
			return valueUnknown
		}
		return v
	}

	data := &models.SystemProfileData{
		Distro:             get(FieldDistro),
		Version:            get(FieldVersion),
		PackageManager:     get(FieldPackageManager),
		Shell:              get(FieldShell),
		DesktopEnvironment: get(FieldDesktopEnvironment),
		DetectedAt:         time.Now().UTC(),
	}

	if data.PackageManager == answerAutoDetect {
		if pm, ok := packageManagerByDistro[data.Distro]; ok {
			data.PackageManager = pm
		} else {
			data.PackageManager = "apt"
		}
	}
	if data.Shell == answerAutoDetect {
		data.Shell = "bash"
	}
	return data
}

// Collect runs the full question set in order and normalizes the answers.
func Collect(ctx context.Context, ask AskFunc) (*models.SystemProfileData, error) {
	answers := make(map[Field]string, 5)
	for _, spec := range questionSpecs() {
		answer, err := ask(ctx, spec.Question)
		if err != nil {
			return nil, fmt.Errorf("profile collection failed at %s: %w", spec.Field, err)
		}
		answers[spec.Field] = answer
	}
	return Normalize(answers), nil
}

// IsComplete reports whether a stored profile has all four required fields
// (distro, packageManager, shell, desktopEnvironment) with real values.
func IsComplete(p *models.SystemProfileData) bool {
	if p == nil {
		return false
	}
	for _, v := range []string{p.Distro, p.PackageManager, p.Shell, p.DesktopEnvironment} {
		if v == "" || v == valueUnknown || v == answerDontKnow || v == answerAutoDetect {
			return false
		}
	}
	return true
}

// EnsureProfile returns a usable profile for the chat. An existing complete
// profile triggers a single confirmation question; a confirmed profile is
// returned as-is, otherwise the full collection runs.
func EnsureProfile(ctx context.Context, existing *models.SystemProfileData, ask AskFunc) (*models.SystemProfileData, error) {
	if IsComplete(existing) {
		answer, err := ask(ctx, agent.Question{
			Question: fmt.Sprintf("You previously told me you run %s with %s. Is that still correct?",
				existing.Distro, existing.PackageManager),
			Header:  "System setup",
			Purpose: "Reuse your stored system profile",
			Options: options("Yes", "No, it changed"),
		})
		if err != nil {
			return nil, err
		}
		if answer == "Yes" {
			return existing, nil
		}
	}
	return Collect(ctx, ask)
}

// Persist stores the normalized profile and its legacy shape.
func Persist(ctx context.Context, store Store, chatID string, data *models.SystemProfileData) error {
	if store == nil {
		return nil
	}
	return store.UpdateSystemProfile(ctx, chatID, data, data.Legacy())
}
