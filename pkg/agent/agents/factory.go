// Package agents contains the specialized agent implementations (curious,
// research, planner, validator, synthesizer) and the static factory that
// constructs them by type. Each agent embeds the base runtime and implements
// only its own Run logic.
package agents

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/profile"
	"github.com/orito-labs/orito/pkg/tools"
)

// Agent type names as used in definitions and spawn requests.
const (
	TypeCurious     = "curious"
	TypeResearch    = "research"
	TypePlanner     = "planner"
	TypeValidator   = "validator"
	TypeSynthesizer = "synthesizer"
)

// ErrUnknownAgentType is returned for types without a registered constructor.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Deps bundles the shared dependencies injected into every agent.
type Deps struct {
	Defaults     config.AgentDefaults
	Loader       *config.DefinitionLoader
	Registry     *tools.Registry
	Completer    llm.Completer
	Bus          *events.Bus
	Router       agent.Router
	Selector     *selector.Selector
	Logger       *slog.Logger
	ProfileStore profile.Store
	APIKey       string
}

// Spec describes one agent instance to construct.
type Spec struct {
	AgentType string
	Task      string
	ParentID  string
	Depth     int
	Vars      map[string]string
}

// New constructs a specialized agent. The registry of constructors is
// static; there is no lazy loading.
func New(spec Spec, deps Deps) (agent.Runner, error) {
	base, err := agent.New(agent.Options{
		AgentType: spec.AgentType,
		Task:      spec.Task,
		ParentID:  spec.ParentID,
		Depth:     spec.Depth,
		Vars:      spec.Vars,
		Defaults:  deps.Defaults,
		Loader:    deps.Loader,
		Registry:  deps.Registry,
		Completer: deps.Completer,
		Bus:       deps.Bus,
		Router:    deps.Router,
		Logger:    deps.Logger,
		APIKey:    deps.APIKey,
	})
	if err != nil {
		return nil, err
	}

	switch spec.AgentType {
	case TypeCurious:
		return &Curious{base: base, store: deps.ProfileStore}, nil
	case TypeResearch:
		return &Research{base: base, selector: deps.Selector}, nil
	case TypePlanner:
		return &Planner{base: base, selector: deps.Selector}, nil
	case TypeValidator:
		return &Validator{base: base, registry: deps.Registry}, nil
	case TypeSynthesizer:
		return &Synthesizer{base: base, selector: deps.Selector}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, spec.AgentType)
	}
}
