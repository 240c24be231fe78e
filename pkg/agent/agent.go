// Package agent provides the base agent runtime: lifecycle and status
// events, metrics, circuit breaking, timeout/retry helpers, the tool-calling
// loop, and the question/sub-agent request protocol. Specialized agents embed
// Base and implement only their tool registration and Run logic.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/tools"
)

// MaxAgentDepth bounds the sub-agent tree. Root agents run at depth 0.
const MaxAgentDepth = 2

// Sentinel errors for the agent runtime.
var (
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrDepthExceeded   = errors.New("max agent depth exceeded")
	ErrSubAgentLimit   = errors.New("sub-agent limit reached")
	ErrQuestionTimeout = errors.New("question timed out")
	ErrSubAgentTimeout = errors.New("sub-agent timed out")
	ErrNoRouter        = errors.New("no request router configured")
)

// Status is the agent lifecycle state.
type Status string

const (
	StatusSpawning   Status = "spawning"
	StatusThinking   Status = "thinking"
	StatusValidating Status = "validating"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Metrics records one agent run.
type Metrics struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TokensUsed int
	ToolCalls  int
}

// Runner is implemented by every specialized agent. Run returns the
// agent-specific result value; the runner emits exactly one terminal event
// (agent:result or error) per invocation via its Base.
type Runner interface {
	Run(ctx context.Context, input string, additionalData map[string]any) (any, error)
	Base() *Base
}

// Options configure a Base agent.
type Options struct {
	AgentType string
	Task      string
	ParentID  string
	Depth     int

	// Vars are substituted into the definition's system prompt template.
	Vars map[string]string

	Defaults  config.AgentDefaults
	Loader    *config.DefinitionLoader
	Registry  *tools.Registry
	Completer llm.Completer
	Bus       *events.Bus
	Router    Router
	Logger    *slog.Logger

	// APIKey is the per-turn credential override, if any.
	APIKey string
}

// Base holds the shared runtime state embedded by every specialized agent.
type Base struct {
	ID        string
	AgentType string
	Name      string
	Task      string
	ParentID  string
	Depth     int

	def          *config.Definition
	defaults     config.AgentDefaults
	systemPrompt string
	apiKey       string

	registry  *tools.Registry
	completer llm.Completer
	bus       *events.Bus
	router    Router
	logger    *slog.Logger
	breaker   *Breaker

	mu      sync.Mutex
	status  Status
	metrics Metrics
	spawned int
}

// New creates and initializes a Base agent: loads the definition, renders the
// system prompt, and emits nothing yet (EmitSpawn does that).
func New(opts Options) (*Base, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("agent %s: definition loader is required", opts.AgentType)
	}
	def, err := opts.Loader.Load(opts.AgentType)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	vars := opts.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	if _, ok := vars["task"]; !ok {
		vars["task"] = opts.Task
	}
	vars["agentName"] = def.Name
	vars["agentType"] = opts.AgentType
	if _, ok := vars["currentDate"]; !ok {
		vars["currentDate"] = time.Now().Format("2006-01-02")
	}

	b := &Base{
		ID:           uuid.NewString(),
		AgentType:    opts.AgentType,
		Name:         def.Name,
		Task:         opts.Task,
		ParentID:     opts.ParentID,
		Depth:        opts.Depth,
		def:          def,
		defaults:     opts.Defaults,
		systemPrompt: config.RenderTemplate(def.SystemPrompt, vars),
		apiKey:       opts.APIKey,
		registry:     opts.Registry,
		completer:    opts.Completer,
		bus:          opts.Bus,
		router:       opts.Router,
		logger:       logger.With("agent_id", "", "agent_type", opts.AgentType),
		breaker:      NewBreaker(opts.Defaults.CircuitBreaker),
		status:       StatusSpawning,
	}
	b.logger = logger.With("agent_id", b.ID, "agent_type", b.AgentType)
	return b, nil
}

// Definition returns the loaded agent definition.
func (b *Base) Definition() *config.Definition { return b.def }

// SystemPrompt returns the rendered system prompt.
func (b *Base) SystemPrompt() string { return b.systemPrompt }

// Defaults returns the runtime defaults this agent was built with.
func (b *Base) Defaults() config.AgentDefaults { return b.defaults }

// Logger returns the agent's structured logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Status returns the current lifecycle state.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SetStatus transitions the lifecycle state and emits an agent:status event.
func (b *Base) SetStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	b.publish(&events.AgentStatus{
		Type:      events.TypeAgentStatus,
		AgentID:   b.ID,
		Status:    string(s),
		Timestamp: events.Now(),
	})
}

// EmitSpawn announces the agent to the session.
func (b *Base) EmitSpawn() {
	b.publish(&events.AgentSpawn{
		Type:          events.TypeAgentSpawn,
		AgentID:       b.ID,
		Name:          b.Name,
		AgentType:     b.AgentType,
		Color:         b.def.Color,
		Task:          b.Task,
		ParentAgentID: b.ParentID,
		Depth:         b.Depth,
		Timestamp:     events.Now(),
	})
}

// EmitResult emits the terminal success event and moves to done.
func (b *Base) EmitResult(summary string) {
	b.publish(&events.AgentResult{
		Type:      events.TypeAgentResult,
		AgentID:   b.ID,
		Summary:   summary,
		Timestamp: events.Now(),
	})
	b.SetStatus(StatusDone)
}

// EmitError emits an error event and moves to error.
func (b *Base) EmitError(err error) {
	b.publish(&events.Error{
		Type:      events.TypeError,
		AgentID:   b.ID,
		Message:   err.Error(),
		Timestamp: events.Now(),
	})
	b.SetStatus(StatusError)
}

// StartMetrics marks the beginning of a run.
func (b *Base) StartMetrics() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.StartTime = time.Now()
}

// EndMetrics marks the end of a run and records final token usage.
func (b *Base) EndMetrics(tokensUsed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.EndTime = time.Now()
	b.metrics.Duration = b.metrics.EndTime.Sub(b.metrics.StartTime)
	if tokensUsed > b.metrics.TokensUsed {
		b.metrics.TokensUsed = tokensUsed
	}
}

// AddTokens accumulates token usage. Usage is monotonically non-decreasing.
func (b *Base) AddTokens(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TokensUsed += n
}

// Metrics returns a snapshot of the run metrics.
func (b *Base) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// CanExecute consults the circuit breaker before starting work.
func (b *Base) CanExecute() bool { return b.breaker.CanExecute() }

// RecordFailure feeds the circuit breaker.
func (b *Base) RecordFailure() { b.breaker.RecordFailure() }

// RecordSuccess feeds the circuit breaker.
func (b *Base) RecordSuccess() { b.breaker.RecordSuccess() }

// CanUseTool checks the definition's allowed/restricted patterns.
func (b *Base) CanUseTool(name string) bool {
	return b.Permissions().Allows(name)
}

// Permissions returns the tool permissions derived from the definition.
func (b *Base) Permissions() *tools.Permissions {
	return &tools.Permissions{
		Allowed:    b.def.Tools.Allowed,
		Restricted: b.def.Tools.Restricted,
	}
}

// Complete runs one non-streaming completion through the configured
// completer, applying the per-turn API key override.
func (b *Base) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	if b.apiKey != "" && opts.APIKey == "" {
		opts.APIKey = b.apiKey
	}
	return b.completer.Complete(ctx, messages, opts)
}

// StreamComplete runs one streaming completion.
func (b *Base) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options, onChunk llm.ChunkFunc) (*llm.Result, error) {
	if b.apiKey != "" && opts.APIKey == "" {
		opts.APIKey = b.apiKey
	}
	return b.completer.Stream(ctx, messages, opts, onChunk)
}

// Publish emits an arbitrary event on the agent's bus.
func (b *Base) Publish(ev events.Event) { b.publish(ev) }

func (b *Base) publish(ev events.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}
