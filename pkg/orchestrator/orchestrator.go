// Package orchestrator executes the agent graph for each user message:
// classification, pipeline selection, agent lifecycle, sub-agent and
// question routing, retries with model fallback, and event aggregation into
// the session stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/agent/agents"
	"github.com/orito-labs/orito/pkg/classifier"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/store"
	"github.com/orito-labs/orito/pkg/tools"
)

// ErrAgentLimitReached is emitted when the tier's concurrency limit blocks a
// spawn. Recoverable: pipelines degrade instead of failing the turn.
var ErrAgentLimitReached = errors.New("agent limit reached")

// Context is the per-conversation state an orchestrator operates on.
// Snapshot fields are immutable for the turn; the profile and history are
// updated as the conversation progresses.
type Context struct {
	ChatID    string
	SessionID string
	UserID    string
	Tier      config.Tier

	MessageHistory []models.ChatMessage
	SystemProfile  *models.SystemProfileData
	UserConfig     *models.UserPreferences

	// APIKey overrides the default LLM credentials for this conversation.
	APIKey string
}

// Orchestrator coordinates agents for one conversation. All shared maps are
// guarded by mu; agents run on their own goroutines but mutate orchestrator
// state only through the router methods.
type Orchestrator struct {
	cfg       *config.Config
	store     store.Store
	registry  *tools.Registry
	completer llm.Completer
	selector  *selector.Selector
	bus       *events.Bus
	logger    *slog.Logger

	octx Context

	mu               sync.Mutex
	activeAgents     map[string]agent.Runner
	pendingQuestions map[string]chan string
	pendingQuery     string
	profileChecking  bool
	prefsLoaded      bool
	currentTurn      *turn
}

// Options configure a new Orchestrator.
type Options struct {
	Config    *config.Config
	Store     store.Store
	Registry  *tools.Registry
	Completer llm.Completer
	Bus       *events.Bus
	Logger    *slog.Logger
	Context   Context
}

// New creates an orchestrator for one conversation.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:              opts.Config,
		store:            opts.Store,
		registry:         opts.Registry,
		completer:        opts.Completer,
		selector:         selector.New(opts.Config.Models),
		bus:              opts.Bus,
		logger:           logger.With("chat_id", opts.Context.ChatID, "session_id", opts.Context.SessionID),
		octx:             opts.Context,
		activeAgents:     make(map[string]agent.Runner),
		pendingQuestions: make(map[string]chan string),
	}
}

// turn accumulates per-turn results across pipeline stages.
type turn struct {
	mu          sync.Mutex
	metrics     []models.AgentMetric
	citations   []models.Citation
	commands    []models.PlannedCommand
	agentsCount int
	classified  classifier.Classification
}

func (t *turn) record(agentID, agentType string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = append(t.metrics, models.AgentMetric{
		AgentID:    agentID,
		AgentType:  agentType,
		TokensUsed: tokens,
	})
	t.agentsCount++
}

func (t *turn) totalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, m := range t.metrics {
		total += m.TokensUsed
	}
	return total
}

// Process handles one user message end to end and terminates the turn with
// a message:done event (or returns early when profile collection defers it).
func (o *Orchestrator) Process(ctx context.Context, userMessage string) error {
	start := time.Now()

	// Profile gate: a collection already in progress will re-invoke Process
	// through the deferred-query slot once the profile arrives.
	o.mu.Lock()
	if o.profileChecking {
		o.mu.Unlock()
		o.logger.Info("Profile collection in progress, deferring message")
		return nil
	}
	o.mu.Unlock()

	o.loadPreferences(ctx)
	o.audit(ctx, "process_started", map[string]any{"message_len": len(userMessage)})

	t := &turn{classified: classifier.Classify(userMessage)}
	o.mu.Lock()
	o.currentTurn = t
	o.mu.Unlock()
	o.logger.Info("Message classified",
		"intent", t.classified.Intent,
		"complexity", t.classified.Complexity)

	switch {
	case t.classified.Complexity == classifier.ComplexityDecline:
		o.emitChunk(config.DeclineMessage())
		o.finishTurn(ctx, t, start)
		return nil

	case t.classified.Intent == classifier.IntentSystemDiscovery:
		o.emitChunk("Thanks, I've noted your system details and will use them to tailor my answers.")
		o.applyDiscoveryOutput(ctx, userMessage)
		o.finishTurn(ctx, t, start)
		return nil
	}

	if classifier.NeedsSystemProfile(t.classified.Intent) && !o.hasProfile() {
		if o.collectProfile(ctx, userMessage, t) {
			return nil // deferred; Process re-runs once the profile lands
		}
		// Collection failed; continue without a profile.
	}

	// Pipeline errors surface only when graceful degradation is off; the
	// turn still terminates with message:done either way.
	var perr error
	switch t.classified.Complexity {
	case classifier.ComplexitySimple:
		perr = o.handleSimpleQuery(ctx, userMessage, t)
	case classifier.ComplexityModerate:
		perr = o.runModeratePipeline(ctx, userMessage, t)
	default:
		perr = o.runComplexPipeline(ctx, userMessage, t)
	}

	o.finishTurn(ctx, t, start)
	return perr
}

// degrades reports whether stage failures fall back to reduced answers
// instead of failing the turn.
func (o *Orchestrator) degrades() bool {
	return o.cfg.Orchestrator.EnableGracefulDegradation
}

// finishTurn emits message:done and the completion audit entry.
func (o *Orchestrator) finishTurn(ctx context.Context, t *turn, start time.Time) {
	t.mu.Lock()
	citations := t.citations
	commands := t.commands
	metrics := append([]models.AgentMetric(nil), t.metrics...)
	agentsCount := t.agentsCount
	t.mu.Unlock()

	if citations == nil {
		citations = []models.Citation{}
	}
	if commands == nil {
		commands = []models.PlannedCommand{}
	}

	o.bus.Publish(&events.MessageDone{
		Type:            events.TypeMessageDone,
		Citations:       citations,
		Commands:        commands,
		TotalTokensUsed: t.totalTokens(),
		AgentMetrics:    metrics,
		Timestamp:       events.Now(),
	})

	o.audit(ctx, "process_completed", map[string]any{
		"duration_ms":    time.Since(start).Milliseconds(),
		"intent":         string(t.classified.Intent),
		"complexity":     string(t.classified.Complexity),
		"agents_spawned": agentsCount,
	})
}

// handleSimpleQuery answers directly with one non-streaming completion,
// walking the model fallback chain on failure. With model selection disabled
// the configured default model is used and no chain is walked.
func (o *Orchestrator) handleSimpleQuery(ctx context.Context, userMessage string, t *turn) error {
	model := o.cfg.Orchestrator.DefaultModel
	if o.cfg.Orchestrator.EnableModelSelection {
		preferred := ""
		if o.octx.UserConfig != nil {
			preferred = o.octx.UserConfig.PreferredModel
		}
		sel := o.selector.Select(selector.TaskContext{
			Query:      userMessage,
			Urgency:    config.UrgencyFast,
			Complexity: "simple",
		}, preferred)
		model = sel.Model
	}

	messages := o.simpleQueryMessages(userMessage)
	attempted := make(map[string]bool)

	for {
		params := o.selector.OptimalParams(model)
		var result *llm.Result
		err := o.withRetry(ctx, "simple completion", func(ctx context.Context) error {
			var err error
			result, err = o.completer.Complete(ctx, messages, llm.Options{
				Model:       model,
				Temperature: params.Temperature,
				MaxTokens:   params.MaxTokens,
				APIKey:      o.octx.APIKey,
			})
			return err
		})
		if err == nil {
			if result.Usage != nil {
				t.record("", "direct", result.Usage.TotalTokens)
			}
			o.emitChunk(result.Content)
			return nil
		}

		attempted[model] = true
		next := ""
		ok := false
		if o.cfg.Orchestrator.EnableModelSelection {
			next, ok = o.selector.NextFallback(model, attempted)
		}
		if !ok {
			o.logger.Error("All models exhausted for simple query", "error", err)
			if !o.degrades() {
				return fmt.Errorf("simple query failed: %w", err)
			}
			o.emitChunk("I'm having trouble reaching my language models right now. Please try again in a moment.")
			return nil
		}
		o.logger.Warn("Model failed, falling back", "failed_model", model, "next_model", next, "error", err)
		model = next
	}
}

// simpleQueryMessages renders the direct-completion prompt: current date,
// profile, preferences, and up to 5 recent history turns.
func (o *Orchestrator) simpleQueryMessages(userMessage string) []llm.Message {
	var b strings.Builder
	b.WriteString("You are Orito, a friendly Linux-specialized assistant.\n")
	fmt.Fprintf(&b, "Current date: %s\n", time.Now().Format("2006-01-02"))
	if p := o.octx.SystemProfile; p != nil {
		fmt.Fprintf(&b, "User's system: %s %s, package manager %s, shell %s, desktop %s\n",
			p.Distro, p.Version, p.PackageManager, p.Shell, p.DesktopEnvironment)
	}
	if c := o.octx.UserConfig; c != nil {
		if c.ResponseStyle != "" {
			fmt.Fprintf(&b, "Preferred response style: %s\n", c.ResponseStyle)
		}
		if c.CustomInstructions != "" {
			fmt.Fprintf(&b, "User instructions: %s\n", c.CustomInstructions)
		}
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: b.String()}}

	history := o.octx.MessageHistory
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
}

// runModeratePipeline executes research → synthesizer. A research spawn
// failure degrades to the simple-query path.
func (o *Orchestrator) runModeratePipeline(ctx context.Context, userMessage string, t *turn) error {
	strategy := classifier.ResearchStrategy(userMessage, t.classified.Intent)

	research, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypeResearch,
		Task:      userMessage,
	}, userMessage, map[string]any{"strategy": string(strategy)})
	if err != nil {
		if !o.degrades() {
			return fmt.Errorf("research stage failed: %w", err)
		}
		o.logger.Warn("Research agent failed, falling back to direct answer", "error", err)
		return o.handleSimpleQuery(ctx, userMessage, t)
	}

	in := &agents.SynthesisInput{Query: userMessage}
	if rr, ok := research.(*agents.ResearchResult); ok {
		in.ResearchSummary = rr.Summary
		in.Citations = rr.Citations
		t.mu.Lock()
		t.citations = append(t.citations, rr.Citations...)
		t.mu.Unlock()
	}

	return o.synthesize(ctx, userMessage, t, in)
}

// runComplexPipeline executes research → planner → [validator] →
// synthesizer. A planner failure synthesizes from research only.
func (o *Orchestrator) runComplexPipeline(ctx context.Context, userMessage string, t *turn) error {
	strategy := classifier.ResearchStrategy(userMessage, t.classified.Intent)

	in := &agents.SynthesisInput{Query: userMessage}

	research, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypeResearch,
		Task:      userMessage,
	}, userMessage, map[string]any{"strategy": string(strategy)})
	if err != nil {
		if !o.degrades() {
			return fmt.Errorf("research stage failed: %w", err)
		}
		o.logger.Warn("Research agent failed, continuing without research", "error", err)
	} else if rr, ok := research.(*agents.ResearchResult); ok {
		in.ResearchSummary = rr.Summary
		in.Citations = rr.Citations
		t.mu.Lock()
		t.citations = append(t.citations, rr.Citations...)
		t.mu.Unlock()
	}

	plan, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypePlanner,
		Task:      userMessage,
	}, userMessage, map[string]any{
		"researchSummary": in.ResearchSummary,
		"citations":       in.Citations,
	})
	if err != nil {
		if !o.degrades() {
			return fmt.Errorf("planner stage failed: %w", err)
		}
		o.logger.Warn("Planner failed, synthesizing from research only", "error", err)
		return o.synthesize(ctx, userMessage, t, in)
	}

	if pr, ok := plan.(*agents.PlanResult); ok {
		in.Steps = pr.Steps
		in.Commands = pr.Commands
		in.Prerequisites = pr.Prerequisites
		in.Troubleshooting = pr.Troubleshooting
	}

	if len(in.Commands) > 0 {
		if err := o.validateCommands(ctx, userMessage, t, in); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.commands = append(t.commands, in.Commands...)
	t.mu.Unlock()

	return o.synthesize(ctx, userMessage, t, in)
}

// validateCommands runs the validator stage and folds its verdict into the
// synthesis input. A validator failure skips validation rather than failing
// the turn.
func (o *Orchestrator) validateCommands(ctx context.Context, userMessage string, t *turn, in *agents.SynthesisInput) error {
	detectedPM := ""
	if o.octx.SystemProfile != nil {
		detectedPM = o.octx.SystemProfile.PackageManager
	}

	verdict, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypeValidator,
		Task:      "Validate planned commands",
	}, userMessage, map[string]any{
		"commands":       in.Commands,
		"packageManager": detectedPM,
	})
	if err != nil {
		if !o.degrades() {
			return fmt.Errorf("validator stage failed: %w", err)
		}
		o.logger.Warn("Validator failed, skipping validation", "error", err)
		return nil
	}

	vr, ok := verdict.(*agents.ValidationResult)
	if !ok {
		return nil
	}
	in.Commands = vr.ValidatedCommands
	in.Blocked = vr.Blocked
	in.Warnings = vr.Warnings
	in.Suggestions = vr.Suggestions
	return nil
}

// synthesize runs the synthesizer stage. On failure the collected material
// is emitted directly so the turn still answers.
func (o *Orchestrator) synthesize(ctx context.Context, userMessage string, t *turn, in *agents.SynthesisInput) error {
	_, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypeSynthesizer,
		Task:      userMessage,
	}, userMessage, map[string]any{
		"synthesis":  in,
		"complexity": string(t.classified.Complexity),
	})
	if err != nil {
		if !o.degrades() {
			return fmt.Errorf("synthesizer stage failed: %w", err)
		}
		o.logger.Warn("Synthesizer failed, emitting fallback response", "error", err)
		if in.ResearchSummary != "" {
			o.emitChunk(in.ResearchSummary)
		}
		if guide := agents.BuildGuide(in); guide != "" {
			o.emitChunk("\n\n" + guide)
		}
		if in.ResearchSummary == "" && len(in.Steps) == 0 {
			o.emitChunk("I couldn't finish putting together a full answer. Please try again.")
		}
	}
	return nil
}

// withRetry retries fn with linear backoff per the orchestrator defaults.
func (o *Orchestrator) withRetry(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	maxRetries := o.cfg.Orchestrator.MaxRetries
	delay := o.cfg.Orchestrator.RetryDelay

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		o.logger.Warn("Operation failed",
			"label", label, "attempt", attempt+1, "error", lastErr)
		if attempt < maxRetries {
			select {
			case <-time.After(delay * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, maxRetries+1, lastErr)
}

func (o *Orchestrator) emitChunk(content string) {
	if content == "" {
		return
	}
	o.bus.Publish(&events.MessageChunk{
		Type:      events.TypeMessageChunk,
		Content:   content,
		Timestamp: events.Now(),
	})
}

func (o *Orchestrator) emitError(agentID string, err error) {
	o.bus.Publish(&events.Error{
		Type:      events.TypeError,
		AgentID:   agentID,
		Message:   err.Error(),
		Timestamp: events.Now(),
	})
}

func (o *Orchestrator) hasProfile() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.octx.SystemProfile != nil
}

// loadPreferences loads user preferences once per session.
func (o *Orchestrator) loadPreferences(ctx context.Context) {
	o.mu.Lock()
	loaded := o.prefsLoaded
	userID := o.octx.UserID
	o.mu.Unlock()
	if loaded || userID == "" || o.store == nil {
		return
	}

	prefs, err := o.store.FindPreferences(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("Failed to load user preferences", "error", err)
	}

	o.mu.Lock()
	o.prefsLoaded = true
	if prefs != nil {
		o.octx.UserConfig = prefs
	}
	o.mu.Unlock()
}
