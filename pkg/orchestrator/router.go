package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orito-labs/orito/pkg/agent"
	"github.com/orito-labs/orito/pkg/agent/agents"
	"github.com/orito-labs/orito/pkg/models"
)

// agentDeps builds the dependency bundle for the agent factory.
func (o *Orchestrator) agentDeps() agents.Deps {
	return agents.Deps{
		Defaults:     o.cfg.Agent,
		Loader:       o.cfg.Definitions,
		Registry:     o.registry,
		Completer:    o.completer,
		Bus:          o.bus,
		Router:       o,
		Selector:     o.selector,
		Logger:       o.logger,
		ProfileStore: o.store,
		APIKey:       o.octx.APIKey,
	}
}

// promptVars renders the template context shared by all agents in a turn.
func (o *Orchestrator) promptVars(task string) map[string]string {
	vars := map[string]string{
		"task":        task,
		"tier":        string(o.octx.Tier),
		"currentDate": time.Now().Format("2006-01-02"),
	}
	if p := o.octx.SystemProfile; p != nil {
		vars["systemProfile"] = fmt.Sprintf("%s %s (pm: %s, shell: %s, desktop: %s)",
			p.Distro, p.Version, p.PackageManager, p.Shell, p.DesktopEnvironment)
	}
	if len(o.octx.MessageHistory) > 0 {
		last := o.octx.MessageHistory
		if len(last) > 5 {
			last = last[len(last)-5:]
		}
		var b strings.Builder
		for _, m := range last {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		vars["conversationContext"] = b.String()
	}
	return vars
}

// runAgent spawns one agent, runs it under the agent timeout, and records
// its metrics on the turn. The tier's concurrency limit is enforced here.
func (o *Orchestrator) runAgent(ctx context.Context, t *turn, spec agents.Spec, input string, additionalData map[string]any) (any, error) {
	limit := o.cfg.TierLimit(o.octx.Tier).MaxConcurrentAgents

	o.mu.Lock()
	if len(o.activeAgents) >= limit {
		o.mu.Unlock()
		err := fmt.Errorf("%w: %d active (tier %s)", ErrAgentLimitReached, limit, o.octx.Tier)
		o.emitError("", err)
		return nil, err
	}
	o.mu.Unlock()

	if spec.Vars == nil {
		spec.Vars = o.promptVars(spec.Task)
	}
	runner, err := agents.New(spec, o.agentDeps())
	if err != nil {
		o.emitError("", err)
		return nil, err
	}
	base := runner.Base()

	o.mu.Lock()
	o.activeAgents[base.ID] = runner
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.activeAgents, base.ID)
		o.mu.Unlock()
	}()

	base.EmitSpawn()

	if !base.CanExecute() {
		err := fmt.Errorf("agent %s: %w", spec.AgentType, agent.ErrCircuitOpen)
		base.EmitError(err)
		return nil, err
	}

	result, err := agent.ExecuteWithTimeout(ctx, o.cfg.Orchestrator.AgentTimeout,
		func(ctx context.Context) (any, error) {
			return runner.Run(ctx, input, additionalData)
		})

	if t != nil {
		t.record(base.ID, spec.AgentType, base.Metrics().TokensUsed)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RouteQuestion registers a pending question. The entry is cleared on
// resolve or after the question timeout; no zombie entries remain.
func (o *Orchestrator) RouteQuestion(_ context.Context, req *agent.QuestionRequest) error {
	o.mu.Lock()
	o.pendingQuestions[req.QuestionID] = req.Reply
	o.mu.Unlock()

	wait := o.cfg.Agent.QuestionWait
	if wait <= 0 {
		wait = 120 * time.Second
	}
	time.AfterFunc(wait+time.Second, func() {
		o.mu.Lock()
		delete(o.pendingQuestions, req.QuestionID)
		o.mu.Unlock()
	})
	return nil
}

// ResolveUserAnswer delivers a user's answer to the pending question.
// Returns false when the question is unknown or already resolved.
func (o *Orchestrator) ResolveUserAnswer(questionID, answer string) bool {
	o.mu.Lock()
	reply, ok := o.pendingQuestions[questionID]
	if ok {
		delete(o.pendingQuestions, questionID)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}
	reply <- answer
	return true
}

// RouteSubAgent verifies limits, constructs the sub-agent with depth
// parent+1, runs it asynchronously, and replies on the request channel.
func (o *Orchestrator) RouteSubAgent(ctx context.Context, req *agent.SubAgentRequest) error {
	depth := req.Depth + 1
	if depth > agent.MaxAgentDepth {
		return fmt.Errorf("%w: requested depth %d", agent.ErrDepthExceeded, depth)
	}

	go func() {
		o.mu.Lock()
		t := o.currentTurn
		o.mu.Unlock()

		result, err := o.runAgent(ctx, t, agents.Spec{
			AgentType: req.AgentType,
			Task:      req.Task,
			ParentID:  req.ParentID,
			Depth:     depth,
		}, req.Input, req.Extra)

		reply := agent.SubAgentReply{Result: result, Err: err}
		switch r := result.(type) {
		case *agents.ResearchResult:
			reply.TokensUsed = r.TokensUsed
		case *agents.PlanResult:
			reply.TokensUsed = r.TokensUsed
		case *agents.ValidationResult:
			reply.TokensUsed = r.TokensUsed
		case *agents.SynthesisResult:
			reply.TokensUsed = r.TokensUsed
		}
		select {
		case req.Reply <- reply:
		default:
			// Parent timed out and stopped listening; drop the reply.
		}
	}()
	return nil
}

// collectProfile runs the curious agent interactively and defers the
// original query. Returns true when the turn is deferred (collection ran
// and re-processing was triggered), false when collection failed and the
// caller should continue without a profile.
func (o *Orchestrator) collectProfile(ctx context.Context, userMessage string, t *turn) bool {
	o.mu.Lock()
	o.profileChecking = true
	o.pendingQuery = userMessage
	o.mu.Unlock()

	existing := o.octx.SystemProfile
	result, err := o.runAgent(ctx, t, agents.Spec{
		AgentType: agents.TypeCurious,
		Task:      userMessage,
	}, userMessage, map[string]any{
		"mode":            "questions",
		"chatId":          o.octx.ChatID,
		"existingProfile": existing,
	})

	o.mu.Lock()
	o.profileChecking = false
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("Profile collection failed, continuing without profile", "error", err)
		o.mu.Lock()
		o.pendingQuery = ""
		o.mu.Unlock()
		return false
	}

	if cr, ok := result.(*agents.CuriousResult); ok && cr.Profile != nil {
		o.setProfile(cr.Profile)
	}

	o.reprocessPending(ctx)
	return true
}

// UpdateSystemProfile applies a profile delivered by the client (system_info
// message), persists it, and re-invokes Process for a deferred query.
func (o *Orchestrator) UpdateSystemProfile(ctx context.Context, data *models.SystemProfileData) {
	o.setProfile(data)
	if o.store != nil && o.octx.ChatID != "" {
		if err := o.store.UpdateSystemProfile(ctx, o.octx.ChatID, data, data.Legacy()); err != nil {
			o.logger.Warn("Failed to persist system profile", "error", err)
		}
	}
	o.reprocessPending(ctx)
}

func (o *Orchestrator) setProfile(data *models.SystemProfileData) {
	o.mu.Lock()
	o.octx.SystemProfile = data
	o.mu.Unlock()
}

// reprocessPending re-invokes Process for the deferred query. The slot is
// cleared before the call to avoid recursion.
func (o *Orchestrator) reprocessPending(ctx context.Context) {
	o.mu.Lock()
	pending := o.pendingQuery
	o.pendingQuery = ""
	o.mu.Unlock()
	if pending == "" {
		return
	}
	if err := o.Process(ctx, pending); err != nil {
		o.logger.Error("Failed to re-process deferred query", "error", err)
	}
}

// applyDiscoveryOutput parses pasted discovery-command output (os-release
// variables, uname output) into profile fields and persists what it finds.
func (o *Orchestrator) applyDiscoveryOutput(ctx context.Context, raw string) {
	data := o.octx.SystemProfile
	if data == nil {
		data = &models.SystemProfileData{DetectedAt: time.Now().UTC()}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "NAME":
			if data.Distro == "" || data.Distro == "Unknown" {
				data.Distro = value
			}
		case "VERSION_ID":
			if data.Version == "" || data.Version == "Unknown" {
				data.Version = value
			}
		case "ID_LIKE":
			if data.PackageManager == "" || data.PackageManager == "Unknown" {
				switch {
				case strings.Contains(value, "debian"):
					data.PackageManager = "apt"
				case strings.Contains(value, "fedora"), strings.Contains(value, "rhel"):
					data.PackageManager = "dnf"
				case strings.Contains(value, "arch"):
					data.PackageManager = "pacman"
				case strings.Contains(value, "suse"):
					data.PackageManager = "zypper"
				}
			}
		}
	}

	o.UpdateSystemProfile(ctx, data)
}

// audit writes one signed audit entry. Failures never cascade into the turn.
func (o *Orchestrator) audit(ctx context.Context, action string, details map[string]any) {
	if o.store == nil {
		return
	}
	entry := &models.AuditEntry{
		ChatID:    o.octx.ChatID,
		SessionID: o.octx.SessionID,
		UserID:    o.octx.UserID,
		ActionID:  uuid.NewString(),
		Command:   action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	entry.Sign([]byte(o.cfg.AuditSecret))
	if err := o.store.AppendAudit(ctx, entry); err != nil {
		o.logger.Warn("Audit logging failed", "action", action, "error", err)
	}
}
