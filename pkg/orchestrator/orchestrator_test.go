package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/store"
	"github.com/orito-labs/orito/pkg/tools"
)

// scriptedCall is one entry in a scripted completer run.
type scriptedCall struct {
	result *llm.Result
	err    error
}

// scriptedCompleter fails the test's turn visibly when the script runs dry:
// extra calls return an error instead of looping.
type scriptedCompleter struct {
	mu     sync.Mutex
	script []scriptedCall
	calls  []llm.Options
}

func (s *scriptedCompleter) Complete(_ context.Context, _ []llm.Message, opts llm.Options) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	i := len(s.calls) - 1
	if i >= len(s.script) {
		return nil, assert.AnError
	}
	return s.script[i].result, s.script[i].err
}

func (s *scriptedCompleter) Stream(ctx context.Context, messages []llm.Message, opts llm.Options, onChunk llm.ChunkFunc) (*llm.Result, error) {
	result, err := s.Complete(ctx, messages, opts)
	if err == nil && onChunk != nil {
		onChunk(result.Content)
	}
	return result, err
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func ok(content string, tokens int) scriptedCall {
	return scriptedCall{result: &llm.Result{Content: content, Usage: &llm.Usage{TotalTokens: tokens}}}
}

func fail() scriptedCall {
	return scriptedCall{err: assert.AnError}
}

func completeProfile() *models.SystemProfileData {
	return &models.SystemProfileData{
		Distro:             "Ubuntu",
		Version:            "24.04",
		PackageManager:     "apt",
		Shell:              "bash",
		DesktopEnvironment: "GNOME",
		DetectedAt:         time.Now().UTC(),
	}
}

type fixture struct {
	orch      *Orchestrator
	bus       *events.Bus
	store     *store.Memory
	completer *scriptedCompleter
	cfg       *config.Config
}

func newFixture(t *testing.T, script []scriptedCall, octx Context) *fixture {
	t.Helper()

	cfg, err := config.Initialize(context.Background(), "")
	require.NoError(t, err)
	cfg.Agent.RetryDelay = time.Millisecond
	cfg.Orchestrator.RetryDelay = time.Millisecond

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterDefaults(registry, t.TempDir()))
	require.NoError(t, tools.RegisterSearchSchemas(registry,
		func(_ context.Context, args map[string]any) (any, error) {
			results := make([]map[string]any, 4)
			for i := range results {
				results[i] = map[string]any{
					"title":   "Result",
					"url":     "https://example.com/doc" + string(rune('1'+i)),
					"snippet": "snippet",
					"source":  "web",
				}
			}
			return map[string]any{"results": results}, nil
		},
		func(context.Context, map[string]any) (any, error) {
			return map[string]any{"results": []map[string]any{}}, nil
		},
	))

	mem := store.NewMemory()
	require.NoError(t, mem.SaveChat(context.Background(), &models.Chat{ID: octx.ChatID, UserID: octx.UserID}))

	completer := &scriptedCompleter{script: script}
	bus := events.NewBus(8)

	orch := New(Options{
		Config:    cfg,
		Store:     mem,
		Registry:  registry,
		Completer: completer,
		Bus:       bus,
		Context:   octx,
	})
	return &fixture{orch: orch, bus: bus, store: mem, completer: completer, cfg: cfg}
}

// runTurn consumes the event stream while Process runs, answering agent
// questions through the supplied callback.
func (f *fixture) runTurn(t *testing.T, message string, answer func(*events.AgentQuestion)) []events.Event {
	t.Helper()

	var (
		mu        sync.Mutex
		collected []events.Event
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range f.bus.Events() {
			mu.Lock()
			collected = append(collected, e)
			mu.Unlock()
			if q, isQuestion := e.(*events.AgentQuestion); isQuestion && answer != nil {
				answer(q)
			}
		}
	}()

	require.NoError(t, f.orch.Process(context.Background(), message))
	f.bus.Close()
	<-done
	return collected
}

// runTurnFailing is runTurn for turns whose Process error is under test.
func (f *fixture) runTurnFailing(t *testing.T, message string) ([]events.Event, error) {
	t.Helper()

	var (
		mu        sync.Mutex
		collected []events.Event
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range f.bus.Events() {
			mu.Lock()
			collected = append(collected, e)
			mu.Unlock()
		}
	}()

	err := f.orch.Process(context.Background(), message)
	f.bus.Close()
	<-done
	return collected, err
}

func eventsOfType[T events.Event](evts []events.Event) []T {
	var out []T
	for _, e := range evts {
		if typed, isMatch := e.(T); isMatch {
			out = append(out, typed)
		}
	}
	return out
}

func messageDone(t *testing.T, evts []events.Event) *events.MessageDone {
	t.Helper()
	dones := eventsOfType[*events.MessageDone](evts)
	require.Len(t, dones, 1, "exactly one message:done per turn")
	return dones[0]
}

func chunkText(evts []events.Event) string {
	var b strings.Builder
	for _, c := range eventsOfType[*events.MessageChunk](evts) {
		b.WriteString(c.Content)
	}
	return b.String()
}

func TestProcessGreeting(t *testing.T) {
	f := newFixture(t, []scriptedCall{ok("Hi! How can I help with your Linux system today?", 12)},
		Context{ChatID: "chat-1", UserID: "user-1", Tier: config.TierFree})

	evts := f.runTurn(t, "hello there", nil)

	assert.Contains(t, chunkText(evts), "How can I help")
	done := messageDone(t, evts)
	assert.Equal(t, 12, done.TotalTokensUsed)
	assert.NotNil(t, done.Citations)
	assert.Empty(t, done.Citations)
	assert.NotNil(t, done.Commands)
	assert.Empty(t, done.Commands)
	assert.Empty(t, eventsOfType[*events.AgentSpawn](evts), "greetings never spawn agents")
	assert.Equal(t, 1, f.completer.callCount())
}

func TestProcessDecline(t *testing.T) {
	f := newFixture(t, nil, Context{ChatID: "chat-1", Tier: config.TierFree})

	evts := f.runTurn(t, "what's a good pasta recipe?", nil)

	text := chunkText(evts)
	assert.Contains(t, text, "Orito")
	assert.Equal(t, config.DeclineMessage(), text)
	messageDone(t, evts)
	assert.Empty(t, eventsOfType[*events.AgentSpawn](evts))
	assert.Zero(t, f.completer.callCount(), "declines never reach a model")
}

func TestProcessDiscoveryOutput(t *testing.T) {
	f := newFixture(t, nil, Context{ChatID: "chat-1", Tier: config.TierFree})

	paste := "NAME=\"Ubuntu\"\nVERSION_ID=\"24.04\"\nID_LIKE=\"debian\""
	evts := f.runTurn(t, paste, nil)

	assert.Contains(t, chunkText(evts), "noted your system details")
	messageDone(t, evts)

	chat, err := f.store.FindChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.NotNil(t, chat.Context.SystemProfile)
	assert.Equal(t, "Ubuntu", chat.Context.SystemProfile.Distro)
	assert.Equal(t, "24.04", chat.Context.SystemProfile.Version)
	assert.Equal(t, "apt", chat.Context.SystemProfile.PackageManager)
}

func TestProcessModeratePipeline(t *testing.T) {
	f := newFixture(t, []scriptedCall{
		ok(`<tool>web_search</tool><params>{"query": "systemd vs openrc"}</params>`, 15),
		ok("systemd and OpenRC differ mainly in service supervision.", 25),
		ok("Here is a comparison of the two init systems.", 30),
	}, Context{ChatID: "chat-1", Tier: config.TierFree})

	evts := f.runTurn(t, "how does systemd compare to openrc?", nil)

	spawns := eventsOfType[*events.AgentSpawn](evts)
	require.Len(t, spawns, 2)
	assert.Equal(t, "research", spawns[0].AgentType)
	assert.Equal(t, "synthesizer", spawns[1].AgentType)

	assert.Contains(t, chunkText(evts), "comparison of the two init systems")

	done := messageDone(t, evts)
	require.Len(t, done.Citations, 4)
	assert.Equal(t, "https://example.com/doc1", done.Citations[0].URL)
	assert.Equal(t, 70, done.TotalTokensUsed)
	require.Len(t, done.AgentMetrics, 2)
	assert.Equal(t, "research", done.AgentMetrics[0].AgentType)
}

func TestProcessComplexPipeline(t *testing.T) {
	planJSON := "```json\n" + `{
  "steps": ["Update the package index", "Install docker"],
  "commands": [
    {"command": "sudo apt install docker.io", "privilegeLevel": "root", "risk": "low"},
    {"command": "rm -rf /", "privilegeLevel": "root", "risk": "low"}
  ],
  "prerequisites": ["sudo access"]
}` + "\n```"

	f := newFixture(t, []scriptedCall{
		ok(`<tool>web_search</tool><params>{"query": "install docker ubuntu"}</params>`, 15),
		ok("Docker on Ubuntu installs from the docker.io package.", 10),
		ok(planJSON, 20),
		ok("Here's how to install Docker safely.", 30),
	}, Context{
		ChatID:        "chat-1",
		Tier:          config.TierPro,
		SystemProfile: completeProfile(),
	})

	evts := f.runTurn(t, "install docker on my machine", nil)

	spawns := eventsOfType[*events.AgentSpawn](evts)
	require.Len(t, spawns, 4)
	assert.Equal(t, "research", spawns[0].AgentType)
	assert.Equal(t, "planner", spawns[1].AgentType)
	assert.Equal(t, "validator", spawns[2].AgentType)
	assert.Equal(t, "synthesizer", spawns[3].AgentType)

	done := messageDone(t, evts)
	require.Len(t, done.Commands, 1, "the destructive command is blocked, not surfaced")
	assert.Equal(t, "sudo apt install docker.io", done.Commands[0].Command)

	// The deterministic guide carries the blocked command with its reason.
	text := chunkText(evts)
	assert.Contains(t, text, "Interactive Guide")
	assert.Contains(t, text, "Blocked Commands")
	assert.Contains(t, text, "rm -rf /")
}

func TestProcessTierLimitDegradesToDirectAnswer(t *testing.T) {
	f := newFixture(t, []scriptedCall{ok("Direct answer without research.", 8)},
		Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.TierLimits[config.TierFree] = config.TierLimit{MaxConcurrentAgents: 0}

	evts := f.runTurn(t, "how does journald rotation work?", nil)

	errs := eventsOfType[*events.Error](evts)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "agent limit reached")

	assert.Contains(t, chunkText(evts), "Direct answer without research")
	messageDone(t, evts)
}

func TestSimpleQueryWalksModelFallbackChain(t *testing.T) {
	f := newFixture(t, []scriptedCall{
		fail(),
		ok("Answer from the fallback model.", 5),
	}, Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.MaxRetries = 0

	evts := f.runTurn(t, "hi", nil)

	assert.Contains(t, chunkText(evts), "fallback model")
	require.Equal(t, 2, f.completer.callCount())
	assert.NotEqual(t, f.completer.calls[0].Model, f.completer.calls[1].Model,
		"the second attempt runs on the next model in the chain")
	messageDone(t, evts)
}

func TestSimpleQueryExhaustedModelsStillAnswers(t *testing.T) {
	f := newFixture(t, []scriptedCall{fail(), fail(), fail(), fail(), fail(), fail()},
		Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.MaxRetries = 0

	evts := f.runTurn(t, "hi", nil)

	assert.Contains(t, chunkText(evts), "trouble reaching my language models")
	messageDone(t, evts)
}

func TestSimpleQueryUsesConfiguredModelWhenSelectionDisabled(t *testing.T) {
	f := newFixture(t, []scriptedCall{ok("Answer from the pinned model.", 5)},
		Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.EnableModelSelection = false
	f.cfg.Orchestrator.DefaultModel = "pinned-model"

	evts := f.runTurn(t, "hi", nil)

	assert.Contains(t, chunkText(evts), "pinned model")
	require.Equal(t, 1, f.completer.callCount())
	assert.Equal(t, "pinned-model", f.completer.calls[0].Model)
	messageDone(t, evts)
}

func TestSimpleQuerySelectionDisabledSkipsFallbackChain(t *testing.T) {
	f := newFixture(t, []scriptedCall{fail()},
		Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.MaxRetries = 0
	f.cfg.Orchestrator.EnableModelSelection = false
	f.cfg.Orchestrator.DefaultModel = "pinned-model"

	evts := f.runTurn(t, "hi", nil)

	assert.Equal(t, 1, f.completer.callCount(), "no fallback models are tried")
	assert.Contains(t, chunkText(evts), "trouble reaching my language models")
	messageDone(t, evts)
}

func TestPipelineFailurePropagatesWhenDegradationDisabled(t *testing.T) {
	f := newFixture(t, nil, Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.EnableGracefulDegradation = false
	f.cfg.Orchestrator.MaxRetries = 0
	f.cfg.Agent.MaxRetries = 0

	evts, err := f.runTurnFailing(t, "how does systemd compare to openrc?")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "research stage failed")
	assert.Empty(t, chunkText(evts), "no degraded answer is emitted")
	assert.Len(t, eventsOfType[*events.AgentSpawn](evts), 1,
		"only the failed research agent was spawned")
	messageDone(t, evts)
}

func TestSimpleQueryFailurePropagatesWhenDegradationDisabled(t *testing.T) {
	f := newFixture(t, nil, Context{ChatID: "chat-1", Tier: config.TierFree})
	f.cfg.Orchestrator.EnableGracefulDegradation = false
	f.cfg.Orchestrator.MaxRetries = 0

	evts, err := f.runTurnFailing(t, "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "simple query failed")
	assert.Empty(t, chunkText(evts))
	messageDone(t, evts)
}

func TestProcessDefersForProfileCollection(t *testing.T) {
	planJSON := "```json\n" + `{
  "steps": ["Install docker"],
  "commands": [{"command": "sudo apt install docker.io", "privilegeLevel": "root", "risk": "low"}]
}` + "\n```"

	f := newFixture(t, []scriptedCall{
		ok(`<tool>web_search</tool><params>{"query": "install docker"}</params>`, 15),
		ok("Docker installs from docker.io on Debian-family systems.", 10),
		ok(planJSON, 20),
		ok("Here's how to install Docker on Ubuntu.", 30),
	}, Context{ChatID: "chat-1", UserID: "user-1", Tier: config.TierPro})

	// Ordered: the version question also mentions "distribution".
	answers := []struct{ substr, value string }{
		{"version of your distribution", "24.04"},
		{"distribution are you running", "Ubuntu"},
		{"package manager", "apt"},
		{"shell", "bash"},
		{"desktop environment", "GNOME"},
	}
	var asked []string
	answer := func(q *events.AgentQuestion) {
		asked = append(asked, q.Question)
		for _, a := range answers {
			if strings.Contains(q.Question, a.substr) {
				require.True(t, f.orch.ResolveUserAnswer(q.QuestionID, a.value))
				return
			}
		}
		t.Errorf("unexpected question: %s", q.Question)
	}

	evts := f.runTurn(t, "install docker for me", answer)

	require.Len(t, asked, 5, "the full question set runs before the deferred query")
	assert.Contains(t, asked[0], "distribution")
	assert.Contains(t, asked[4], "desktop environment")

	// The collected profile is persisted on the chat.
	chat, err := f.store.FindChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.NotNil(t, chat.Context.SystemProfile)
	assert.Equal(t, "Ubuntu", chat.Context.SystemProfile.Distro)
	assert.Equal(t, "apt", chat.Context.SystemProfile.PackageManager)

	// The deferred query completed as a normal complex turn.
	done := messageDone(t, evts)
	require.Len(t, done.Commands, 1)
	assert.Equal(t, "sudo apt install docker.io", done.Commands[0].Command)
	assert.Contains(t, chunkText(evts), "install Docker on Ubuntu")
}

func TestResolveUserAnswerUnknownQuestion(t *testing.T) {
	f := newFixture(t, nil, Context{ChatID: "chat-1", Tier: config.TierFree})
	assert.False(t, f.orch.ResolveUserAnswer("nope", "answer"))
}

func TestProcessWritesAuditTrail(t *testing.T) {
	f := newFixture(t, []scriptedCall{ok("Hello!", 3)},
		Context{ChatID: "chat-1", SessionID: "sess-1", UserID: "user-1", Tier: config.TierFree})

	f.runTurn(t, "hello", nil)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "process_started", entries[0].Command)
	assert.Equal(t, "process_completed", entries[1].Command)
	for _, e := range entries {
		assert.True(t, e.Verify([]byte(f.cfg.AuditSecret)), "audit entries are signed")
		assert.Equal(t, "chat-1", e.ChatID)
	}
}
