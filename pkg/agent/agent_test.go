package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/tools"
)

// fakeCompleter replays scripted responses and records every conversation it
// was called with.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []*llm.Result
	calls     [][]llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (*llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeCompleter) Stream(ctx context.Context, messages []llm.Message, opts llm.Options, onChunk llm.ChunkFunc) (*llm.Result, error) {
	result, err := f.Complete(ctx, messages, opts)
	if err == nil && onChunk != nil {
		onChunk(result.Content)
	}
	return result, err
}

func testDefaults() config.AgentDefaults {
	d := config.DefaultAgentDefaults()
	d.RetryDelay = time.Millisecond
	d.QuestionWait = 50 * time.Millisecond
	d.SubAgentWait = 50 * time.Millisecond
	return d
}

func newTestBase(t *testing.T, agentType string, completer llm.Completer, bus *events.Bus, router Router) *Base {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterDefaults(registry, t.TempDir()))
	require.NoError(t, tools.RegisterSearchSchemas(registry,
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"query": args["query"], "results": []any{}}, nil
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"query": args["query"], "results": []any{}}, nil
		},
	))

	b, err := New(Options{
		AgentType: agentType,
		Task:      "test task",
		Defaults:  testDefaults(),
		Loader:    config.NewDefinitionLoader(""),
		Registry:  registry,
		Completer: completer,
		Bus:       bus,
		Router:    router,
	})
	require.NoError(t, err)
	return b
}

func drain(bus *events.Bus) []events.Event {
	bus.Close()
	var out []events.Event
	for e := range bus.Events() {
		out = append(out, e)
	}
	return out
}

func TestNewRendersSystemPrompt(t *testing.T) {
	b := newTestBase(t, "research", &fakeCompleter{}, nil, nil)
	assert.Equal(t, "Research", b.Name)
	assert.Contains(t, b.SystemPrompt(), "test task")
	assert.NotContains(t, b.SystemPrompt(), "{{task}}")
}

func TestNewUnknownAgentType(t *testing.T) {
	_, err := New(Options{
		AgentType: "nonexistent",
		Loader:    config.NewDefinitionLoader(""),
	})
	assert.ErrorIs(t, err, config.ErrDefinitionNotFound)
}

func TestPermissionsFollowDefinition(t *testing.T) {
	b := newTestBase(t, "research", &fakeCompleter{}, nil, nil)
	assert.True(t, b.CanUseTool("web_search"))
	assert.True(t, b.CanUseTool("search_wikipedia"))
	assert.False(t, b.CanUseTool("calculate"))

	v := newTestBase(t, "validator", &fakeCompleter{}, nil, nil)
	assert.True(t, v.CanUseTool("validate_command"))
	assert.False(t, v.CanUseTool("web_search"))
}

func TestStatusTransitionsEmitEvents(t *testing.T) {
	bus := events.NewBus(16)
	b := newTestBase(t, "research", &fakeCompleter{}, bus, nil)

	b.EmitSpawn()
	b.SetStatus(StatusThinking)
	b.EmitResult("done")

	evts := drain(bus)
	require.Len(t, evts, 4) // spawn, thinking, result, done status
	assert.IsType(t, &events.AgentSpawn{}, evts[0])
	assert.Equal(t, string(StatusThinking), evts[1].(*events.AgentStatus).Status)
	assert.Equal(t, "done", evts[2].(*events.AgentResult).Summary)
	assert.Equal(t, string(StatusDone), evts[3].(*events.AgentStatus).Status)
}

func TestMetricsAccumulate(t *testing.T) {
	b := newTestBase(t, "research", &fakeCompleter{}, nil, nil)
	b.StartMetrics()
	b.AddTokens(100)
	b.AddTokens(50)
	b.AddTokens(-5) // ignored
	b.EndMetrics(120)

	m := b.Metrics()
	assert.Equal(t, 150, m.TokensUsed, "EndMetrics never lowers accumulated usage")
	assert.False(t, m.EndTime.IsZero())
}

func TestExecuteWithRetrySucceedsEventually(t *testing.T) {
	b := newTestBase(t, "research", &fakeCompleter{}, nil, nil)

	attempts := 0
	err := b.ExecuteWithRetry(context.Background(), "flaky op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.False(t, b.breaker.IsOpen())
}

func TestExecuteWithRetryExhaustionFeedsBreaker(t *testing.T) {
	b := newTestBase(t, "research", &fakeCompleter{}, nil, nil)

	attempts := 0
	err := b.ExecuteWithRetry(context.Background(), "doomed op", func(context.Context) error {
		attempts++
		return assert.AnError
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, testDefaults().MaxRetries+1, attempts)

	m := b.breaker
	m.mu.Lock()
	failures := m.failures
	m.mu.Unlock()
	assert.Equal(t, 1, failures, "one exhausted retry cycle counts as one breaker failure")
}

func TestExecuteWithTimeout(t *testing.T) {
	_, err := ExecuteWithTimeout(context.Background(), 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			select {
			case <-time.After(time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := ExecuteWithTimeout(context.Background(), time.Second,
		func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
