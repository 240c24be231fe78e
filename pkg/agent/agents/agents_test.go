package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/llm/selector"
	"github.com/orito-labs/orito/pkg/tools"
)

// newTestDeps builds agent dependencies on built-in defaults with a fresh
// event bus. The completer may be nil for agents that never call a model.
func newTestDeps(t *testing.T, completer llm.Completer) (Deps, *events.Bus) {
	t.Helper()

	cfg, err := config.Initialize(context.Background(), "")
	require.NoError(t, err)
	cfg.Agent.MaxRetries = 0
	cfg.Agent.RetryDelay = time.Millisecond

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterDefaults(registry, t.TempDir()))

	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	return Deps{
		Defaults:  cfg.Agent,
		Loader:    cfg.Definitions,
		Registry:  registry,
		Completer: completer,
		Bus:       bus,
		Selector:  selector.New(cfg.Models),
	}, bus
}
