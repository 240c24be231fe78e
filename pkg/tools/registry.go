package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Sentinel errors for tool dispatch.
var (
	ErrUnknownTool    = errors.New("unknown tool")
	ErrToolNotAllowed = errors.New("tool not allowed")
	ErrInvalidArgs    = errors.New("invalid tool arguments")
)

type registeredTool struct {
	schema   *Schema
	handler  Handler
	compiled *jsonschema.Schema
}

// Registry maps tool names to schemas and handlers with thread-safe access.
// Argument maps are validated against the compiled schema before dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. The parameter schema is compiled once here; invalid
// schemas are rejected at registration, not at call time.
func (r *Registry) Register(schema Schema, handler Handler) error {
	if schema.Name == "" {
		return fmt.Errorf("tool schema must have a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %s must have a handler", schema.Name)
	}
	compiled, err := schema.compile()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[schema.Name] = &registeredTool{
		schema:   &schema,
		handler:  handler,
		compiled: compiled,
	}
	return nil
}

// GetDefinition returns the schema for the named tool.
func (r *Registry) GetDefinition(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t.schema, true
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute validates args and runs the named tool under the given
// permissions. All failures (unknown tool, permission denial, argument
// validation, handler errors) are reported in Result.Err; Execute never
// panics or propagates handler failures as Go errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, allowed *Permissions) *Result {
	start := time.Now()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return &Result{Err: fmt.Errorf("%w: %s", ErrUnknownTool, name), Duration: time.Since(start)}
	}
	if !allowed.Allows(name) {
		return &Result{Err: fmt.Errorf("%w: %s", ErrToolNotAllowed, name), Duration: time.Since(start)}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := t.compiled.Validate(normalizeArgs(args)); err != nil {
		return &Result{Err: fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err), Duration: time.Since(start)}
	}

	data, err := t.handler(ctx, args)
	if err != nil {
		return &Result{Err: fmt.Errorf("tool %s failed: %w", name, err), Duration: time.Since(start)}
	}
	return &Result{Data: data, Duration: time.Since(start)}
}

// normalizeArgs converts the argument map to the plain-JSON value tree the
// validator expects (map[string]any with float64 numbers).
func normalizeArgs(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = normalizeValue(item)
		}
		return items
	case map[string]any:
		return normalizeArgs(val)
	default:
		return v
	}
}
