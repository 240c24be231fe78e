// Package tools provides the declarative tool catalog: JSON-schema argument
// validation, allow/restrict permission matching, and handler dispatch.
//
// Tool handlers are opaque async functions. Handler failures are reported in
// the Result, never raised into the tool-calling loop; the loop reinjects
// them as tool results so the LLM can recover.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Property describes one parameter in a tool schema.
// Types: string, number, boolean, array (with Items).
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Parameters is the object schema for a tool's arguments.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Schema declares a tool: its name, what it does, and its argument shape.
type Schema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Handler executes a tool with validated arguments and returns a
// JSON-serializable value.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Result is the outcome of one tool execution.
type Result struct {
	Data     any           `json:"data,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// ErrorMessage returns the error text, or "" on success.
func (r *Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// JSON renders the result for injection into the conversation.
func (r *Result) JSON() string {
	if r.Err != nil {
		out, _ := json.Marshal(map[string]string{"error": r.Err.Error()})
		return string(out)
	}
	out, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unserializable tool result: "+err.Error())
	}
	return string(out)
}

// compile builds a validator from the schema's parameter descriptor.
func (s *Schema) compile() (*jsonschema.Schema, error) {
	params := s.Parameters
	if params.Type == "" {
		params.Type = "object"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters for %s: %w", s.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode parameters for %s: %w", s.Name, err)
	}

	compiler := jsonschema.NewCompiler()
	url := s.Name + ".schema.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", s.Name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", s.Name, err)
	}
	return compiled, nil
}
