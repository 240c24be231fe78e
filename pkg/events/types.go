// Package events provides the typed streaming event contract between agents,
// the orchestrator, and the session consumer.
//
// Every agent owns a Bus, an ordered event channel. The orchestrator
// subscribes on spawn and forwards each event to the session channel in the
// order received. Per-agent ordering is FIFO end to end; ordering across
// agents is only causal (a sub-agent's agent:spawn follows its parent's
// spawn request).
package events

// Event type tags as they appear on the wire.
const (
	TypeAgentSpawn      = "agent:spawn"
	TypeAgentStatus     = "agent:status"
	TypeAgentTool       = "agent:tool"
	TypeAgentQuestion   = "agent:question"
	TypeAgentResult     = "agent:result"
	TypeSystemDiscovery = "system:discovery"
	TypeMessageChunk    = "message:chunk"
	TypeMessageDone     = "message:done"
	TypeError           = "error"
)

// Tool event status values (used in AgentTool.Status).
const (
	ToolStatusRunning = "running"
	ToolStatusDone    = "done"
)

// Event is the interface implemented by all event payloads.
// The concrete types are defined in payloads.go.
type Event interface {
	EventType() string
}

func (e *AgentSpawn) EventType() string      { return TypeAgentSpawn }
func (e *AgentStatus) EventType() string     { return TypeAgentStatus }
func (e *AgentTool) EventType() string       { return TypeAgentTool }
func (e *AgentQuestion) EventType() string   { return TypeAgentQuestion }
func (e *AgentResult) EventType() string     { return TypeAgentResult }
func (e *SystemDiscovery) EventType() string { return TypeSystemDiscovery }
func (e *MessageChunk) EventType() string    { return TypeMessageChunk }
func (e *MessageDone) EventType() string     { return TypeMessageDone }
func (e *Error) EventType() string           { return TypeError }
