package events

import (
	"time"

	"github.com/orito-labs/orito/pkg/models"
)

// Now returns the timestamp string used on all events (ISO-8601 / RFC3339Nano).
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// AgentSpawn is emitted when an agent is created, before its run starts.
type AgentSpawn struct {
	Type          string `json:"type"` // always TypeAgentSpawn
	AgentID       string `json:"agentId"`
	Name          string `json:"name"`
	AgentType     string `json:"agentType"`
	Color         string `json:"color,omitempty"`
	Task          string `json:"task"`
	ParentAgentID string `json:"parentAgentId,omitempty"`
	Depth         int    `json:"depth"`
	Timestamp     string `json:"timestamp"`
}

// AgentStatus is emitted on every agent state transition.
type AgentStatus struct {
	Type      string `json:"type"` // always TypeAgentStatus
	AgentID   string `json:"agentId"`
	Status    string `json:"status"` // spawning, thinking, validating, done, error
	Timestamp string `json:"timestamp"`
}

// AgentTool is emitted around each tool invocation: once with status
// "running", then once with status "done" carrying duration and truncated
// output.
type AgentTool struct {
	Type       string `json:"type"` // always TypeAgentTool
	AgentID    string `json:"agentId"`
	Tool       string `json:"tool"`
	Input      string `json:"input,omitempty"`
	Status     string `json:"status"` // running, done
	Output     string `json:"output,omitempty"`
	TokensUsed int    `json:"tokensUsed,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// QuestionOption is one selectable answer in an AgentQuestion.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// AgentQuestion is emitted when an agent needs a user answer. The session
// routes the reply back by QuestionID.
type AgentQuestion struct {
	Type        string           `json:"type"` // always TypeAgentQuestion
	AgentID     string           `json:"agentId"`
	QuestionID  string           `json:"questionId"`
	Question    string           `json:"question"`
	Header      string           `json:"header,omitempty"`
	Purpose     string           `json:"purpose,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	Multiple    bool             `json:"multiple,omitempty"`
	AllowCustom bool             `json:"allowCustom,omitempty"`
	Timestamp   string           `json:"timestamp"`
}

// AgentResult is the terminal success event of an agent run.
type AgentResult struct {
	Type      string `json:"type"` // always TypeAgentResult
	AgentID   string `json:"agentId"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}

// SystemDiscovery carries discovery commands for the client to run locally
// and paste the output back.
type SystemDiscovery struct {
	Type      string   `json:"type"` // always TypeSystemDiscovery
	AgentID   string   `json:"agentId"`
	Commands  []string `json:"commands"`
	Prompt    string   `json:"prompt"`
	Timestamp string   `json:"timestamp"`
}

// MessageChunk is an incremental piece of the assistant's reply.
type MessageChunk struct {
	Type      string `json:"type"` // always TypeMessageChunk
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// MessageDone terminates a turn. Commands holds the validated commands only;
// blocked commands never appear here.
type MessageDone struct {
	Type            string                  `json:"type"` // always TypeMessageDone
	Citations       []models.Citation       `json:"citations"`
	Commands        []models.PlannedCommand `json:"commands"`
	TotalTokensUsed int                     `json:"totalTokensUsed,omitempty"`
	AgentMetrics    []models.AgentMetric    `json:"agentMetrics,omitempty"`
	Timestamp       string                  `json:"timestamp"`
}

// Error reports a recoverable or fatal error to the session.
type Error struct {
	Type      string `json:"type"` // always TypeError
	AgentID   string `json:"agentId,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
