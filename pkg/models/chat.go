package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in a chat's message history.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ChatContext holds per-chat state attached to a chat record.
type ChatContext struct {
	SystemProfile *SystemProfileData `json:"systemProfile,omitempty"`
}

// Chat is a persisted conversation.
// SystemProfile duplicates Context.SystemProfile in the legacy shape for
// consumers that predate the normalized profile.
type Chat struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId,omitempty"`
	Context       ChatContext    `json:"context"`
	SystemProfile *SystemProfile `json:"systemProfile,omitempty"`
	Messages      []ChatMessage  `json:"messages,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// AgentMetric reports per-agent token usage for a completed turn.
type AgentMetric struct {
	AgentID    string `json:"agentId"`
	AgentType  string `json:"agentType"`
	TokensUsed int    `json:"tokensUsed"`
}
