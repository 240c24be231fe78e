package session

import (
	"time"

	"github.com/orito-labs/orito/pkg/models"
)

// Inbound message types accepted from clients.
const (
	InboundUserMessage = "user_message"
	InboundAnswer      = "answer"
	InboundSystemInfo  = "system_info"
)

// Inbound is a client-to-server message.
type Inbound struct {
	Type string `json:"type"`

	// user_message
	Content string `json:"content,omitempty"`

	// answer
	QuestionID string `json:"questionId,omitempty"`
	Answer     string `json:"answer,omitempty"`

	// system_info
	Profile *models.SystemProfileData `json:"profile,omitempty"`
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Info is a read-only session snapshot.
type Info struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId,omitempty"`
	Tier      string    `json:"tier"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
