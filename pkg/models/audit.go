package models

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AuditEntry is an append-only audit log record.
// ActionID is unique per entry; HMAC covers the stable fields so records
// can be verified after the fact.
type AuditEntry struct {
	ChatID       string         `json:"chatId"`
	SessionID    string         `json:"sessionId"`
	UserID       string         `json:"userId,omitempty"`
	ActionID     string         `json:"actionId"`
	Command      string         `json:"command"`
	Risk         string         `json:"risk,omitempty"`
	UserDecision string         `json:"userDecision,omitempty"`
	HMAC         string         `json:"hmac"`
	CreatedAt    time.Time      `json:"createdAt"`
	Details      map[string]any `json:"details,omitempty"`
}

// Sign computes and sets the entry's HMAC using the given secret.
func (e *AuditEntry) Sign(secret []byte) {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(e.ChatID))
	mac.Write([]byte(e.SessionID))
	mac.Write([]byte(e.ActionID))
	mac.Write([]byte(e.Command))
	mac.Write([]byte(e.UserDecision))
	e.HMAC = hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the entry's HMAC against the given secret.
func (e *AuditEntry) Verify(secret []byte) bool {
	expected := &AuditEntry{
		ChatID:       e.ChatID,
		SessionID:    e.SessionID,
		ActionID:     e.ActionID,
		Command:      e.Command,
		UserDecision: e.UserDecision,
	}
	expected.Sign(secret)
	return hmac.Equal([]byte(expected.HMAC), []byte(e.HMAC))
}
