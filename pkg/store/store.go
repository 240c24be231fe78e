// Package store defines the persistence capability used by the orchestrator
// and session layer: chats with system profiles, the append-only audit log,
// and per-user preferences. The in-memory implementation backs tests and
// development; the postgres subpackage is the production implementation.
package store

import (
	"context"
	"errors"

	"github.com/orito-labs/orito/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ChatStore persists conversations and their system profiles.
type ChatStore interface {
	FindChat(ctx context.Context, id string) (*models.Chat, error)
	SaveChat(ctx context.Context, chat *models.Chat) error
	AppendMessage(ctx context.Context, chatID string, msg models.ChatMessage) error

	// UpdateSystemProfile sets both the normalized profile (in the chat
	// context) and the legacy-shaped profile on the chat record.
	UpdateSystemProfile(ctx context.Context, chatID string, data *models.SystemProfileData, legacy *models.SystemProfile) error
}

// AuditStore appends audit entries. Append failures must never cascade into
// the calling turn.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// PreferencesStore reads and writes per-user preferences.
type PreferencesStore interface {
	FindPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	SavePreferences(ctx context.Context, prefs *models.UserPreferences) error
}

// Store aggregates all persistence capabilities.
type Store interface {
	ChatStore
	AuditStore
	PreferencesStore
}
