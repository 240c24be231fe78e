package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orito-labs/orito/pkg/models"
)

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu    sync.RWMutex
	chats map[string]*models.Chat
	audit []*models.AuditEntry
	prefs map[string]*models.UserPreferences
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		chats: make(map[string]*models.Chat),
		prefs: make(map[string]*models.UserPreferences),
	}
}

// FindChat returns a copy of the chat with the given id.
func (m *Memory) FindChat(_ context.Context, id string) (*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, id)
	}
	copied := *chat
	copied.Messages = append([]models.ChatMessage(nil), chat.Messages...)
	return &copied, nil
}

// SaveChat inserts or replaces the chat record.
func (m *Memory) SaveChat(_ context.Context, chat *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	copied := *chat
	copied.Messages = append([]models.ChatMessage(nil), chat.Messages...)
	m.chats[chat.ID] = &copied
	return nil
}

// AppendMessage adds a message to the chat's history.
func (m *Memory) AppendMessage(_ context.Context, chatID string, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateSystemProfile sets both profile shapes on the chat.
func (m *Memory) UpdateSystemProfile(_ context.Context, chatID string, data *models.SystemProfileData, legacy *models.SystemProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	chat.Context.SystemProfile = data
	chat.SystemProfile = legacy
	chat.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendAudit records an audit entry.
func (m *Memory) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	copied := *entry
	m.audit = append(m.audit, &copied)
	return nil
}

// AuditEntries returns a snapshot of all recorded entries (tests).
func (m *Memory) AuditEntries() []*models.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.AuditEntry(nil), m.audit...)
}

// FindPreferences returns the preferences for a user.
func (m *Memory) FindPreferences(_ context.Context, userID string) (*models.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs, ok := m.prefs[userID]
	if !ok {
		return nil, fmt.Errorf("%w: preferences for user %s", ErrNotFound, userID)
	}
	copied := *prefs
	return &copied, nil
}

// SavePreferences inserts or replaces the preferences record.
func (m *Memory) SavePreferences(_ context.Context, prefs *models.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *prefs
	m.prefs[prefs.UserID] = &copied
	return nil
}
