// Package session owns the live conversation state between a connected
// client and its orchestrator: one session per connection, one event bus per
// session, and the dispatch of inbound messages to the right handler.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/events"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/orchestrator"
	"github.com/orito-labs/orito/pkg/store"
	"github.com/orito-labs/orito/pkg/tools"
)

// Session binds one client connection to an orchestrator and its event bus.
type Session struct {
	ID     string
	ChatID string
	UserID string
	Tier   config.Tier

	bus  *events.Bus
	orch *orchestrator.Orchestrator

	store  store.Store
	logger *slog.Logger

	mu        sync.Mutex
	status    Status
	createdAt time.Time
	updatedAt time.Time
}

// Events returns the session's ordered event stream.
func (s *Session) Events() <-chan events.Event {
	return s.bus.Events()
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		ChatID:    s.ChatID,
		UserID:    s.UserID,
		Tier:      string(s.Tier),
		Status:    s.status,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Manager tracks active sessions and builds their orchestrators.
type Manager struct {
	cfg       *config.Config
	store     store.Store
	registry  *tools.Registry
	completer llm.Completer
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOptions configure a session manager.
type ManagerOptions struct {
	Config    *config.Config
	Store     store.Store
	Registry  *tools.Registry
	Completer llm.Completer
	Logger    *slog.Logger
}

// NewManager creates an empty session manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       opts.Config,
		store:     opts.Store,
		registry:  opts.Registry,
		completer: opts.Completer,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// CreateOptions configure a new session.
type CreateOptions struct {
	ChatID string
	UserID string
	Tier   config.Tier
	APIKey string
}

// Create opens a session for a chat, seeding history and profile from the
// persisted chat record. A missing chat record is created on the fly so the
// first message of a brand-new conversation never fails.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	tier := opts.Tier
	if !tier.IsValid() {
		tier = config.TierFree
	}
	chatID := opts.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	chat, err := m.loadOrCreateChat(ctx, chatID, opts.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    opts.UserID,
		Tier:      tier,
		bus:       events.NewBus(0),
		store:     m.store,
		status:    StatusActive,
		createdAt: now,
		updatedAt: now,
	}
	s.logger = m.logger.With("session_id", s.ID, "chat_id", chatID)

	s.orch = orchestrator.New(orchestrator.Options{
		Config:    m.cfg,
		Store:     m.store,
		Registry:  m.registry,
		Completer: m.completer,
		Bus:       s.bus,
		Logger:    s.logger,
		Context: orchestrator.Context{
			ChatID:         chatID,
			SessionID:      s.ID,
			UserID:         opts.UserID,
			Tier:           tier,
			MessageHistory: chat.Messages,
			SystemProfile:  chat.Context.SystemProfile,
			APIKey:         opts.APIKey,
		},
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.logger.Info("Session created", "tier", tier)
	return s, nil
}

func (m *Manager) loadOrCreateChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if m.store == nil {
		return &models.Chat{ID: chatID, UserID: userID}, nil
	}

	chat, err := m.store.FindChat(ctx, chatID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to open chat %s: %w", chatID, err)
	}

	chat = &models.Chat{
		ID:        chatID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.store.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat %s: %w", chatID, err)
	}
	return chat, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}

// List returns snapshots of all active sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Close terminates a session: the bus is closed so stream consumers drain
// and exit, and the session is dropped from the registry.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	s.mu.Lock()
	s.status = StatusClosed
	s.mu.Unlock()
	s.bus.Close()
	s.logger.Info("Session closed")
	return nil
}

// Dispatch routes one inbound client message. User messages run the
// orchestrator on its own goroutine so answers and profile updates can be
// delivered while a turn is in flight.
func (m *Manager) Dispatch(ctx context.Context, sessionID string, msg Inbound) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.touch()

	switch msg.Type {
	case InboundUserMessage:
		if msg.Content == "" {
			return errors.New("user_message requires content")
		}
		s.handleUserMessage(ctx, msg.Content)
		return nil

	case InboundAnswer:
		if msg.QuestionID == "" {
			return errors.New("answer requires questionId")
		}
		if !s.orch.ResolveUserAnswer(msg.QuestionID, msg.Answer) {
			s.logger.Warn("Answer for unknown or expired question", "question_id", msg.QuestionID)
		}
		return nil

	case InboundSystemInfo:
		if msg.Profile == nil {
			return errors.New("system_info requires profile")
		}
		go s.orch.UpdateSystemProfile(context.WithoutCancel(ctx), msg.Profile)
		return nil

	default:
		return fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

// handleUserMessage persists the user turn and runs the orchestrator.
func (s *Session) handleUserMessage(ctx context.Context, content string) {
	if s.store != nil {
		err := s.store.AppendMessage(ctx, s.ChatID, models.ChatMessage{
			Role:      models.RoleUser,
			Content:   content,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("Failed to persist user message", "error", err)
		}
	}

	// The turn outlives the HTTP request that carried the message.
	turnCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.orch.Process(turnCtx, content); err != nil {
			s.logger.Error("Turn processing failed", "error", err)
		}
	}()
}

// ResolveUserAnswer exposes answer routing for transports that bypass
// Dispatch.
func (s *Session) ResolveUserAnswer(questionID, answer string) bool {
	return s.orch.ResolveUserAnswer(questionID, answer)
}
