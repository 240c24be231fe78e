// Package postgres implements the store capability on PostgreSQL via pgx.
// Chat context, messages, and profiles are stored as JSONB documents.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/store"
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a postgres-backed store. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindChat loads a chat by id.
func (s *Store) FindChat(ctx context.Context, id string) (*models.Chat, error) {
	var (
		chat        models.Chat
		contextRaw  []byte
		profileRaw  []byte
		messagesRaw []byte
		userID      *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, context, system_profile, messages, created_at, updated_at
		 FROM chats WHERE id = $1`, id,
	).Scan(&chat.ID, &userID, &contextRaw, &profileRaw, &messagesRaw, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: chat %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}

	if userID != nil {
		chat.UserID = *userID
	}
	if err := json.Unmarshal(contextRaw, &chat.Context); err != nil {
		return nil, fmt.Errorf("failed to decode chat context: %w", err)
	}
	if len(profileRaw) > 0 {
		if err := json.Unmarshal(profileRaw, &chat.SystemProfile); err != nil {
			return nil, fmt.Errorf("failed to decode system profile: %w", err)
		}
	}
	if len(messagesRaw) > 0 {
		if err := json.Unmarshal(messagesRaw, &chat.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
	}
	return &chat, nil
}

// SaveChat inserts or replaces a chat record.
func (s *Store) SaveChat(ctx context.Context, chat *models.Chat) error {
	contextRaw, err := json.Marshal(chat.Context)
	if err != nil {
		return fmt.Errorf("failed to encode chat context: %w", err)
	}
	messagesRaw, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	var profileRaw []byte
	if chat.SystemProfile != nil {
		if profileRaw, err = json.Marshal(chat.SystemProfile); err != nil {
			return fmt.Errorf("failed to encode system profile: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, context, system_profile, messages, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   context = EXCLUDED.context,
		   system_profile = EXCLUDED.system_profile,
		   messages = EXCLUDED.messages,
		   updated_at = now()`,
		chat.ID, chat.UserID, contextRaw, profileRaw, messagesRaw,
	)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

// AppendMessage appends one message to the chat's JSONB history.
func (s *Store) AppendMessage(ctx context.Context, chatID string, msg models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET messages = messages || $2::jsonb, updated_at = now() WHERE id = $1`,
		chatID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chat %s", store.ErrNotFound, chatID)
	}
	return nil
}

// UpdateSystemProfile sets both the normalized and legacy profile shapes.
func (s *Store) UpdateSystemProfile(ctx context.Context, chatID string, data *models.SystemProfileData, legacy *models.SystemProfile) error {
	dataRaw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	legacyRaw, err := json.Marshal(legacy)
	if err != nil {
		return fmt.Errorf("failed to encode legacy profile: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET
		   context = jsonb_set(context, '{systemProfile}', $2::jsonb),
		   system_profile = $3,
		   updated_at = now()
		 WHERE id = $1`,
		chatID, dataRaw, legacyRaw,
	)
	if err != nil {
		return fmt.Errorf("failed to update system profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chat %s", store.ErrNotFound, chatID)
	}
	return nil
}

// AppendAudit inserts one audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var detailsRaw []byte
	if entry.Details != nil {
		var err error
		if detailsRaw, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (chat_id, session_id, user_id, action_id, command, risk, user_decision, hmac, details, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)`,
		entry.ChatID, entry.SessionID, entry.UserID, entry.ActionID,
		entry.Command, entry.Risk, entry.UserDecision, entry.HMAC, detailsRaw, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// FindPreferences loads preferences by user id.
func (s *Store) FindPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	var (
		prefs         models.UserPreferences
		prioritiesRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, COALESCE(default_distro, ''), COALESCE(default_shell, ''),
		        COALESCE(font_size, 0), COALESCE(response_style, ''),
		        COALESCE(custom_instructions, ''), COALESCE(preferred_model, ''),
		        COALESCE(temperature_ceiling, 0), agent_priorities, COALESCE(default_editor, '')
		 FROM user_preferences WHERE user_id = $1`, userID,
	).Scan(&prefs.UserID, &prefs.DefaultDistro, &prefs.DefaultShell,
		&prefs.FontSize, &prefs.ResponseStyle, &prefs.CustomInstructions,
		&prefs.PreferredModel, &prefs.TemperatureCeiling, &prioritiesRaw, &prefs.DefaultEditor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: preferences for user %s", store.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if len(prioritiesRaw) > 0 {
		if err := json.Unmarshal(prioritiesRaw, &prefs.AgentPriorities); err != nil {
			return nil, fmt.Errorf("failed to decode agent priorities: %w", err)
		}
	}
	return &prefs, nil
}

// SavePreferences inserts or replaces a preferences record.
func (s *Store) SavePreferences(ctx context.Context, prefs *models.UserPreferences) error {
	var prioritiesRaw []byte
	if prefs.AgentPriorities != nil {
		var err error
		if prioritiesRaw, err = json.Marshal(prefs.AgentPriorities); err != nil {
			return fmt.Errorf("failed to encode agent priorities: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_preferences
		   (user_id, default_distro, default_shell, font_size, response_style,
		    custom_instructions, preferred_model, temperature_ceiling, agent_priorities, default_editor, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   default_distro = EXCLUDED.default_distro,
		   default_shell = EXCLUDED.default_shell,
		   font_size = EXCLUDED.font_size,
		   response_style = EXCLUDED.response_style,
		   custom_instructions = EXCLUDED.custom_instructions,
		   preferred_model = EXCLUDED.preferred_model,
		   temperature_ceiling = EXCLUDED.temperature_ceiling,
		   agent_priorities = EXCLUDED.agent_priorities,
		   default_editor = EXCLUDED.default_editor,
		   updated_at = now()`,
		prefs.UserID, prefs.DefaultDistro, prefs.DefaultShell, prefs.FontSize,
		prefs.ResponseStyle, prefs.CustomInstructions, prefs.PreferredModel,
		prefs.TemperatureCeiling, prioritiesRaw, prefs.DefaultEditor,
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
