package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/orito-labs/orito/pkg/database"
	"github.com/orito-labs/orito/pkg/models"
	"github.com/orito-labs/orito/pkg/store"
)

var (
	// Shared connection string for all tests in the package. CI provides an
	// external database via CI_DATABASE_URL; local dev starts one container.
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

func sharedDatabase(t *testing.T) string {
	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		return ciURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer")

		container, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("orito_test"),
			tcpostgres.WithUsername("orito"),
			tcpostgres.WithPassword("orito"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		if err := database.Migrate(connStr, "orito_test"); err != nil {
			containerErr = fmt.Errorf("failed to migrate test database: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "failed to set up shared test database")
	return sharedConnStr
}

// setupStore returns a migrated store over the shared database. Tables are
// truncated on cleanup so tests stay isolated.
func setupStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, sharedDatabase(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(),
			"TRUNCATE chats, audit_log, user_preferences")
		pool.Close()
	})
	return New(pool), pool
}

func TestChatRoundTrip(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.FindChat(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	chat := &models.Chat{
		ID:     "chat-1",
		UserID: "user-1",
		Context: models.ChatContext{
			SystemProfile: &models.SystemProfileData{Distro: "Ubuntu", PackageManager: "apt"},
		},
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "hello", CreatedAt: time.Now().UTC()},
		},
	}
	require.NoError(t, s.SaveChat(ctx, chat))

	found, err := s.FindChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", found.UserID)
	require.NotNil(t, found.Context.SystemProfile)
	assert.Equal(t, "Ubuntu", found.Context.SystemProfile.Distro)
	require.Len(t, found.Messages, 1)
	assert.Equal(t, "hello", found.Messages[0].Content)
	assert.False(t, found.CreatedAt.IsZero())

	// Saving again upserts in place.
	chat.UserID = "user-2"
	require.NoError(t, s.SaveChat(ctx, chat))
	found, err = s.FindChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "user-2", found.UserID)
}

func TestAppendMessage(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	err := s.AppendMessage(ctx, "missing", models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveChat(ctx, &models.Chat{ID: "chat-1"}))
	require.NoError(t, s.AppendMessage(ctx, "chat-1", models.ChatMessage{Role: models.RoleUser, Content: "first"}))
	require.NoError(t, s.AppendMessage(ctx, "chat-1", models.ChatMessage{Role: models.RoleAssistant, Content: "second"}))

	chat, err := s.FindChat(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "first", chat.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, chat.Messages[1].Role)
}

func TestUpdateSystemProfile(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	data := &models.SystemProfileData{
		Distro:         "Fedora",
		PackageManager: "dnf",
		DetectedAt:     time.Now().UTC(),
	}
	err := s.UpdateSystemProfile(ctx, "missing", data, data.Legacy())
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveChat(ctx, &models.Chat{ID: "chat-1"}))
	require.NoError(t, s.UpdateSystemProfile(ctx, "chat-1", data, data.Legacy()))

	chat, err := s.FindChat(ctx, "chat-1")
	require.NoError(t, err)
	require.NotNil(t, chat.Context.SystemProfile)
	assert.Equal(t, "Fedora", chat.Context.SystemProfile.Distro)
	require.NotNil(t, chat.SystemProfile)
	assert.Equal(t, "dnf", chat.SystemProfile.PackageManager)
}

func TestAppendAudit(t *testing.T) {
	s, pool := setupStore(t)
	ctx := context.Background()

	entry := &models.AuditEntry{
		ChatID:    "chat-1",
		SessionID: "sess-1",
		UserID:    "user-1",
		ActionID:  "action-1",
		Command:   "process_started",
		Details:   map[string]any{"message_len": 42},
	}
	entry.Sign([]byte("secret"))
	require.NoError(t, s.AppendAudit(ctx, entry))

	var (
		count int
		hmac  string
	)
	err := pool.QueryRow(ctx,
		"SELECT count(*), max(hmac) FROM audit_log WHERE chat_id = $1", "chat-1",
	).Scan(&count, &hmac)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, entry.HMAC, hmac)

	// action_id is unique; duplicate appends fail.
	assert.Error(t, s.AppendAudit(ctx, entry))
}

func TestPreferencesRoundTrip(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.FindPreferences(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	prefs := &models.UserPreferences{
		UserID:          "user-1",
		DefaultDistro:   "Arch Linux",
		DefaultShell:    "fish",
		FontSize:        14,
		ResponseStyle:   "concise",
		PreferredModel:  "llama-3.3-70b-versatile",
		AgentPriorities: map[string]int{"research": 1},
	}
	require.NoError(t, s.SavePreferences(ctx, prefs))

	found, err := s.FindPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Arch Linux", found.DefaultDistro)
	assert.Equal(t, 14, found.FontSize)
	assert.Equal(t, map[string]int{"research": 1}, found.AgentPriorities)

	prefs.DefaultShell = "zsh"
	require.NoError(t, s.SavePreferences(ctx, prefs))
	found, err = s.FindPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "zsh", found.DefaultShell)
}
