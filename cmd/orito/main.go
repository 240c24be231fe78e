// Orito server: provides the HTTP API, manages chat sessions, and runs the
// multi-agent orchestration behind each conversation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/orito-labs/orito/pkg/api"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/database"
	"github.com/orito-labs/orito/pkg/llm"
	"github.com/orito-labs/orito/pkg/session"
	"github.com/orito-labs/orito/pkg/store"
	"github.com/orito-labs/orito/pkg/store/postgres"
	"github.com/orito-labs/orito/pkg/tools"
	"github.com/orito-labs/orito/pkg/tools/websearch"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("ORITO_CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting Orito", "http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, filepath.Join(*configDir, "agents"))
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect storage. A broken database falls back to the in-memory
	// store so local development works without PostgreSQL.
	var (
		backingStore store.Store
		dbClient     *database.Client
	)
	dbConfig, err := database.LoadConfigFromEnv()
	if err == nil {
		dbClient, err = database.NewClient(ctx, dbConfig)
	}
	if err != nil {
		slog.Warn("Database unavailable, using in-memory store", "error", err)
		backingStore = store.NewMemory()
	} else {
		defer dbClient.Close()
		backingStore = postgres.New(dbClient.Pool())
		slog.Info("Connected to PostgreSQL database")
	}

	// 3. Assemble the tool registry
	registry := tools.NewRegistry()
	workspaceRoot := getEnv("ORITO_WORKSPACE", ".")
	if err := tools.RegisterDefaults(registry, workspaceRoot); err != nil {
		slog.Error("Failed to register tools", "error", err)
		os.Exit(1)
	}
	searcher := websearch.NewSearcher(cfg.Search)
	if err := tools.RegisterSearchSchemas(registry, searcher.WebSearchHandler, searcher.WikipediaHandler); err != nil {
		slog.Error("Failed to register search tools", "error", err)
		os.Exit(1)
	}
	slog.Info("Tool registry assembled", "tools", len(registry.Names()))

	// 4. Build the LLM stack: provider client, retries, completion cache
	completer := llm.WithCache(
		llm.WithRetry(llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)),
		cfg.Cache.MaxSize, cfg.Cache.CompletionTTL,
	)

	// 5. Session manager
	sessions := session.NewManager(session.ManagerOptions{
		Config:    cfg,
		Store:     backingStore,
		Registry:  registry,
		Completer: completer,
		Logger:    slog.Default(),
	})

	// 6. HTTP server
	httpServer := api.NewServer(api.Options{
		Config:   cfg,
		DB:       dbClient,
		Sessions: sessions,
		Caches: map[string]api.StatsProvider{
			"completions": completer,
			"search":      searcher,
		},
		Logger: slog.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
