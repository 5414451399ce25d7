// TARSy alert-processing engine: accepts SRE alerts over HTTP, routes them
// to agent chains, and serves the processing history and live dashboard
// stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/agent/controller"
	"github.com/tarsy-bot/tarsy/pkg/agent/prompt"
	"github.com/tarsy-bot/tarsy/pkg/alert"
	"github.com/tarsy-bot/tarsy/pkg/api"
	"github.com/tarsy-bot/tarsy/pkg/cleanup"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/events"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/masking"
	"github.com/tarsy-bot/tarsy/pkg/mcp"
	"github.com/tarsy-bot/tarsy/pkg/runbook"
	"github.com/tarsy-bot/tarsy/pkg/services"
	"github.com/tarsy-bot/tarsy/pkg/slack"
	"github.com/tarsy-bot/tarsy/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("TARSY_CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env before settings so TARSY_* vars from the file are visible
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(settings.LogLevel),
	})))

	slog.Info("Starting TARSy",
		"version", version.Full(),
		"addr", settings.ListenAddr(),
		"config_dir", *configDir,
		"history_enabled", settings.HistoryEnabled)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"agents", stats.Agents,
		"chains", stats.Chains,
		"mcp_servers", stats.MCPServers,
		"llm_providers", stats.LLMProviders,
		"alert_types", stats.AlertTypes)

	// History store: when disabled the engine still processes alerts, it
	// just records nothing and the history API returns 503.
	var dbClient *database.Client
	var history *services.HistoryService
	if settings.HistoryEnabled {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL database")

		history = services.NewHistoryService(dbClient)

		// Sessions left non-terminal by a previous run can never finish
		if count, err := history.CleanupOrphanedSessions(ctx); err != nil {
			slog.Error("Orphaned session cleanup failed", "error", err)
		} else if count > 0 {
			slog.Info("Failed orphaned sessions from previous run", "count", count)
		}
	} else {
		history = services.NewDisabledHistoryService()
		slog.Warn("History capture disabled, sessions will not be recorded")
	}

	// Hook bus and its subscribers: timeline persistence, dashboard
	// broadcast, optional Slack notifications.
	bus := hooks.NewBus(hooks.DefaultBusConfig())
	defer bus.Close()

	if err := bus.Register("timeline-recorder", services.NewTimelineRecorder(history)); err != nil {
		slog.Error("Failed to register timeline recorder", "error", err)
		os.Exit(1)
	}

	connManager := events.NewConnectionManager(10 * time.Second)
	if err := bus.Register("dashboard-broadcaster", events.NewDashboardBroadcaster(connManager)); err != nil {
		slog.Error("Failed to register dashboard broadcaster", "error", err)
		os.Exit(1)
	}

	if cfg.Slack != nil && cfg.Slack.Enabled {
		slackService := slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: getEnv("TARSY_DASHBOARD_URL", "http://localhost:5173"),
		})
		if slackService == nil {
			slog.Warn("Slack notifications enabled but token or channel missing, skipping",
				"token_env", cfg.Slack.TokenEnv)
		} else if err := bus.Register(slack.SubscriberName, slack.NewNotifier(slackService)); err != nil {
			slog.Error("Failed to register Slack notifier", "error", err)
			os.Exit(1)
		} else {
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		}
	}

	// LLM clients are created lazily per provider and shared across sessions
	pool := llm.NewPool(cfg.LLMProviderRegistry, bus)
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Error("Error closing LLM pool", "error", err)
		}
	}()

	warningsService := services.NewSystemWarningsService()
	masker := masking.NewMaskingService(cfg.MCPServerRegistry, cfg.Defaults.AlertMasking)
	mcpFactory := mcp.NewClientFactory(cfg.MCPServerRegistry, masker, bus)

	var healthMonitor *mcp.HealthMonitor
	if len(cfg.AllMCPServerIDs()) > 0 {
		healthMonitor = mcp.NewHealthMonitor(mcpFactory, cfg.MCPServerRegistry, warningsService)
		healthMonitor.Start(ctx)
		defer healthMonitor.Stop()
		slog.Info("MCP health monitor started", "servers", len(cfg.AllMCPServerIDs()))
	}

	agentFactory := agent.NewFactory(
		cfg,
		settings.LLMIterationTimeout,
		controller.NewFactory(),
		func(providerName string) (agent.LLMClient, error) {
			return pool.ClientFor(providerName)
		},
		mcpFactory,
		prompt.NewBuilder(cfg.MCPServerRegistry),
	)

	runbooks := runbook.NewService(cfg.Runbooks, os.Getenv(cfg.GitHub.TokenEnv), "")

	alerts := alert.NewService(cfg, settings, history,
		runbooks, alert.NewAgentFactoryAdapter(agentFactory), bus)

	var cleanupService *cleanup.Service
	if settings.HistoryEnabled {
		retention := cfg.Retention
		if retention == nil {
			retention = config.DefaultRetentionConfig()
		}
		cleanupService = cleanup.NewService(retention, history)
		cleanupService.Start(ctx)
		defer cleanupService.Stop()
	}

	server := api.NewServer(cfg, settings, alerts, history, api.Deps{
		DBClient:       dbClient,
		ConnManager:    connManager,
		HealthMonitor:  healthMonitor,
		WarningService: warningsService,
	})
	if dir := os.Getenv("TARSY_DASHBOARD_DIST"); dir != "" {
		server.SetDashboardDir(dir)
		slog.Info("Serving dashboard", "dir", dir)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := settings.ListenAddr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("TARSy started successfully",
		"max_concurrent_alerts", settings.MaxConcurrentAlerts)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop accepting new alerts first, then drain in-flight processing.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, settings.AlertProcessingTimeout)
	defer drainCancel()
	if err := alerts.Shutdown(drainCtx); err != nil {
		slog.Warn("Alert drain incomplete, sessions will be orphan-recovered on restart",
			"error", err)
	}

	slog.Info("Shutdown complete")
}
