// Package e2e boots a complete engine instance over a real Postgres schema
// and in-memory MCP servers, driving it through the public HTTP API.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/agent/controller"
	"github.com/tarsy-bot/tarsy/pkg/agent/prompt"
	"github.com/tarsy-bot/tarsy/pkg/alert"
	"github.com/tarsy-bot/tarsy/pkg/api"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/events"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/mcp"
	"github.com/tarsy-bot/tarsy/pkg/runbook"
	"github.com/tarsy-bot/tarsy/pkg/services"
	tarsyslack "github.com/tarsy-bot/tarsy/pkg/slack"
	"github.com/tarsy-bot/tarsy/test/util"
)

// runbookContent is what the stubbed GitHub fetch returns for every URL.
const runbookContent = "# Kubernetes Troubleshooting Runbook\n\n1. Check pod status.\n2. Check recent events."

// runbookURL passes the default github.com domain allow-list.
const runbookURL = "https://github.com/tarsy-bot/runbooks/blob/main/kubernetes.md"

// TestApp is a fully wired engine instance for one test.
type TestApp struct {
	Config   *config.Config
	Settings *config.Settings
	DBClient *database.Client
	History  *services.HistoryService
	LLM      *ScriptedLLMClient
	Bus      *hooks.Bus
	Alerts   *alert.Service
	Server   *api.Server

	BaseURL string
	WSURL   string // ws://host:port, dashboard path appended by tests

	t *testing.T
}

type testAppConfig struct {
	cfg                 *config.Config
	llm                 *ScriptedLLMClient
	mcpServers          map[string]map[string]mcpsdk.ToolHandler
	maxConcurrentAlerts int
	processingTimeout   time.Duration
	slackService        *tarsyslack.Service
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig replaces the default single-chain configuration.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithLLM installs a pre-scripted model.
func WithLLM(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llm = client }
}

// WithMCPServers runs in-memory MCP servers, serverID to tool handlers.
func WithMCPServers(servers map[string]map[string]mcpsdk.ToolHandler) TestAppOption {
	return func(c *testAppConfig) { c.mcpServers = servers }
}

// WithMaxConcurrentAlerts caps parallel alert processing.
func WithMaxConcurrentAlerts(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxConcurrentAlerts = n }
}

// WithProcessingTimeout bounds end-to-end alert processing.
func WithProcessingTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.processingTimeout = d }
}

// WithSlackService wires a Slack notifier onto the hook bus, normally
// pointed at a mock API server.
func WithSlackService(svc *tarsyslack.Service) TestAppOption {
	return func(c *testAppConfig) { c.slackService = svc }
}

// NewTestApp starts a complete engine. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		maxConcurrentAlerts: 5,
		processingTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = DefaultTestConfig(t)
	}
	if tc.llm == nil {
		tc.llm = NewScriptedLLMClient()
	}

	settings := &config.Settings{
		Host:                   "127.0.0.1",
		CORSOrigins:            []string{"http://localhost:5173"},
		MaxConcurrentAlerts:    tc.maxConcurrentAlerts,
		AlertProcessingTimeout: tc.processingTimeout,
		LLMIterationTimeout:    10 * time.Second,
		HistoryEnabled:         true,
	}

	dbClient := util.SetupTestDatabase(t)
	history := services.NewHistoryService(dbClient)

	bus := hooks.NewBus(hooks.DefaultBusConfig())
	require.NoError(t, bus.Register("timeline-recorder", services.NewTimelineRecorder(history)))

	connManager := events.NewConnectionManager(5 * time.Second)
	require.NoError(t, bus.Register("dashboard-broadcaster", events.NewDashboardBroadcaster(connManager)))

	if tc.slackService != nil {
		require.NoError(t, bus.Register(tarsyslack.SubscriberName, tarsyslack.NewNotifier(tc.slackService)))
	}

	mcpFactory := newInMemoryMCPFactory(t, tc.cfg.MCPServerRegistry, bus, tc.mcpServers)

	// The manager wrap gives scripted calls the same llm.pre/llm.post hook
	// instrumentation production providers get, so the timeline recorder
	// and dashboard broadcaster see them.
	llmManager := llm.NewManagerWithClient(tc.llm, "test", "test-model", bus)

	agentFactory := agent.NewFactory(
		tc.cfg,
		settings.LLMIterationTimeout,
		controller.NewFactory(),
		func(string) (agent.LLMClient, error) { return llmManager, nil },
		mcpFactory,
		prompt.NewBuilder(tc.cfg.MCPServerRegistry),
	)

	runbooks := runbook.NewService(tc.cfg.Runbooks, "", "")
	runbooks.OverrideHTTPClientForTest(&http.Client{Transport: staticRunbookTransport{}})

	alerts := alert.NewService(tc.cfg, settings, history,
		runbooks, alert.NewAgentFactoryAdapter(agentFactory), bus)

	server := api.NewServer(tc.cfg, settings, alerts, history, api.Deps{
		DBClient:       dbClient,
		ConnManager:    connManager,
		WarningService: services.NewSystemWarningsService(),
	})

	httpSrv := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:   tc.cfg,
		Settings: settings,
		DBClient: dbClient,
		History:  history,
		LLM:      tc.llm,
		Bus:      bus,
		Alerts:   alerts,
		Server:   server,
		BaseURL:  httpSrv.URL,
		WSURL:    "ws" + strings.TrimPrefix(httpSrv.URL, "http"),
		t:        t,
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = alerts.Shutdown(shutdownCtx)
		httpSrv.Close()
		bus.Close()
	})

	return app
}

// DefaultTestConfig is a single kubernetes chain with an investigation stage
// and a tool-less final analysis stage.
func DefaultTestConfig(t *testing.T) *config.Config {
	t.Helper()

	maxIter := 5
	chains, err := config.NewChainRegistry(map[string]*config.ChainConfig{
		"kubernetes-chain": {
			AlertTypes:  []string{"kubernetes"},
			Description: "Kubernetes troubleshooting",
			Stages: []config.StageConfig{
				{Name: "investigation", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReact},
				{Name: "final-analysis", Agent: "KubernetesAgent", IterationStrategy: config.IterationStrategyReactFinalAnalysis},
			},
		},
	})
	require.NoError(t, err)

	return &config.Config{
		Defaults: &config.Defaults{
			LLMProvider:   "test-provider",
			MaxIterations: &maxIter,
		},
		Runbooks:      &config.RunbookConfig{AllowedDomains: []string{"github.com", "raw.githubusercontent.com"}},
		ChainRegistry: chains,
		AgentRegistry: config.NewAgentRegistry(map[string]*config.AgentConfig{
			"KubernetesAgent": {MCPServers: []string{"kubernetes-server"}},
		}),
		MCPServerRegistry: config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
			"kubernetes-server": {},
		}),
		LLMProviderRegistry: config.NewLLMProviderRegistry(map[string]*config.LLMProviderConfig{
			"test-provider": {Type: config.LLMProviderTypeAnthropic, Model: "test-model"},
		}),
	}
}

// SingleStageTestConfig is a kubernetes chain with one stage running the
// given strategy.
func SingleStageTestConfig(t *testing.T, strategy config.IterationStrategy, maxIterations int) *config.Config {
	t.Helper()

	cfg := DefaultTestConfig(t)
	cfg.Defaults.MaxIterations = &maxIterations

	chains, err := config.NewChainRegistry(map[string]*config.ChainConfig{
		"kubernetes-chain": {
			AlertTypes: []string{"kubernetes"},
			Stages: []config.StageConfig{
				{Name: "investigation", Agent: "KubernetesAgent", IterationStrategy: strategy},
			},
		},
	})
	require.NoError(t, err)
	cfg.ChainRegistry = chains
	return cfg
}

// newInMemoryMCPFactory builds a ClientFactory whose clients connect to
// in-memory MCP SDK servers instead of real transports. Each client gets a
// fresh session per server, mirroring the per-stage connect of production.
func newInMemoryMCPFactory(t *testing.T, registry *config.MCPServerRegistry, bus *hooks.Bus, servers map[string]map[string]mcpsdk.ToolHandler) *mcp.ClientFactory {
	t.Helper()

	sdkServers := make(map[string]*mcpsdk.Server, len(servers))
	for serverID, tools := range servers {
		server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverID, Version: "test"}, nil)
		for toolName, handler := range tools {
			server.AddTool(&mcpsdk.Tool{
				Name:        toolName,
				Description: "test tool: " + toolName,
				InputSchema: json.RawMessage(`{"type":"object"}`),
			}, handler)
		}
		sdkServers[serverID] = server
	}

	return mcp.NewTestClientFactory(registry, bus, func(c *mcp.Client) {
		for serverID, server := range sdkServers {
			clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
			go func() {
				_ = server.Run(context.Background(), serverTransport)
			}()

			sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "tarsy-e2e", Version: "test"}, nil)
			session, err := sdkClient.Connect(context.Background(), clientTransport, nil)
			require.NoError(t, err)
			c.InjectSession(serverID, sdkClient, session)
		}
	})
}

// staticRunbookTransport answers every GitHub fetch with runbookContent.
type staticRunbookTransport struct{}

func (staticRunbookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(runbookContent)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}
