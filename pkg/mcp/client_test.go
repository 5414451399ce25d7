package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// emptySchema is a minimal valid JSON Schema for test tools.
var emptySchema = json.RawMessage(`{"type":"object"}`)

// textTool returns a handler that always answers with the given text.
func textTool(text string) mcpsdk.ToolHandler {
	return func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

// testMCPServer holds an in-memory MCP server and its transport pair.
type testMCPServer struct {
	server          *mcpsdk.Server
	clientTransport *mcpsdk.InMemoryTransport
	serverTransport *mcpsdk.InMemoryTransport
}

// startTestServer runs an in-memory MCP server exposing the given tools.
func startTestServer(t *testing.T, name string, tools map[string]mcpsdk.ToolHandler) *testMCPServer {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name: name, Version: "test",
	}, nil)

	for toolName, handler := range tools {
		server.AddTool(&mcpsdk.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: emptySchema,
		}, handler)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	go func() {
		_ = server.Run(context.Background(), serverTransport)
	}()

	return &testMCPServer{
		server:          server,
		clientTransport: clientTransport,
		serverTransport: serverTransport,
	}
}

// newConnectedClient wires a Client to a pre-built in-memory transport,
// sidestepping the registry and createTransport path.
func newConnectedClient(t *testing.T, serverID string, transport *mcpsdk.InMemoryTransport) *Client {
	t.Helper()
	ctx := context.Background()

	client := newClient(config.NewMCPServerRegistry(nil))

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name: "tarsy-test", Version: "test",
	}, nil)

	session, err := sdkClient.Connect(ctx, transport, nil)
	require.NoError(t, err)

	client.InjectSession(serverID, sdkClient, session)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_ListTools(t *testing.T) {
	t.Run("lists server tools", func(t *testing.T) {
		ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
			"get_pods": textTool("ok"),
			"get_logs": textTool("ok"),
		})
		client := newConnectedClient(t, "kubernetes", ts.clientTransport)

		tools, err := client.ListTools(context.Background(), "kubernetes")
		require.NoError(t, err)
		require.Len(t, tools, 2)

		names := []string{tools[0].Name, tools[1].Name}
		assert.Contains(t, names, "get_pods")
		assert.Contains(t, names, "get_logs")
	})

	t.Run("second call served from cache", func(t *testing.T) {
		ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
			"get_pods": textTool("ok"),
		})
		client := newConnectedClient(t, "kubernetes", ts.clientTransport)
		ctx := context.Background()

		first, err := client.ListTools(ctx, "kubernetes")
		require.NoError(t, err)
		second, err := client.ListTools(ctx, "kubernetes")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("unknown server", func(t *testing.T) {
		client := newClient(config.NewMCPServerRegistry(nil))

		_, err := client.ListTools(context.Background(), "nonexistent")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no session")
	})
}

func TestClient_CallTool(t *testing.T) {
	t.Run("returns text content", func(t *testing.T) {
		ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
			"get_pods": textTool("pod-1\npod-2"),
		})
		client := newConnectedClient(t, "kubernetes", ts.clientTransport)

		result, err := client.CallTool(context.Background(), "kubernetes", "get_pods", map[string]any{})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 1)

		tc, ok := result.Content[0].(*mcpsdk.TextContent)
		require.True(t, ok)
		assert.Equal(t, "pod-1\npod-2", tc.Text)
	})

	t.Run("tool error is a result, not a Go error", func(t *testing.T) {
		ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
			"bad_tool": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return &mcpsdk.CallToolResult{
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "tool error: invalid namespace"}},
					IsError: true,
				}, nil
			},
		})
		client := newConnectedClient(t, "kubernetes", ts.clientTransport)

		result, err := client.CallTool(context.Background(), "kubernetes", "bad_tool", map[string]any{})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("unknown server", func(t *testing.T) {
		client := newClient(config.NewMCPServerRegistry(nil))

		_, err := client.CallTool(context.Background(), "nonexistent", "tool", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no session")
	})
}

func TestClient_HasSession(t *testing.T) {
	ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
		"ping": textTool("pong"),
	})
	client := newConnectedClient(t, "kubernetes", ts.clientTransport)

	assert.True(t, client.HasSession("kubernetes"))
	assert.False(t, client.HasSession("nonexistent"))
}

func TestClient_FailedServers(t *testing.T) {
	client := newClient(config.NewMCPServerRegistry(nil))

	// Initialize records per-server failures instead of failing outright.
	err := client.Initialize(context.Background(), []string{"nonexistent-server"})
	require.NoError(t, err)

	assert.Contains(t, client.FailedServers(), "nonexistent-server")
}

func TestClient_Close(t *testing.T) {
	ts := startTestServer(t, "test-server", map[string]mcpsdk.ToolHandler{
		"ping": textTool("pong"),
	})
	client := newConnectedClient(t, "kubernetes", ts.clientTransport)

	assert.True(t, client.HasSession("kubernetes"))

	require.NoError(t, client.Close())
	assert.False(t, client.HasSession("kubernetes"))
}
