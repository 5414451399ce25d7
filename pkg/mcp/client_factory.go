package mcp

import (
	"context"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/masking"
)

// Compile-time check that ClientFactory satisfies the agent factory seam.
var _ agent.ToolExecutorFactory = (*ClientFactory)(nil)

// ClientFactory creates MCP clients and stage-scoped tool executors. One
// factory serves the whole process; clients are scoped to an alert
// processing session and executors to a single stage execution.
type ClientFactory struct {
	registry *config.MCPServerRegistry
	masker   *masking.MaskingService
	bus      *hooks.Bus

	// createClientFn is a test seam replacing the connect path; nil means
	// newClient + Initialize.
	createClientFn func(ctx context.Context, serverIDs []string) (*Client, error)
}

// NewClientFactory creates a new factory. masker and bus may be nil, which
// disables result masking and interaction recording respectively.
func NewClientFactory(registry *config.MCPServerRegistry, masker *masking.MaskingService, bus *hooks.Bus) *ClientFactory {
	return &ClientFactory{registry: registry, masker: masker, bus: bus}
}

// CreateClient creates a new Client connected to the specified servers.
// The caller is responsible for calling Close() when done.
func (f *ClientFactory) CreateClient(ctx context.Context, serverIDs []string) (*Client, error) {
	if f.createClientFn != nil {
		return f.createClientFn(ctx, serverIDs)
	}
	client := newClient(f.registry)
	if err := client.Initialize(ctx, serverIDs); err != nil {
		_ = client.Close() // Clean up partial initialization
		return nil, err
	}
	return client, nil
}

// NewStageExecutor wraps a session's existing client in an executor scoped
// to one stage execution. The executor does not own the client; closing it
// leaves the client's sessions open for later stages.
func (f *ClientFactory) NewStageExecutor(client *Client, scope ExecutorScope) *ToolExecutor {
	return newToolExecutor(client, f.registry, scope, f.masker, f.bus, false)
}

// CreateToolExecutor creates an executor with its own dedicated client.
// Closing the executor closes the client.
func (f *ClientFactory) CreateToolExecutor(ctx context.Context, scope ExecutorScope) (*ToolExecutor, error) {
	client, err := f.CreateClient(ctx, scope.ServerIDs)
	if err != nil {
		return nil, err
	}
	return newToolExecutor(client, f.registry, scope, f.masker, f.bus, true), nil
}

// CreateStageExecutor implements the agent package's executor factory seam.
func (f *ClientFactory) CreateStageExecutor(ctx context.Context, sessionID, stageExecutionID string, serverIDs []string) (agent.ToolExecutor, error) {
	return f.CreateToolExecutor(ctx, ExecutorScope{
		SessionID:        sessionID,
		StageExecutionID: stageExecutionID,
		ServerIDs:        serverIDs,
	})
}
