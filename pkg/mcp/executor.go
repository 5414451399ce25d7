package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/masking"
	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// Compile-time check that ToolExecutor implements agent.ToolExecutor.
var _ agent.ToolExecutor = (*ToolExecutor)(nil)

// ExecutorScope ties a ToolExecutor to one stage execution: which servers
// and tools the agent may reach, and the identifiers stamped on every
// recorded interaction.
type ExecutorScope struct {
	SessionID        string
	StageExecutionID string

	// ServerIDs is the resolved allow-list of MCP servers for this stage.
	ServerIDs []string

	// ToolFilter optionally narrows tools per server. nil or an empty
	// slice for a server means all of its tools are available.
	ToolFilter map[string][]string
}

// ToolExecutor implements agent.ToolExecutor backed by real MCP servers.
// One instance per stage execution: the tool listing is memoized for the
// stage's lifetime and every interaction carries the stage's identifiers.
// The underlying Client is shared across the session's stages unless the
// executor was created with its own client.
type ToolExecutor struct {
	client   *Client
	registry *config.MCPServerRegistry
	scope    ExecutorScope
	masker   *masking.MaskingService
	bus      *hooks.Bus

	ownsClient bool

	// Memoized listing for this stage.
	listMu   sync.Mutex
	listed   []llm.ToolDefinition
	listDone bool

	// Compiled argument schemas keyed "server.tool", built lazily from the
	// raw schemas captured at listing time.
	schemaMu   sync.Mutex
	rawSchemas map[string]json.RawMessage
	schemas    map[string]*jsonschema.Schema
}

func newToolExecutor(
	client *Client,
	registry *config.MCPServerRegistry,
	scope ExecutorScope,
	masker *masking.MaskingService,
	bus *hooks.Bus,
	ownsClient bool,
) *ToolExecutor {
	return &ToolExecutor{
		client:     client,
		registry:   registry,
		scope:      scope,
		masker:     masker,
		bus:        bus,
		ownsClient: ownsClient,
		rawSchemas: make(map[string]json.RawMessage),
		schemas:    make(map[string]*jsonschema.Schema),
	}
}

// ListTools returns all tools the stage may use, names prefixed
// "server.tool". A failure on any allowed server fails the listing: an
// agent running with a silently missing toolset produces worse analysis
// than a failed stage. The result is memoized for the stage.
func (e *ToolExecutor) ListTools(ctx context.Context) ([]llm.ToolDefinition, error) {
	e.listMu.Lock()
	defer e.listMu.Unlock()
	if e.listDone {
		return e.listed, nil
	}

	var all []llm.ToolDefinition
	for _, serverID := range e.scope.ServerIDs {
		tools, err := e.listServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		all = append(all, tools...)
	}

	e.listed = all
	e.listDone = true
	return all, nil
}

// listServer lists one server's tools, applies the tool filter, captures
// raw argument schemas for later validation, and records the interaction.
func (e *ToolExecutor) listServer(ctx context.Context, serverID string) ([]llm.ToolDefinition, error) {
	start := time.Now()
	interaction := e.newInteraction(serverID, models.CommunicationTypeToolList,
		fmt.Sprintf("List tools from %s", serverID))
	e.trigger(ctx, hooks.EventMCPPre, interaction)

	tools, err := e.client.ListTools(ctx, serverID)
	if err != nil {
		e.recordFailure(ctx, interaction, time.Since(start), err.Error())
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	filter := e.scope.ToolFilter[serverID]
	var defs []llm.ToolDefinition
	available := make([]any, 0, len(tools))
	for _, tool := range tools {
		if len(filter) > 0 && !slices.Contains(filter, tool.Name) {
			continue
		}
		name := fmt.Sprintf("%s.%s", serverID, tool.Name)
		schema := marshalSchema(tool.InputSchema)
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: tool.Description,
			InputSchema: schema,
		})
		available = append(available, map[string]any{
			"name":        name,
			"description": tool.Description,
		})
		if len(schema) > 0 {
			e.schemaMu.Lock()
			e.rawSchemas[name] = schema
			e.schemaMu.Unlock()
		}
	}

	done := e.newInteraction(serverID, models.CommunicationTypeToolList,
		fmt.Sprintf("List tools from %s", serverID))
	done.CommunicationID = interaction.CommunicationID
	done.DurationMs = time.Since(start).Milliseconds()
	done.Success = true
	done.AvailableTools = available
	e.trigger(ctx, hooks.EventMCPPost, done)

	return defs, nil
}

// Execute runs a tool call via MCP.
//
// Failures the model can act on (unknown server, filtered tool, bad
// arguments, tool-level errors) come back as ToolResult{IsError: true} so
// the controller can feed them to the next iteration as observations; a Go
// error is reserved for infrastructure that could not attempt the call.
// Every outcome is recorded through mcp hooks.
func (e *ToolExecutor) Execute(ctx context.Context, call llm.ToolCall) (*agent.ToolResult, error) {
	name := NormalizeToolName(call.Name)

	serverID, toolName, err := e.resolveToolCall(name)
	if err != nil {
		e.recordRejection(ctx, serverID, call, err.Error())
		return errorResult(call, err.Error()), nil
	}

	args, err := ParseActionInput(call.Arguments)
	if err != nil {
		msg := fmt.Sprintf("Failed to parse tool arguments: %s", err)
		e.recordRejection(ctx, serverID, call, msg)
		return errorResult(call, msg), nil
	}

	start := time.Now()
	interaction := e.newInteraction(serverID, models.CommunicationTypeToolCall,
		fmt.Sprintf("Call %s", name))
	interaction.ToolName = &toolName
	interaction.ToolArguments = args
	e.trigger(ctx, hooks.EventMCPPre, interaction)

	if err := e.validateArguments(ctx, serverID, toolName, args); err != nil {
		msg := fmt.Sprintf("Invalid arguments for %s: %s", name, err)
		metrics.MCPCalls.WithLabelValues(serverID, "rejected").Inc()
		failed := e.callInteraction(interaction, toolName, args, time.Since(start))
		failed.ErrorMessage = &msg
		e.trigger(ctx, hooks.EventMCPError, failed)
		return errorResult(call, msg), nil
	}

	result, err := e.client.CallTool(ctx, serverID, toolName, args)
	elapsed := time.Since(start)
	if err != nil {
		msg := fmt.Sprintf("MCP tool execution failed: %s", err)
		metrics.MCPCalls.WithLabelValues(serverID, "error").Inc()
		failed := e.callInteraction(interaction, toolName, args, elapsed)
		failed.ErrorMessage = &msg
		e.trigger(ctx, hooks.EventMCPError, failed)
		slog.Warn("MCP tool call failed",
			"server", serverID, "tool", toolName, "error", err)
		return errorResult(call, msg), nil
	}

	content := flattenToolResult(result)
	if e.masker != nil {
		content = e.masker.MaskToolResult(content, serverID)
	}

	done := e.callInteraction(interaction, toolName, args, elapsed)
	done.ToolResult = map[string]any{
		"content":  TruncateForStorage(content),
		"is_error": result.IsError,
	}
	if result.IsError {
		msg := "tool reported an error"
		done.ErrorMessage = &msg
		metrics.MCPCalls.WithLabelValues(serverID, "tool_error").Inc()
		e.trigger(ctx, hooks.EventMCPError, done)
	} else {
		done.Success = true
		metrics.MCPCalls.WithLabelValues(serverID, "success").Inc()
		e.trigger(ctx, hooks.EventMCPPost, done)
	}

	// Summarization of oversized results happens at the controller level,
	// which has LLM access; here the full (masked) content goes back.
	return &agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
		IsError: result.IsError,
	}, nil
}

// Close releases the underlying client only when this executor owns it.
// Stage executors share the session's client and leave it open.
func (e *ToolExecutor) Close() error {
	if e.ownsClient && e.client != nil {
		return e.client.Close()
	}
	return nil
}

// resolveToolCall validates a tool call against the executor's scope.
func (e *ToolExecutor) resolveToolCall(name string) (serverID, toolName string, err error) {
	serverID, toolName, err = SplitToolName(name)
	if err != nil {
		return "", "", err
	}

	if !slices.Contains(e.scope.ServerIDs, serverID) {
		return serverID, "", fmt.Errorf(
			"MCP server %q is not allowed for this execution. "+
				"Available servers: %s", serverID, strings.Join(e.scope.ServerIDs, ", "))
	}

	if filter := e.scope.ToolFilter[serverID]; len(filter) > 0 {
		if !slices.Contains(filter, toolName) {
			return serverID, "", fmt.Errorf(
				"tool %q is not available on server %q. "+
					"Available tools: %s", toolName, serverID, strings.Join(filter, ", "))
		}
	}

	return serverID, toolName, nil
}

// validateArguments checks parsed arguments against the tool's JSON schema
// when one was advertised. Unknown tools and schema compilation failures
// skip validation; the server is the final authority.
func (e *ToolExecutor) validateArguments(ctx context.Context, serverID, toolName string, args map[string]any) error {
	schema := e.compiledSchema(ctx, serverID, toolName)
	if schema == nil {
		return nil
	}

	// Round-trip through JSON so coerced values (int64 from key=value
	// parsing) validate the same way decoded JSON would.
	payload, err := json.Marshal(args)
	if err != nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}
	return schema.Validate(decoded)
}

// compiledSchema returns the compiled argument schema for server.tool, or
// nil when no schema is known. Raw schemas are captured at listing time;
// when Execute runs before ListTools the server's cached tool list fills
// the gap.
func (e *ToolExecutor) compiledSchema(ctx context.Context, serverID, toolName string) *jsonschema.Schema {
	name := serverID + "." + toolName

	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if compiled, ok := e.schemas[name]; ok {
		return compiled
	}

	raw, ok := e.rawSchemas[name]
	if !ok {
		tools, err := e.client.ListTools(ctx, serverID)
		if err != nil {
			return nil
		}
		for _, tool := range tools {
			if tool.Name == toolName {
				raw = marshalSchema(tool.InputSchema)
				break
			}
		}
		if len(raw) == 0 {
			return nil
		}
		e.rawSchemas[name] = raw
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		slog.Debug("Tool schema failed to compile, skipping validation",
			"tool", name, "error", err)
		return nil
	}
	e.schemas[name] = compiled
	return compiled
}

// recordRejection records a call that never reached a server (allow-list
// violation or unparseable arguments) as a failed interaction. Recorded
// interactions need a server name, so unresolvable calls get "unknown".
func (e *ToolExecutor) recordRejection(ctx context.Context, serverID string, call llm.ToolCall, msg string) {
	if serverID == "" {
		serverID = "unknown"
	}
	interaction := e.newInteraction(serverID, models.CommunicationTypeToolCall,
		fmt.Sprintf("Call %s", call.Name))
	toolName := call.Name
	interaction.ToolName = &toolName
	interaction.ErrorMessage = &msg
	e.trigger(ctx, hooks.EventMCPError, interaction)
	metrics.MCPCalls.WithLabelValues(serverID, "rejected").Inc()
}

func (e *ToolExecutor) recordFailure(ctx context.Context, pre *models.MCPInteraction, elapsed time.Duration, msg string) {
	failed := e.newInteraction(pre.ServerName, pre.CommunicationType, pre.StepDescription)
	failed.CommunicationID = pre.CommunicationID
	failed.DurationMs = elapsed.Milliseconds()
	failed.ErrorMessage = &msg
	e.trigger(ctx, hooks.EventMCPError, failed)
}

// callInteraction builds the post/error interaction for a tool call,
// sharing the pre interaction's communication id.
func (e *ToolExecutor) callInteraction(pre *models.MCPInteraction, toolName string, args map[string]any, elapsed time.Duration) *models.MCPInteraction {
	done := e.newInteraction(pre.ServerName, models.CommunicationTypeToolCall, pre.StepDescription)
	done.CommunicationID = pre.CommunicationID
	done.ToolName = &toolName
	done.ToolArguments = args
	done.DurationMs = elapsed.Milliseconds()
	return done
}

func (e *ToolExecutor) newInteraction(serverID string, commType models.CommunicationType, step string) *models.MCPInteraction {
	interaction := &models.MCPInteraction{
		CommunicationID:   uuid.NewString(),
		SessionID:         e.scope.SessionID,
		TimestampUs:       models.NowUs(),
		ServerName:        serverID,
		CommunicationType: commType,
		StepDescription:   step,
	}
	if e.scope.StageExecutionID != "" {
		stageID := e.scope.StageExecutionID
		interaction.StageExecutionID = &stageID
	}
	return interaction
}

func (e *ToolExecutor) trigger(ctx context.Context, event string, interaction *models.MCPInteraction) {
	if e.bus == nil {
		return
	}
	e.bus.Trigger(ctx, event, &hooks.Payload{
		SessionID:        e.scope.SessionID,
		StageExecutionID: e.scope.StageExecutionID,
		StepDescription:  interaction.StepDescription,
		TimestampUs:      interaction.TimestampUs,
		MCP:              interaction,
	})
}

func errorResult(call llm.ToolCall, msg string) *agent.ToolResult {
	return &agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: msg,
		IsError: true,
	}
}

// flattenToolResult renders an MCP result as text for the conversation.
// Structured content wins and is pretty-printed; otherwise text content
// items are concatenated. Non-text items (images, embedded resources) are
// skipped.
func flattenToolResult(result *mcpsdk.CallToolResult) string {
	if result.StructuredContent != nil {
		if data, err := json.MarshalIndent(result.StructuredContent, "", "  "); err == nil {
			return string(data)
		}
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

// marshalSchema serializes a tool's InputSchema for prompt rendering and
// argument validation.
func marshalSchema(schema any) json.RawMessage {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return nil
	}
	return data
}
