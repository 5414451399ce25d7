package prompt

import (
	"log/slog"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/agent"
)

// ComposeInstructions builds the three-tier instruction set for an
// investigation agent: general SRE instructions, then per-server
// instructions for every allowed MCP server that declares any, then the
// agent's custom instructions.
func (b *Builder) ComposeInstructions(stageCtx *agent.StageContext) string {
	sections := []string{generalInstructions}
	sections = b.appendServerInstructions(sections, stageCtx.Config.MCPServers)
	if stageCtx.Config.CustomInstructions != "" {
		sections = append(sections, "## Agent-Specific Instructions\n\n"+stageCtx.Config.CustomInstructions)
	}
	return strings.Join(sections, "\n\n")
}

// composeFinalAnalysisInstructions builds the system prompt for the
// tool-less final analysis stage: the no-tools general instructions plus
// custom instructions. Server instructions are skipped since no tools are
// reachable.
func (b *Builder) composeFinalAnalysisInstructions(stageCtx *agent.StageContext) string {
	sections := []string{finalAnalysisGeneralInstructions}
	if stageCtx.Config.CustomInstructions != "" {
		sections = append(sections, "## Agent-Specific Instructions\n\n"+stageCtx.Config.CustomInstructions)
	}
	return strings.Join(sections, "\n\n")
}

// appendServerInstructions adds Tier 2 per-server instructions.
func (b *Builder) appendServerInstructions(sections []string, serverIDs []string) []string {
	for _, serverID := range serverIDs {
		serverConfig, err := b.mcpRegistry.Get(serverID)
		if err != nil {
			slog.Debug("MCP server not found in registry, skipping instructions",
				"server", serverID, "error", err)
			continue
		}
		if serverConfig.Instructions != "" {
			sections = append(sections, "## "+serverID+" Instructions\n\n"+serverConfig.Instructions)
		}
	}
	return sections
}
