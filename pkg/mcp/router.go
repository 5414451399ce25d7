package mcp

import (
	"fmt"
	"regexp"
	"strings"
)

// toolNameRegex enforces the canonical "server.tool" shape. Each side must
// start with a word character; word characters and hyphens may follow.
var toolNameRegex = regexp.MustCompile(`^([\w][\w-]*)\.([\w][\w-]*)$`)

// NormalizeToolName maps provider tool-name spellings back to the
// canonical "server.tool". Provider APIs reject dots in function names, so
// native tool calling advertises "server__tool"; ReAct text already uses
// the canonical form. Only the first "__" separates server from tool.
func NormalizeToolName(name string) string {
	if strings.Contains(name, "__") && !strings.Contains(name, ".") {
		return strings.Replace(name, "__", ".", 1)
	}
	return name
}

// SplitToolName splits a canonical "server.tool" name into its parts,
// rejecting anything that does not match the strict shape.
func SplitToolName(name string) (serverID, toolName string, err error) {
	matches := toolNameRegex.FindStringSubmatch(name)
	if matches == nil {
		return "", "", fmt.Errorf(
			"invalid tool name %q: must be in 'server.tool' format "+
				"(e.g., 'kubernetes-server.get_pods')", name)
	}
	return matches[1], matches[2], nil
}
