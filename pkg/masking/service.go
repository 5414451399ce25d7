package masking

import (
	"log/slog"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

// MaskingService applies data masking to MCP tool results and alert payloads
// before they reach storage, the LLM, or the dashboard. Constructed once at
// startup; all patterns compile eagerly so request paths never compile regex.
// Safe for concurrent use.
type MaskingService struct {
	registry             *config.MCPServerRegistry
	patterns             map[string]*CompiledPattern // built-in + custom, by name
	patternGroups        map[string][]string         // group name -> pattern names
	codeMaskers          map[string]Masker           // registered structural maskers
	alertMasking         config.AlertMaskingDefaults // system-wide alert payload masking
	serverCustomPatterns map[string][]string         // serverID -> custom pattern keys
}

// NewMaskingService compiles all masking patterns and registers the built-in
// code maskers. Invalid patterns are logged and skipped, never fatal. A nil
// alertCfg disables alert payload masking.
func NewMaskingService(registry *config.MCPServerRegistry, alertCfg *config.AlertMaskingDefaults) *MaskingService {
	s := &MaskingService{
		registry:             registry,
		patterns:             make(map[string]*CompiledPattern),
		patternGroups:        config.GetBuiltinConfig().PatternGroups,
		codeMaskers:          make(map[string]Masker),
		serverCustomPatterns: make(map[string][]string),
	}
	if alertCfg != nil {
		s.alertMasking = *alertCfg
	}

	s.compileBuiltinPatterns()
	s.compileCustomPatterns()
	s.registerMasker(&KubernetesSecretMasker{})

	slog.Info("Masking service initialized",
		"builtin_patterns", len(config.GetBuiltinConfig().MaskingPatterns),
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers),
		"alert_masking_enabled", s.alertMasking.Enabled)

	return s
}

// MaskToolResult applies the masking configured for an MCP server to a tool
// result. Masking failures redact the entire result (fail-closed): a lost
// tool result is recoverable, a leaked credential is not.
func (s *MaskingService) MaskToolResult(content string, serverID string) string {
	if content == "" {
		return content
	}

	serverCfg, err := s.registry.Get(serverID)
	if err != nil || serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
		return content
	}

	resolved := s.resolvePatterns(serverCfg.DataMasking, serverID)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return content
	}

	masked, err := s.applyMasking(content, resolved)
	if err != nil {
		slog.Error("Masking failed, redacting content (fail-closed)",
			"server", serverID, "error", err)
		return "[REDACTED: data masking failure, tool result could not be safely processed]"
	}

	return masked
}

// MaskAlertData masks an alert payload using the system-wide pattern group.
// Alert masking is fail-open: on failure the original data passes through,
// since dropping an alert entirely would be worse than a possible leak in
// operator-supplied data.
func (s *MaskingService) MaskAlertData(data string) string {
	if !s.alertMasking.Enabled || data == "" {
		return data
	}

	resolved := s.resolvePatternsFromGroup(s.alertMasking.PatternGroup)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return data
	}

	masked, err := s.applyMasking(data, resolved)
	if err != nil {
		slog.Error("Alert masking failed, continuing with unmasked data (fail-open)",
			"error", err)
		return data
	}

	return masked
}

// applyMasking runs code maskers first (structural, more precise), then the
// regex patterns as a general sweep over whatever remains.
func (s *MaskingService) applyMasking(content string, resolved *resolvedPatterns) (string, error) {
	masked := content

	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked, nil
}

func (s *MaskingService) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
