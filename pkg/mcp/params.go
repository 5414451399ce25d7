package mcp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseActionInput turns the free-form Action Input text a model produced
// into structured tool arguments. Models emit anything from strict JSON to
// YAML fragments to bare "key: value" lines, so parsing cascades and the
// first successful stage wins:
//
//  1. JSON object
//  2. other JSON values (string, number, array), wrapped as {"input": v}
//  3. YAML, accepted only when it carries nesting or lists
//  4. "key: value" / "key=value" pairs split on commas and newlines
//  5. the raw string itself, wrapped as {"input": s}
//
// Empty input yields an empty map so tools without parameters work.
func ParseActionInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}

	if args, ok := parseJSON(input); ok {
		return args, nil
	}
	if args, ok := parseYAML(input); ok {
		return args, nil
	}
	if args, ok := parsePairs(input); ok {
		return args, nil
	}
	return map[string]any{"input": input}, nil
}

// parseJSON handles stages 1 and 2 of the cascade. The first byte gates
// the attempt so plain prose never pays for a full unmarshal.
func parseJSON(input string) (map[string]any, bool) {
	switch input[0] {
	case '{', '[', '"', '-', 't', 'f', 'n',
		'0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return nil, false
	}

	var value any
	if err := json.Unmarshal([]byte(input), &value); err != nil {
		return nil, false
	}
	if m, ok := value.(map[string]any); ok {
		return m, true
	}
	return map[string]any{"input": value}, true
}

// parseYAML accepts YAML only when the result contains a list or a nested
// map. Flat "key: value" text is left for parsePairs, which would
// otherwise lose against YAML on ordinary prose that happens to contain a
// colon.
func parseYAML(input string) (map[string]any, bool) {
	var result map[string]any
	if err := yaml.Unmarshal([]byte(input), &result); err != nil {
		return nil, false
	}
	if len(result) == 0 {
		return nil, false
	}
	for _, v := range result {
		switch v.(type) {
		case []any, map[string]any:
			return result, true
		}
	}
	return nil, false
}

// parsePairs splits the input on commas and newlines and parses each piece
// as "key: value" or "key=value". A single piece that fails rejects the
// whole input; it then falls through to the raw-string stage. Values that
// themselves contain commas mis-split here, which also lands them in the
// raw-string stage.
func parsePairs(input string) (map[string]any, bool) {
	normalized := strings.ReplaceAll(input, "\n", ",")

	result := make(map[string]any)
	for _, piece := range strings.Split(normalized, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		key, value, ok := splitPair(piece)
		if !ok {
			return nil, false
		}
		result[key] = coerceValue(value)
	}

	if len(result) == 0 {
		return nil, false
	}
	return result, true
}

// splitPair splits one "key: value" or "key=value" piece. The key must be
// a bare identifier; a key containing spaces means the piece is prose.
func splitPair(piece string) (key, value string, ok bool) {
	for _, sep := range []string{":", "="} {
		idx := strings.Index(piece, sep)
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(piece[:idx])
		if k == "" || strings.Contains(k, " ") {
			continue
		}
		return k, strings.TrimSpace(piece[idx+1:]), true
	}
	return "", "", false
}

// coerceValue maps a bare string value onto the JSON type it spells:
// booleans, null/none, integers, then floats. NaN and infinities stay
// strings because they cannot be represented in a JSON tool call.
func coerceValue(s string) any {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s
		}
		return f
	}
	return s
}
