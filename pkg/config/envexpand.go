package config

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR}} references in raw config data with values
// from the process environment. Unknown variables expand to the empty string.
// On template parse or execution errors the original data is returned
// unchanged so the YAML parser can produce a clearer error message.
func ExpandEnv(data []byte) []byte {
	return expandWithEnv(data, environMap())
}

// expandWithEnv is the testable core of ExpandEnv.
func expandWithEnv(data []byte, vars map[string]string) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		slog.Warn("Skipping environment expansion, template parse failed", "error", err)
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		slog.Warn("Skipping environment expansion, template execution failed", "error", err)
		return data
	}

	return buf.Bytes()
}

// environMap converts os.Environ() key=value pairs into a map for templating.
func environMap() map[string]string {
	env := os.Environ()
	vars := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}
