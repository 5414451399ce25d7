package masking

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedSecretValue replaces the data sections of masked Kubernetes Secrets.
const MaskedSecretValue = "[MASKED_SECRET_DATA]"

// Cheap pre-checks so Mask only runs on output that plausibly contains a
// Secret or SecretList resource.
var (
	yamlSecretKind = regexp.MustCompile(`(?m)^kind:\s*Secret(?:List)?\s*$`)
	jsonSecretKind = regexp.MustCompile(`"kind"\s*:\s*"Secret(?:List)?"`)
)

// KubernetesSecretMasker masks the data and stringData sections of Kubernetes
// Secret resources while leaving ConfigMaps and other kinds untouched. It
// handles single resources, multi-document YAML streams, and List/SecretList
// resources containing Secret items.
type KubernetesSecretMasker struct{}

func (m *KubernetesSecretMasker) Name() string { return "kubernetes_secret" }

// AppliesTo reports whether the data looks like it contains a Secret resource.
func (m *KubernetesSecretMasker) AppliesTo(data string) bool {
	if !strings.Contains(data, "Secret") {
		return false
	}
	return yamlSecretKind.MatchString(data) || jsonSecretKind.MatchString(data)
}

// Mask parses the data as JSON or YAML and masks any Secret resources found.
// Unparseable or unchanged data is returned as-is.
func (m *KubernetesSecretMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)

	// JSON is valid YAML, so try JSON first when the input looks like JSON.
	// Otherwise the YAML path would re-serialize kubectl -o json output as YAML.
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}

	if masked := m.maskYAML(data); masked != data {
		return masked
	}

	return data
}

// maskYAML decodes a possibly multi-document YAML stream, masks Secret
// resources, and re-encodes. Any decode or encode error returns the original.
func (m *KubernetesSecretMasker) maskYAML(data string) string {
	decoder := yaml.NewDecoder(strings.NewReader(data))
	var docs []map[string]any
	changed := false

	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return data
		}
		if doc == nil {
			continue
		}
		if maskResource(doc) {
			changed = true
		}
		docs = append(docs, doc)
	}

	if !changed || len(docs) == 0 {
		return data
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	for _, doc := range docs {
		if err := encoder.Encode(doc); err != nil {
			return data
		}
	}
	if err := encoder.Close(); err != nil {
		return data
	}

	// yaml.Encoder always emits a trailing newline; keep it only when the
	// original had one.
	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

// maskJSON parses a JSON object, masks Secret resources, and re-encodes with
// the two-space indentation kubectl uses.
func (m *KubernetesSecretMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}

	if !maskResource(obj) {
		return data
	}

	result, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}

	output := string(result)
	if strings.HasSuffix(data, "\n") {
		output += "\n"
	}
	return output
}

// maskResource masks Secret content in a parsed Kubernetes resource and
// reports whether anything was masked. Plain Secrets are masked directly;
// List kinds, SecretList included, are scanned for Secret items so item
// annotations get masked too.
func maskResource(resource map[string]any) bool {
	kind, _ := resource["kind"].(string)
	switch {
	case kind == "Secret":
		maskSecretFields(resource)
		maskAnnotationSecrets(resource)
		return true
	case strings.HasSuffix(kind, "List"):
		masked := false
		for _, item := range listItems(resource) {
			if k, _ := item["kind"].(string); k != "Secret" {
				continue
			}
			maskSecretFields(item)
			maskAnnotationSecrets(item)
			masked = true
		}
		return masked
	}
	return false
}

// maskSecretFields collapses the data and stringData sections to the
// placeholder. The whole section is replaced rather than individual values
// since key names themselves can be sensitive.
func maskSecretFields(resource map[string]any) {
	for _, field := range []string{"data", "stringData"} {
		if _, ok := resource[field]; ok {
			resource[field] = MaskedSecretValue
		}
	}
}

// maskAnnotationSecrets masks Secret JSON embedded in annotation values.
// kubectl.kubernetes.io/last-applied-configuration commonly carries a full
// copy of the Secret including its data.
func maskAnnotationSecrets(resource map[string]any) {
	metadata, ok := resource["metadata"].(map[string]any)
	if !ok {
		return
	}
	annotations, ok := metadata["annotations"].(map[string]any)
	if !ok {
		return
	}

	for key, val := range annotations {
		strVal, ok := val.(string)
		if !ok || !strings.Contains(strVal, "Secret") {
			continue
		}

		var embedded map[string]any
		if err := json.Unmarshal([]byte(strVal), &embedded); err != nil {
			continue
		}
		if kind, _ := embedded["kind"].(string); kind != "Secret" {
			continue
		}

		maskSecretFields(embedded)
		masked, err := json.Marshal(embedded)
		if err != nil {
			continue
		}
		annotations[key] = string(masked)
	}
}

// listItems returns the items of a List resource that decoded as maps.
func listItems(resource map[string]any) []map[string]any {
	items, ok := resource["items"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
