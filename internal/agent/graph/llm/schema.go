package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// parametersOf renders a tool's parameters as a JSON schema object.
func parametersOf(info *schema.ToolInfo) (map[string]any, error) {
	out := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if info == nil || info.ParamsOneOf == nil {
		return out, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", info.Name, err)
	}
	if js == nil {
		return out, nil
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", info.Name, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("tool %s: %w", info.Name, err)
	}
	return out, nil
}

func requiredOf(params map[string]any) []string {
	switch v := params["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// argumentsOf decodes a tool call's argument string for providers that
// want structured input. Anything unparsable becomes an empty object.
func argumentsOf(raw string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// isErrorResult mirrors the dispatcher's convention for failed tool calls.
func isErrorResult(content string) bool {
	return strings.HasPrefix(content, "error:")
}
