package convstore

import "encoding/json"

// stringifyToolInput renders a tool_input map deterministically.
// encoding/json marshals map[string]any keys in sorted order, so the same
// input always produces the same embedded text — required since
// ToolUse.EmbedText feeds the embedder and must be stable across calls.
func stringifyToolInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}
