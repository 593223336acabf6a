package message

import (
	"bytes"
	"encoding/json"
)

// parseToolInput decodes a provider's raw JSON tool-call arguments into
// the mapping ToolCall.Arguments expects. Empty input is a valid "no
// arguments" call, not an error.
func parseToolInput(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
