package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

// WriteTool creates or overwrites a file with the given content.
type WriteTool struct{}

func (t *WriteTool) Name() string        { return "Write" }
func (t *WriteTool) Description() string { return "Write content to a file" }

func (t *WriteTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string"},
			"content":   map[string]any{"type": "string"},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, callID string, args map[string]any, _ ProgressSink) message.ToolResult {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return errorResult("file_path is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return errorResult("content is required")
	}
	filePath = resolvePath(filePath)

	existing, err := os.ReadFile(filePath)
	isNewFile := os.IsNotExist(err)
	if err != nil && !isNewFile {
		return errorResult("failed to check existing file: " + err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return errorResult("failed to create directory: " + err.Error())
	}
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return errorResult("failed to write file: " + err.Error())
	}

	details := computeDiff(filePath, string(existing), content)
	action := "Updated"
	if isNewFile {
		action = "Created"
	}
	lineCount := strings.Count(content, "\n") + 1

	return message.ToolResult{
		Content: []message.ContentBlock{message.Text(fmt.Sprintf("%s %s (%d lines)", action, filePath, lineCount))},
		Details: details,
	}
}

func init() {
	Register(&WriteTool{})
}
