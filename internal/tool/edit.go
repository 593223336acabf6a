package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

// EditTool performs exact string-replacement edits on an existing file.
type EditTool struct{}

func (t *EditTool) Name() string        { return "Edit" }
func (t *EditTool) Description() string { return "Edit file contents using string replacement" }

func (t *EditTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path":   map[string]any{"type": "string"},
			"old_string":  map[string]any{"type": "string"},
			"new_string":  map[string]any{"type": "string"},
			"replace_all": map[string]any{"type": "boolean"},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, callID string, args map[string]any, _ ProgressSink) message.ToolResult {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return errorResult("file_path is required")
	}
	oldString, ok := args["old_string"].(string)
	if !ok {
		return errorResult("old_string is required")
	}
	newString, ok := args["new_string"].(string)
	if !ok {
		return errorResult("new_string is required")
	}
	replaceAll, _ := args["replace_all"].(bool)

	filePath = resolvePath(filePath)

	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult("file not found: " + filePath)
		}
		return errorResult("failed to read file: " + err.Error())
	}
	oldContent := string(content)

	count := strings.Count(oldContent, oldString)
	if count == 0 {
		return errorResult("old_string not found in file")
	}
	if !replaceAll && count > 1 {
		return errorResult(fmt.Sprintf("old_string is not unique in file (found %d occurrences). Use replace_all=true to replace all.", count))
	}

	var newContent string
	var replaced int
	if replaceAll {
		replaced = count
		newContent = strings.ReplaceAll(oldContent, oldString, newString)
	} else {
		replaced = 1
		newContent = strings.Replace(oldContent, oldString, newString, 1)
	}

	if err := os.WriteFile(filePath, []byte(newContent), 0644); err != nil {
		return errorResult("failed to write file: " + err.Error())
	}

	details := computeDiff(filePath, oldContent, newContent)
	return message.ToolResult{
		Content: []message.ContentBlock{message.Text(fmt.Sprintf("Successfully edited %s (%d replacement(s))", filePath, replaced))},
		Details: details,
	}
}

func init() {
	Register(&EditTool{})
}
