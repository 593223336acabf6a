package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/genloop/genloop/internal/message"
)

const (
	maxReadLines  = 2000
	maxLineLength = 500
)

// ReadTool reads file contents, line-numbered and truncated like the
// teacher's file viewer.
type ReadTool struct{}

func (t *ReadTool) Name() string        { return "Read" }
func (t *ReadTool) Description() string { return "Read file contents" }

func (t *ReadTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Absolute or cwd-relative path to the file"},
			"offset":    map[string]any{"type": "integer", "description": "1-based line to start reading from"},
			"limit":     map[string]any{"type": "integer", "description": "Maximum number of lines to read"},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, callID string, args map[string]any, _ ProgressSink) message.ToolResult {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return errorResult("file_path is required")
	}
	filePath = resolvePath(filePath)

	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", maxReadLines)
	if limit <= 0 {
		limit = maxReadLines
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult("file not found: " + filePath)
		}
		return errorResult("failed to stat file: " + err.Error())
	}
	if info.IsDir() {
		return errorResult("path is a directory: " + filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errorResult("failed to open file: " + err.Error())
	}
	defer file.Close()

	header := make([]byte, 512)
	n, _ := file.Read(header)
	if n > 0 && isBinary(header[:n]) {
		return textResult(fmt.Sprintf("Binary file detected: %s", filePath))
	}
	if _, err := file.Seek(0, 0); err != nil {
		return errorResult("failed to rewind file: " + err.Error())
	}

	var sb []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	read := 0
	truncated := false

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return errorResult("Aborted")
		default:
		}

		lineNo++
		if offset > 0 && lineNo < offset {
			continue
		}
		if read >= limit {
			truncated = true
			break
		}
		text := scanner.Text()
		if len(text) > maxLineLength {
			text = text[:maxLineLength] + "..."
		}
		sb = append(sb, fmt.Sprintf("%6d\t%s", lineNo, text))
		read++
	}
	if err := scanner.Err(); err != nil {
		return errorResult("error reading file: " + err.Error())
	}

	out := joinLines(sb)
	if truncated {
		out += "\n... (truncated)"
	}
	return textResult(out)
}

func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return p
	}
	return filepath.Join(cwd, p)
}

func isBinary(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func init() {
	Register(&ReadTool{})
}
