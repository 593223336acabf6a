package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

const (
	maxGrepMatches = 50
	maxGrepFiles   = 100
)

// GrepTool searches file contents for a regular expression.
type GrepTool struct{}

func (t *GrepTool) Name() string        { return "Grep" }
func (t *GrepTool) Description() string { return "Search for patterns in files" }

func (t *GrepTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string"},
			"path":    map[string]any{"type": "string", "description": "File or directory to search, defaults to cwd"},
			"include": map[string]any{"type": "string", "description": "Glob filter applied to file names, e.g. *.go"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, callID string, args map[string]any, _ ProgressSink) message.ToolResult {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return errorResult("pattern is required")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return errorResult("invalid pattern: " + err.Error())
	}

	cwd, _ := os.Getwd()
	basePath := cwd
	if p, ok := args["path"].(string); ok && p != "" {
		basePath = resolvePath(p)
	}
	includePattern, _ := args["include"].(string)

	info, err := os.Stat(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult("path not found: " + basePath)
		}
		return errorResult("failed to access path: " + err.Error())
	}

	var lines []string
	filesSearched := 0

	searchFile := func(filePath, relPath string) error {
		file, err := os.Open(filePath)
		if err != nil {
			return nil
		}
		defer file.Close()

		buf := make([]byte, 512)
		n, _ := file.Read(buf)
		if n > 0 && isBinary(buf[:n]) {
			return nil
		}
		if _, err := file.Seek(0, 0); err != nil {
			return nil
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				display := strings.TrimSpace(line)
				if len(display) > maxLineLength {
					display = display[:maxLineLength] + "..."
				}
				lines = append(lines, fmt.Sprintf("%s:%d: %s", relPath, lineNo, display))
				if len(lines) >= maxGrepMatches {
					return filepath.SkipAll
				}
			}
		}
		return nil
	}

	if !info.IsDir() {
		searchFile(basePath, filepath.Base(basePath))
	} else {
		filepath.WalkDir(basePath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if d.IsDir() {
				if ignoredDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if includePattern != "" {
				if matched, _ := filepath.Match(includePattern, d.Name()); !matched {
					return nil
				}
			}
			relPath, err := filepath.Rel(basePath, path)
			if err != nil {
				relPath = path
			}
			filesSearched++
			if filesSearched > maxGrepFiles {
				return filepath.SkipAll
			}
			return searchFile(path, relPath)
		})
	}

	truncated := len(lines) >= maxGrepMatches
	out := strings.Join(lines, "\n")
	if out == "" {
		out = "No matches found"
	} else if truncated {
		out += "\n... (truncated)"
	}
	return textResult(out)
}

func init() {
	Register(&GrepTool{})
}
