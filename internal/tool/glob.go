package tool

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/genloop/genloop/internal/message"
)

const maxGlobResults = 100

var ignoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".svn":         true,
	".hg":          true,
	"vendor":       true,
	"__pycache__":  true,
	".cache":       true,
	"dist":         true,
	"build":        true,
}

// GlobTool finds files matching a glob pattern, newest first.
type GlobTool struct{}

func (t *GlobTool) Name() string        { return "Glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern" }

func (t *GlobTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string"},
			"path":    map[string]any{"type": "string", "description": "Directory to search, defaults to cwd"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, callID string, args map[string]any, _ ProgressSink) message.ToolResult {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return errorResult("pattern is required")
	}

	cwd, _ := os.Getwd()
	basePath := cwd
	if p, ok := args["path"].(string); ok && p != "" {
		basePath = resolvePath(p)
	}

	if _, err := os.Stat(basePath); err != nil {
		if os.IsNotExist(err) {
			return errorResult("path not found: " + basePath)
		}
		return errorResult("failed to access path: " + err.Error())
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo

	err := filepath.WalkDir(basePath, func(path string, d os.DirEntry, err error) error {
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
		relPath, err := filepath.Rel(basePath, path)
		if err != nil {
			return nil
		}
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil || !matched {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileInfo{path: relPath, modTime: info.ModTime()})
		return nil
	})
	if err != nil && err != context.Canceled {
		return errorResult("glob error: " + err.Error())
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	truncated := false
	if len(files) > maxGlobResults {
		files = files[:maxGlobResults]
		truncated = true
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}

	out := strings.Join(paths, "\n")
	if truncated {
		out += "\n... (truncated)"
	}
	if out == "" {
		out = "No files found"
	}
	return textResult(out)
}

func init() {
	Register(&GlobTool{})
}
