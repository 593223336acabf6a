package tool

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// EditDetails is the opaque ToolResult.Details payload Edit and Write
// attach so observers (and the permission layer) can render what
// changed without re-reading the file.
type EditDetails struct {
	FilePath     string
	UnifiedDiff  string
	AddedCount   int
	RemovedCount int
	IsNewFile    bool
}

// computeDiff renders a unified diff between old and new file content
// and tallies added/removed lines.
func computeDiff(filePath, oldContent, newContent string) EditDetails {
	edits := myers.ComputeEdits(span.URIFromPath(filePath), oldContent, newContent)
	unified := fmt.Sprint(gotextdiff.ToUnified(filePath, filePath, oldContent, edits))

	added, removed := 0, 0
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			// hunk headers, not content lines
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}

	return EditDetails{
		FilePath:     filePath,
		UnifiedDiff:  unified,
		AddedCount:   added,
		RemovedCount: removed,
		IsNewFile:    oldContent == "",
	}
}
