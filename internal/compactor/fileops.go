package compactor

import (
	"sort"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

// FileOperations tracks which files a discarded conversation prefix
// touched, so the summary can tell the continuing model what is safe to
// treat as unread versus what it already modified.
type FileOperations struct {
	Read    map[string]bool
	Written map[string]bool
	Edited  map[string]bool
}

// NewFileOperations returns an empty tracker.
func NewFileOperations() FileOperations {
	return FileOperations{
		Read:    make(map[string]bool),
		Written: make(map[string]bool),
		Edited:  make(map[string]bool),
	}
}

// SeedFileOps carries a prior compaction's accumulated read/modified
// lists into a fresh tracker, so a later compaction doesn't lose track
// of files touched in an already-discarded prefix. Previously-modified
// files seed Edited (modified status always supersedes read-only, per
// ComputeFileLists), and previously-read files seed Read.
func SeedFileOps(ops FileOperations, previousReadFiles, previousModifiedFiles []string) {
	for _, p := range previousReadFiles {
		ops.Read[p] = true
	}
	for _, p := range previousModifiedFiles {
		ops.Edited[p] = true
	}
}

// ExtractFileOps inspects one assistant message's tool calls and records
// any Read/Write/Edit call whose arguments carry a string "path".
func ExtractFileOps(m message.Message, ops FileOperations) {
	if m.Role != message.RoleAssistant {
		return
	}
	for _, tc := range m.ToolCalls() {
		path, ok := tc.Arguments["path"].(string)
		if !ok {
			continue
		}
		switch tc.Name {
		case "Read":
			ops.Read[path] = true
		case "Write":
			ops.Written[path] = true
		case "Edit":
			ops.Edited[path] = true
		}
	}
}

// ComputeFileLists splits tracked operations into files that were only
// read and files that were modified (written or edited supersedes
// read-only status), both sorted.
func ComputeFileLists(ops FileOperations) (readOnly, modified []string) {
	modifiedSet := make(map[string]bool, len(ops.Written)+len(ops.Edited))
	for p := range ops.Written {
		modifiedSet[p] = true
	}
	for p := range ops.Edited {
		modifiedSet[p] = true
	}
	for p := range ops.Read {
		if !modifiedSet[p] {
			readOnly = append(readOnly, p)
		}
	}
	for p := range modifiedSet {
		modified = append(modified, p)
	}
	sort.Strings(readOnly)
	sort.Strings(modified)
	return readOnly, modified
}

// FormatFileOperations renders the read/modified lists as XML-ish tags
// appended to a summary; returns "" when both lists are empty.
func FormatFileOperations(readOnly, modified []string) string {
	var sections []string
	if len(readOnly) > 0 {
		sections = append(sections, "<read-files>\n"+strings.Join(readOnly, "\n")+"\n</read-files>")
	}
	if len(modified) > 0 {
		sections = append(sections, "<modified-files>\n"+strings.Join(modified, "\n")+"\n</modified-files>")
	}
	if len(sections) == 0 {
		return ""
	}
	return "\n\n" + strings.Join(sections, "\n\n")
}
