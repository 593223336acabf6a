// Package hooks implements the PreToolUse shell-hook system for GenCode.
// Compatible with Claude Code's PreToolUse hook contract.
package hooks

// EventType represents the type of hook event.
type EventType string

// PreToolUse is the one event the Tool Runner fires, keyed by tool name,
// run synchronously before a tool body executes.
const PreToolUse EventType = "PreToolUse"

// HookInput is the JSON input passed to hook commands via stdin.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode"`
	HookEventName  string `json:"hook_event_name"`

	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

// HookOutput is the JSON output from hook commands.
type HookOutput struct {
	Continue           *bool               `json:"continue,omitempty"`
	StopReason         string              `json:"stopReason,omitempty"`
	SystemMessage      string              `json:"systemMessage,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput contains event-specific output fields.
type HookSpecificOutput struct {
	HookEventName      string         `json:"hookEventName"`
	PermissionDecision string         `json:"permissionDecision,omitempty"`
	PermissionReason   string         `json:"permissionDecisionReason,omitempty"`
	UpdatedInput       map[string]any `json:"updatedInput,omitempty"`
	AdditionalContext  string         `json:"additionalContext,omitempty"`
}

// HookOutcome is the processed result from hook execution.
type HookOutcome struct {
	ShouldContinue    bool
	ShouldBlock       bool
	BlockReason       string
	AdditionalContext string
	UpdatedInput      map[string]any
	Error             error
}
