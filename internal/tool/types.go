// Package tool implements the concrete Tool bodies the Tool Runner
// dispatches: Read, Write, Edit, Bash, Glob, Grep.
package tool

import (
	"context"

	"github.com/genloop/genloop/internal/message"
)

// ProgressSink receives incremental human-readable progress lines from
// a running tool body. The Tool Runner forwards these to observers as
// part of the engine's event stream; a tool with nothing incremental to
// report may ignore it entirely.
type ProgressSink interface {
	Progress(text string)
}

// NoopProgress discards every update; used by callers (tests, one-shot
// invocations) that don't care about incremental output.
type NoopProgress struct{}

func (NoopProgress) Progress(string) {}

// Tool is the opaque handle the Tool Runner invokes: {name,
// description, parameter_schema, execute(id, arguments, cancel_signal,
// progress_sink) -> ToolResult} from spec.md's Tool definition. Context
// cancellation is the cancel_signal; execute must observe it promptly.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any
	Execute(ctx context.Context, callID string, arguments map[string]any, progress ProgressSink) message.ToolResult
}

// errorResult builds a single-text-block error ToolResult, the shape
// every tool body returns on a recoverable failure.
func errorResult(text string) message.ToolResult {
	return message.ErrorResult(text)
}

// textResult builds a single-text-block successful ToolResult.
func textResult(text string) message.ToolResult {
	return message.ToolResult{Content: []message.ContentBlock{message.Text(text)}}
}
