// Package testutil provides shared test helpers for integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/genloop/genloop/internal/client"
	"github.com/genloop/genloop/internal/core"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/permission"
	"github.com/genloop/genloop/internal/tool"
)

// ---------------------------------------------------------------------------
// Engine construction helpers
// ---------------------------------------------------------------------------

// NewTestEngine builds a core.Engine wired to a fresh FakeProvider that
// replays the given responses in order, PermitAll permission, and a private
// tool registry so tests don't leak tools into tool.DefaultRegistry.
func NewTestEngine(t *testing.T, responses ...message.Message) (*core.Engine, *client.FakeProvider) {
	t.Helper()
	return NewTestEngineWithPermission(t, permission.PermitAll(), responses...)
}

// NewTestEngineWithPermission builds an Engine with a custom permission checker.
func NewTestEngineWithPermission(t *testing.T, checker permission.Checker,
	responses ...message.Message) (*core.Engine, *client.FakeProvider) {
	t.Helper()

	fake := &client.FakeProvider{Responses: responses}
	registry := tool.NewRegistry()

	e := core.NewEngine()
	e.Client = &client.Client{Provider: fake, Config: client.LoopConfig{ModelID: "fake-model"}}
	e.Registry = registry
	e.Tools = &tool.Set{Registry: registry}
	e.Permission = checker
	e.ContextWindow = 8192
	return e, fake
}

// ---------------------------------------------------------------------------
// Response builders
// ---------------------------------------------------------------------------

// ToolCallResponse builds an assistant message that requests a single tool call.
func ToolCallResponse(toolName, toolID string, arguments map[string]any) message.Message {
	return message.NewAssistantMessage(
		[]message.ContentBlock{message.Call(message.ToolCall{ID: toolID, Name: toolName, Arguments: arguments})},
		message.StopToolUse,
		message.Usage{Input: 10, Output: 5},
	)
}

// MultiToolCallResponse builds an assistant message with multiple tool calls.
func MultiToolCallResponse(calls ...message.ToolCall) message.Message {
	blocks := make([]message.ContentBlock, len(calls))
	for i, c := range calls {
		blocks[i] = message.Call(c)
	}
	return message.NewAssistantMessage(blocks, message.StopToolUse, message.Usage{Input: 10, Output: 5})
}

// EndTurnResponse builds a simple end-turn assistant message with default usage.
func EndTurnResponse(content string) message.Message {
	return message.NewAssistantMessage(
		[]message.ContentBlock{message.Text(content)},
		message.StopEndTurn,
		message.Usage{Input: 10, Output: 5},
	)
}

// EndTurnResponseWithUsage builds an end-turn assistant message with custom token counts.
func EndTurnResponseWithUsage(content string, input, output int) message.Message {
	return message.NewAssistantMessage(
		[]message.ContentBlock{message.Text(content)},
		message.StopEndTurn,
		message.Usage{Input: input, Output: output},
	)
}

// ---------------------------------------------------------------------------
// Fake tool registration
// ---------------------------------------------------------------------------

// RegisterFakeTool registers a named tool on the given registry that always
// returns a fixed text result.
func RegisterFakeTool(registry *tool.Registry, name, result string) {
	registry.Register(&fakeTool{name: name, result: result})
}

type fakeTool struct {
	name   string
	result string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for testing" }
func (f *fakeTool) ParameterSchema() map[string]any {
	return map[string]any{"type": "object"}
}
func (f *fakeTool) Execute(_ context.Context, _ string, _ map[string]any, _ tool.ProgressSink) message.ToolResult {
	return message.ToolResult{Content: []message.ContentBlock{message.Text(f.result)}}
}
