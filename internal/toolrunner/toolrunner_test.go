package toolrunner

import (
	"context"
	"testing"

	"github.com/genloop/genloop/internal/event"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/tool"
)

// echoTool appends "Arguments: <text>" so tests can assert it ran and
// what it saw.
type echoTool struct {
	name string
}

func (t *echoTool) Name() string                    { return t.name }
func (t *echoTool) Description() string              { return "echo" }
func (t *echoTool) ParameterSchema() map[string]any  { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(ctx context.Context, callID string, args map[string]any, progress tool.ProgressSink) message.ToolResult {
	if progress != nil {
		progress.Progress("running")
	}
	text, _ := args["text"].(string)
	return message.ToolResult{Content: []message.ContentBlock{message.Text("echo:" + text)}}
}

type failingTool struct{}

func (t *failingTool) Name() string                   { return "Fail" }
func (t *failingTool) Description() string             { return "always fails" }
func (t *failingTool) ParameterSchema() map[string]any { return map[string]any{"type": "object"} }
func (t *failingTool) Execute(ctx context.Context, callID string, args map[string]any, progress tool.ProgressSink) message.ToolResult {
	panic("boom")
}

func newRegistry() *tool.Registry {
	r := tool.NewRegistry()
	r.Register(&echoTool{name: "Echo"})
	r.Register(&failingTool{})
	return r
}

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Emit(e event.Event) { s.events = append(s.events, e) }

func (s *recordingSink) kinds() []event.Kind {
	out := make([]event.Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func TestRunEmptyCallsIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	result := Run(context.Background(), newRegistry(), nil, nil, nil, sink)
	if len(result.ToolResults) != 0 {
		t.Fatalf("expected no tool results, got %d", len(result.ToolResults))
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no events, got %d", len(sink.events))
	}
}

func TestRunSingleCallEventBracket(t *testing.T) {
	sink := &recordingSink{}
	calls := []message.ToolCall{{ID: "c1", Name: "Echo", Arguments: map[string]any{"text": "hi"}}}

	result := Run(context.Background(), newRegistry(), calls, nil, nil, sink)

	if len(result.ToolResults) != 1 {
		t.Fatalf("expected 1 tool result, got %d", len(result.ToolResults))
	}
	msg := result.ToolResults[0]
	if msg.Role != message.RoleToolResult || msg.ToolCallID != "c1" || msg.IsError {
		t.Fatalf("unexpected tool result message: %+v", msg)
	}
	if msg.Text() != "echo:hi" {
		t.Fatalf("expected echo:hi, got %q", msg.Text())
	}

	wantKinds := []event.Kind{
		event.ToolExecutionStart,
		event.ToolExecutionUpdate,
		event.ToolExecutionEnd,
		event.MessageStart,
		event.MessageEnd,
	}
	got := sink.kinds()
	if len(got) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %v", len(wantKinds), len(got), got)
	}
	for i, k := range wantKinds {
		if got[i] != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, got[i])
		}
	}
}

func TestRunToolNotFound(t *testing.T) {
	sink := &recordingSink{}
	calls := []message.ToolCall{{ID: "c1", Name: "Nope"}}

	result := Run(context.Background(), newRegistry(), calls, nil, nil, sink)

	msg := result.ToolResults[0]
	if !msg.IsError || msg.Text() != "Tool not found: Nope" {
		t.Fatalf("unexpected result: %+v", msg)
	}
}

func TestRunUncaughtFailureBecomesErrorResult(t *testing.T) {
	sink := &recordingSink{}
	calls := []message.ToolCall{{ID: "c1", Name: "Fail"}}

	result := Run(context.Background(), newRegistry(), calls, nil, nil, sink)

	msg := result.ToolResults[0]
	if !msg.IsError || msg.Text() != "boom" {
		t.Fatalf("expected recovered panic as error result, got: %+v", msg)
	}
}

func TestRunSteeringSkipsRemaining(t *testing.T) {
	sink := &recordingSink{}
	calls := []message.ToolCall{
		{ID: "c1", Name: "Echo", Arguments: map[string]any{"text": "a"}},
		{ID: "c2", Name: "Echo", Arguments: map[string]any{"text": "b"}},
		{ID: "c3", Name: "Echo", Arguments: map[string]any{"text": "c"}},
	}
	polls := 0
	steering := func() []message.Message {
		polls++
		if polls == 1 {
			return []message.Message{message.NewUserMessage("stop", nil)}
		}
		return nil
	}

	result := Run(context.Background(), newRegistry(), calls, steering, nil, sink)

	if len(result.Steering) != 1 {
		t.Fatalf("expected 1 steering message, got %d", len(result.Steering))
	}
	if len(result.ToolResults) != 3 {
		t.Fatalf("expected 3 tool results (1 real + 2 skipped), got %d", len(result.ToolResults))
	}
	if result.ToolResults[0].IsError {
		t.Fatalf("first call should have succeeded")
	}
	for _, msg := range result.ToolResults[1:] {
		if !msg.IsError || msg.Text() != "Skipped" {
			t.Fatalf("expected Skipped error result, got: %+v", msg)
		}
	}
	if polls != 1 {
		t.Fatalf("expected steering to be polled exactly once before stopping, got %d", polls)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	calls := []message.ToolCall{{ID: "c1", Name: "Echo"}}

	result := Run(ctx, newRegistry(), calls, nil, nil, sink)

	if len(result.ToolResults) != 0 {
		t.Fatalf("expected no tool calls to start after cancellation, got %d", len(result.ToolResults))
	}
}

func TestRunPreExecuteSubstitutesResultWithoutTouchingRegistry(t *testing.T) {
	sink := &recordingSink{}
	calls := []message.ToolCall{
		{ID: "blocked", Name: "Echo"},
		{ID: "c2", Name: "Echo", Arguments: map[string]any{"text": "hi"}},
	}

	preExecute := func(call message.ToolCall) (message.ToolResult, bool) {
		if call.ID == "blocked" {
			return message.ErrorResult("Blocked by hook: nope"), true
		}
		return message.ToolResult{}, false
	}

	result := Run(context.Background(), newRegistry(), calls, nil, preExecute, sink)

	if len(result.ToolResults) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.ToolResults))
	}
	if !result.ToolResults[0].IsError || result.ToolResults[0].Text() != "Blocked by hook: nope" {
		t.Fatalf("expected first call blocked, got %+v", result.ToolResults[0])
	}
	if result.ToolResults[1].IsError || result.ToolResults[1].Text() != "echo:hi" {
		t.Fatalf("expected second call to run normally, got %+v", result.ToolResults[1])
	}

	for _, ev := range sink.events {
		if ev.Kind == event.ToolExecutionStart && ev.ToolCallID == "blocked" && ev.ToolName != "Echo" {
			t.Fatalf("PreExecute must not rewrite the call's identity in events, got %q", ev.ToolName)
		}
	}
}
