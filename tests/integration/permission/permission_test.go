package permission_test

import (
	"context"
	"testing"

	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/permission"
	"github.com/genloop/genloop/tests/integration/testutil"
)

func lastToolResult(t *testing.T, msgs []message.Message) message.Message {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleToolResult {
			return msgs[i]
		}
	}
	t.Fatal("expected a tool result message in the conversation")
	return message.Message{}
}

func TestPermission_PermitAll_AllowsWrite(t *testing.T) {
	e, _ := testutil.NewTestEngineWithPermission(t, permission.PermitAll(),
		testutil.ToolCallResponse("Write", "tc1", map[string]any{"file_path": "/tmp/test"}),
		testutil.EndTurnResponse("done"),
	)
	testutil.RegisterFakeTool(e.Registry, "Write", "written successfully")

	if err := e.Prompt(context.Background(), "write a file", nil); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	if err := e.Err(); err != nil {
		t.Fatalf("engine ended with error: %v", err)
	}

	if result := lastToolResult(t, e.Messages()); result.IsError {
		t.Errorf("unexpected error result: %s", result.Text())
	}
}

func TestPermission_ReadOnly_BlocksWrite(t *testing.T) {
	e, _ := testutil.NewTestEngineWithPermission(t, permission.ReadOnly(),
		testutil.ToolCallResponse("Write", "tc1", map[string]any{"file_path": "/tmp/test"}),
		testutil.EndTurnResponse("ok"),
	)
	testutil.RegisterFakeTool(e.Registry, "Write", "should not execute")

	if err := e.Prompt(context.Background(), "write", nil); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	if err := e.Err(); err != nil {
		t.Fatalf("engine ended with error: %v", err)
	}

	if result := lastToolResult(t, e.Messages()); !result.IsError {
		t.Error("expected error result for Write tool in ReadOnly mode")
	}
}

func TestPermission_ReadOnly_AllowsRead(t *testing.T) {
	e, _ := testutil.NewTestEngineWithPermission(t, permission.ReadOnly(),
		testutil.ToolCallResponse("Read", "tc1", map[string]any{"file_path": "/tmp/test"}),
		testutil.EndTurnResponse("done"),
	)
	testutil.RegisterFakeTool(e.Registry, "Read", "file contents")

	if err := e.Prompt(context.Background(), "read", nil); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	if err := e.Err(); err != nil {
		t.Fatalf("engine ended with error: %v", err)
	}

	if result := lastToolResult(t, e.Messages()); result.IsError {
		t.Errorf("unexpected error for Read tool: %s", result.Text())
	}
}

func TestPermission_DenyAll_BlocksEverything(t *testing.T) {
	e, _ := testutil.NewTestEngineWithPermission(t, permission.DenyAll(),
		testutil.ToolCallResponse("Read", "tc1", map[string]any{}),
		testutil.EndTurnResponse("done"),
	)
	testutil.RegisterFakeTool(e.Registry, "Read", "should not execute")

	if err := e.Prompt(context.Background(), "read", nil); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	if err := e.Err(); err != nil {
		t.Fatalf("engine ended with error: %v", err)
	}

	if result := lastToolResult(t, e.Messages()); !result.IsError {
		t.Error("expected error result for Read tool in DenyAll mode")
	}
}

func TestPermission_CheckerSelectsOutcomePerToolCall(t *testing.T) {
	tests := []struct {
		name      string
		checker   permission.Checker
		wantError bool
	}{
		{"PermitAll allows Bash", permission.PermitAll(), false},
		{"DenyAll rejects Bash", permission.DenyAll(), true},
		{"ReadOnly rejects Bash", permission.ReadOnly(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testutil.NewTestEngineWithPermission(t, tt.checker,
				testutil.ToolCallResponse("Bash", "tc1", map[string]any{"command": "echo hello"}),
				testutil.EndTurnResponse("done"),
			)
			testutil.RegisterFakeTool(e.Registry, "Bash", "executed")

			if err := e.Prompt(context.Background(), "run it", nil); err != nil {
				t.Fatalf("Prompt() error: %v", err)
			}
			if err := e.Err(); err != nil {
				t.Fatalf("engine ended with error: %v", err)
			}

			result := lastToolResult(t, e.Messages())
			if result.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v (content: %s)", result.IsError, tt.wantError, result.Text())
			}
		})
	}
}
