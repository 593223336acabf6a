package compact_test

import (
	"context"
	"strings"
	"testing"

	"github.com/genloop/genloop/internal/client"
	"github.com/genloop/genloop/internal/compactor"
	"github.com/genloop/genloop/internal/message"
)

func TestCompact_SummarizesDiscardedPrefix(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("Summary: discussed file reading")}, message.StopEndTurn, message.Usage{}),
		},
	}

	// The trailing message is a UserMessage so the cut point lands clean
	// (no split turn): everything before it is summarized in one call and
	// the fake's queued response comes back verbatim.
	msgs := []message.Message{
		message.NewUserMessage("read the file", nil),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("I'll read the file for you")}, message.StopEndTurn, message.Usage{}),
		message.NewUserMessage("thanks", nil),
	}

	result, err := compactor.Compact(context.Background(), fake, "fake-model", msgs, compactor.CompactionSettings{KeepRecentTokens: 0}, "", "", 1234, nil, nil)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}

	if result.SummaryText != "Summary: discussed file reading" {
		t.Errorf("unexpected summary: %q", result.SummaryText)
	}
	if result.FirstKeptIndex != 2 {
		t.Errorf("expected FirstKeptIndex 2 (only the trailing user message kept), got %d", result.FirstKeptIndex)
	}
	if result.TokensBefore != 1234 {
		t.Errorf("expected TokensBefore to pass through unchanged, got %d", result.TokensBefore)
	}
}

func TestCompact_WithCustomInstructions(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("Focused summary on testing")}, message.StopEndTurn, message.Usage{}),
		},
	}

	msgs := []message.Message{
		message.NewUserMessage("write tests", nil),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("ok")}, message.StopEndTurn, message.Usage{}),
		message.NewUserMessage("thanks", nil),
	}

	_, err := compactor.Compact(context.Background(), fake, "fake-model", msgs, compactor.CompactionSettings{KeepRecentTokens: 0}, "", "testing", 0, nil, nil)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}

	if len(fake.Calls) != 1 {
		t.Fatalf("expected 1 summarization call, got %d", len(fake.Calls))
	}
	if len(fake.Calls[0].Messages) == 0 {
		t.Fatal("expected a prompt message to be sent")
	}
	if got := fake.Calls[0].Messages[0].Text(); !strings.Contains(got, "testing") {
		t.Errorf("expected custom instructions %q to appear in the summarization prompt, got %q", "testing", got)
	}
}

func TestCompact_TracksFileOperations(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("Summary of file work")}, message.StopEndTurn, message.Usage{}),
		},
	}

	msgs := []message.Message{
		message.NewUserMessage("edit main.go", nil),
		message.NewAssistantMessage(
			[]message.ContentBlock{message.Call(message.ToolCall{ID: "tc1", Name: "Read", Arguments: map[string]any{"path": "a.go"}})},
			message.StopToolUse, message.Usage{},
		),
		message.NewToolResultMessage("tc1", "Read", message.ToolResult{Content: []message.ContentBlock{message.Text("file contents")}}),
		message.NewAssistantMessage(
			[]message.ContentBlock{message.Call(message.ToolCall{ID: "tc2", Name: "Edit", Arguments: map[string]any{"path": "a.go"}})},
			message.StopToolUse, message.Usage{},
		),
		message.NewToolResultMessage("tc2", "Edit", message.ToolResult{Content: []message.ContentBlock{message.Text("edited")}}),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("done")}, message.StopEndTurn, message.Usage{}),
	}

	result, err := compactor.Compact(context.Background(), fake, "fake-model", msgs, compactor.CompactionSettings{KeepRecentTokens: 0}, "", "", 0, nil, nil)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}

	// a.go was read then edited, so it counts as modified, not read-only.
	if len(result.ReadFiles) != 0 {
		t.Errorf("expected no read-only files (a.go was later edited), got %v", result.ReadFiles)
	}
	if len(result.ModifiedFiles) != 1 || result.ModifiedFiles[0] != "a.go" {
		t.Errorf("expected a.go to be tracked as modified, got %v", result.ModifiedFiles)
	}
	if !strings.Contains(result.SummaryText, "<modified-files>") {
		t.Errorf("expected modified-files section appended to summary, got %q", result.SummaryText)
	}
}

func TestCompact_SecondPassCarriesForwardPriorFileOps(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("second summary")}, message.StopEndTurn, message.Usage{}),
		},
	}

	// Nothing in this second batch of messages touches b.go or c.go —
	// those were only visible in the prefix discarded by the *first*
	// compaction, whose ReadFiles/ModifiedFiles are passed in here as
	// previousReadFiles/previousModifiedFiles.
	msgs := []message.Message{
		message.NewUserMessage("what's next", nil),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("let's continue")}, message.StopEndTurn, message.Usage{}),
		message.NewUserMessage("thanks", nil),
	}

	result, err := compactor.Compact(
		context.Background(), fake, "fake-model", msgs,
		compactor.CompactionSettings{KeepRecentTokens: 0},
		"first summary", "", 0,
		[]string{"b.go"}, []string{"c.go"},
	)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}

	if len(result.ReadFiles) != 1 || result.ReadFiles[0] != "b.go" {
		t.Errorf("expected b.go to survive from the first compaction's ReadFiles, got %v", result.ReadFiles)
	}
	if len(result.ModifiedFiles) != 1 || result.ModifiedFiles[0] != "c.go" {
		t.Errorf("expected c.go to survive from the first compaction's ModifiedFiles, got %v", result.ModifiedFiles)
	}
	if !strings.Contains(result.SummaryText, "<read-files>") || !strings.Contains(result.SummaryText, "b.go") {
		t.Errorf("expected carried-forward read file in the summary tags, got %q", result.SummaryText)
	}
	if !strings.Contains(result.SummaryText, "<modified-files>") || !strings.Contains(result.SummaryText, "c.go") {
		t.Errorf("expected carried-forward modified file in the summary tags, got %q", result.SummaryText)
	}
}

func TestCompact_SecondPassPromotesCarriedReadToModified(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("second summary")}, message.StopEndTurn, message.Usage{}),
		},
	}

	// b.go was only read in the first compaction's discarded prefix, but
	// this second batch edits it — it must end up modified, not read-only.
	msgs := []message.Message{
		message.NewUserMessage("edit b.go now", nil),
		message.NewAssistantMessage(
			[]message.ContentBlock{message.Call(message.ToolCall{ID: "tc1", Name: "Edit", Arguments: map[string]any{"path": "b.go"}})},
			message.StopToolUse, message.Usage{},
		),
		message.NewToolResultMessage("tc1", "Edit", message.ToolResult{Content: []message.ContentBlock{message.Text("edited")}}),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("done")}, message.StopEndTurn, message.Usage{}),
	}

	result, err := compactor.Compact(
		context.Background(), fake, "fake-model", msgs,
		compactor.CompactionSettings{KeepRecentTokens: 0},
		"first summary", "", 0,
		[]string{"b.go"}, nil,
	)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}

	if len(result.ReadFiles) != 0 {
		t.Errorf("expected b.go to be promoted out of ReadFiles, got %v", result.ReadFiles)
	}
	if len(result.ModifiedFiles) != 1 || result.ModifiedFiles[0] != "b.go" {
		t.Errorf("expected b.go tracked as modified, got %v", result.ModifiedFiles)
	}
}

func TestCompact_EmptyConversation(t *testing.T) {
	fake := &client.FakeProvider{
		Responses: []message.Message{
			message.NewAssistantMessage([]message.ContentBlock{message.Text("Empty summary")}, message.StopEndTurn, message.Usage{}),
		},
	}

	result, err := compactor.Compact(context.Background(), fake, "fake-model", nil, compactor.CompactionSettings{}, "", "", 0, nil, nil)
	if err != nil {
		t.Fatalf("Compact() error: %v", err)
	}
	if result.FirstKeptIndex != 0 {
		t.Errorf("expected FirstKeptIndex 0 for an empty conversation, got %d", result.FirstKeptIndex)
	}
}

func TestShouldCompact(t *testing.T) {
	tests := []struct {
		name    string
		tokens  int
		window  int
		reserve int
		enabled bool
		expect  bool
	}{
		{"disabled never triggers", 5000, 1000, 0, false, false},
		{"well below window", 500, 1000, 0, true, false},
		{"exactly at threshold does not trigger", 1000, 1000, 0, true, false},
		{"over threshold triggers", 1001, 1000, 0, true, true},
		{"reserve tightens the threshold", 901, 1000, 100, true, true},
		{"reserve leaves headroom", 899, 1000, 100, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := compactor.CompactionSettings{Enabled: tt.enabled, ReserveTokens: tt.reserve}
			got := compactor.ShouldCompact(tt.tokens, tt.window, settings)
			if got != tt.expect {
				t.Errorf("ShouldCompact(%d, %d, %+v) = %v, want %v", tt.tokens, tt.window, settings, got, tt.expect)
			}
		})
	}
}

func TestCheckpointMessage(t *testing.T) {
	result := compactor.CompactionResult{SummaryText: "the summary", TokensBefore: 4096}
	msg := compactor.CheckpointMessage(result)

	if msg.Role != message.RoleUser {
		t.Errorf("expected checkpoint to be a user message, got %v", msg.Role)
	}
	if !strings.Contains(msg.Text(), "4096 tokens compacted") {
		t.Errorf("expected token count in checkpoint text, got %q", msg.Text())
	}
	if !strings.Contains(msg.Text(), "the summary") {
		t.Errorf("expected summary text in checkpoint, got %q", msg.Text())
	}
}
