package estimator

import (
	"testing"

	"github.com/genloop/genloop/internal/message"
)

func TestEstimateMessageTextCeiling(t *testing.T) {
	m := message.NewUserMessage("abcde", nil) // 5 bytes -> ceil(5/4) = 2
	if got := EstimateMessage(m); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestEstimateMessageImageSurrogate(t *testing.T) {
	m := message.NewUserMessage("", []message.ImageData{{MediaType: "image/png", Data: "x"}})
	want := ceilDiv4(imageByteSurrogate)
	if got := EstimateMessage(m); got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
}

func TestEstimateMessageAssistantToolCall(t *testing.T) {
	m := message.NewAssistantMessage([]message.ContentBlock{
		message.Call(message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "/tmp/a"}}),
	}, message.StopToolUse, message.Usage{})
	if got := EstimateMessage(m); got <= 0 {
		t.Errorf("expected positive estimate, got %d", got)
	}
}

func TestEstimateContextNoAnchorSumsAll(t *testing.T) {
	msgs := []message.Message{
		message.NewUserMessage("hello", nil),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("hi")}, message.StopEndTurn, message.Usage{}),
	}
	ctx := EstimateContext(msgs)
	var want int
	for _, m := range msgs {
		want += EstimateMessage(m)
	}
	if ctx.Tokens != want || ctx.LastUsageIndex != -1 || ctx.UsageTokens != 0 {
		t.Errorf("expected degenerate sum %d, got %+v", want, ctx)
	}
}

func TestEstimateContextUsesAnchorAndTrailing(t *testing.T) {
	msgs := []message.Message{
		message.NewUserMessage("hello", nil),
		message.NewAssistantMessage([]message.ContentBlock{message.Text("hi")}, message.StopEndTurn,
			message.Usage{Input: 100, Output: 20}),
		message.NewUserMessage("more", nil),
	}
	ctx := EstimateContext(msgs)
	if ctx.LastUsageIndex != 1 {
		t.Fatalf("expected anchor at index 1, got %d", ctx.LastUsageIndex)
	}
	if ctx.UsageTokens != 120 {
		t.Errorf("expected usage tokens 120, got %d", ctx.UsageTokens)
	}
	if ctx.TrailingTokens != EstimateMessage(msgs[2]) {
		t.Errorf("expected trailing to match message[2] estimate")
	}
	if ctx.Tokens != ctx.UsageTokens+ctx.TrailingTokens {
		t.Errorf("tokens should be usage+trailing")
	}
}

func TestEstimateContextSkipsAbortedAndErrorAnchors(t *testing.T) {
	msgs := []message.Message{
		message.NewAssistantMessage([]message.ContentBlock{message.Text("aborted run")}, message.StopAborted,
			message.Usage{Input: 999, Output: 999}),
		message.NewUserMessage("hi", nil),
	}
	ctx := EstimateContext(msgs)
	if ctx.LastUsageIndex != -1 {
		t.Errorf("expected aborted anchor skipped, got index %d", ctx.LastUsageIndex)
	}
}

func TestEstimateContextPrefersTotalOverComponents(t *testing.T) {
	msgs := []message.Message{
		message.NewAssistantMessage([]message.ContentBlock{message.Text("x")}, message.StopEndTurn,
			message.Usage{Input: 10, Output: 10, Total: 5}),
	}
	ctx := EstimateContext(msgs)
	if ctx.UsageTokens != 5 {
		t.Errorf("expected Total to win, got %d", ctx.UsageTokens)
	}
}
