package client

import (
	"context"
	"testing"

	"github.com/genloop/genloop/internal/config"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

func TestLoopConfigFromSettings(t *testing.T) {
	retry := 5000
	cfg := config.LoopConfig{
		ModelID:        "claude-sonnet-4-20250514",
		ReasoningLevel: config.ReasoningHigh,
		MaxTokens:      4096,
		SessionID:      "sess-1",
		ThinkingBudgets: &config.ThinkingBudgets{
			Minimal: "minimal",
			High:    "high",
		},
		MaxRetryDelayMs: &retry,
	}

	got := LoopConfigFromSettings(cfg)

	if got.ModelID != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected ModelID: %q", got.ModelID)
	}
	if got.ReasoningLevel != ReasoningHighL {
		t.Errorf("unexpected ReasoningLevel: %q", got.ReasoningLevel)
	}
	if got.MaxRetryDelayMs != 5000 {
		t.Errorf("unexpected MaxRetryDelayMs: %d", got.MaxRetryDelayMs)
	}
	if got.ThinkingBudgets == nil || got.ThinkingBudgets.High != provider.ThinkingHigh {
		t.Errorf("expected ThinkingBudgets.High mapped to provider.ThinkingHigh, got %+v", got.ThinkingBudgets)
	}
}

func TestLoopConfigFromSettingsNoRetryOverride(t *testing.T) {
	got := LoopConfigFromSettings(config.LoopConfig{ModelID: "m"})
	if got.MaxRetryDelayMs != 0 {
		t.Errorf("expected zero MaxRetryDelayMs to pass through unset, got %d", got.MaxRetryDelayMs)
	}
	if got.ThinkingBudgets != nil {
		t.Errorf("expected nil ThinkingBudgets when unset, got %+v", got.ThinkingBudgets)
	}
}

func TestResolveReasoningEffortMapping(t *testing.T) {
	cases := []struct {
		level ReasoningLevel
		model string
		want  provider.ReasoningEffort
	}{
		{ReasoningOff, "any", provider.ReasoningNone},
		{"", "any", provider.ReasoningNone},
		{ReasoningMinimal, "any", provider.ReasoningLow},
		{ReasoningLowL, "any", provider.ReasoningLow},
		{ReasoningMediumL, "any", provider.ReasoningMedium},
		{ReasoningHighL, "any", provider.ReasoningHigh},
		{ReasoningXHighL, "gpt-5.2-preview", provider.ReasoningXHigh},
		{ReasoningXHighL, "gpt-4", provider.ReasoningHigh},
	}
	for _, c := range cases {
		got := resolveReasoningEffort(c.level, c.model)
		if got != c.want {
			t.Errorf("resolveReasoningEffort(%s, %s) = %s, want %s", c.level, c.model, got, c.want)
		}
	}
}

func TestResolveThinkingBudgetOffYieldsNone(t *testing.T) {
	budgets := &ThinkingBudgets{High: provider.ThinkingHigh}
	if got := resolveThinkingBudget(ReasoningOff, budgets); got != provider.ThinkingNone {
		t.Errorf("expected ThinkingNone when level is off, got %s", got)
	}
	if got := resolveThinkingBudget(ReasoningHighL, nil); got != provider.ThinkingNone {
		t.Errorf("expected ThinkingNone when no budgets table given, got %s", got)
	}
}

func TestResolveThinkingBudgetXHighUsesHigh(t *testing.T) {
	budgets := &ThinkingBudgets{High: provider.ThinkingHigh}
	if got := resolveThinkingBudget(ReasoningXHighL, budgets); got != provider.ThinkingHigh {
		t.Errorf("expected xhigh to map to the high budget, got %s", got)
	}
}

func TestOptionsDefaultMaxTokensAndRetryDelay(t *testing.T) {
	c := &Client{Provider: &FakeProvider{}, Config: LoopConfig{ModelID: "m"}}
	opts := c.Options("", nil, nil)
	if opts.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", defaultMaxTokens, opts.MaxTokens)
	}
	if opts.MaxRetryDelayMs != DefaultMaxRetryDelayMs {
		t.Errorf("expected default retry delay %d, got %d", DefaultMaxRetryDelayMs, opts.MaxRetryDelayMs)
	}
}

func TestStreamPassesResolvedOptions(t *testing.T) {
	mp := &FakeProvider{Responses: []message.Message{
		message.NewAssistantMessage([]message.ContentBlock{message.Text("hi")}, message.StopEndTurn, message.Usage{}),
	}}
	c := &Client{Provider: mp, Config: LoopConfig{ModelID: "m", ReasoningLevel: ReasoningHighL}}

	ch, err := c.Stream(context.Background(), "sys", nil, nil)
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	var final message.Message
	for ev := range ch {
		if ev.Type == provider.EventDone {
			final = ev.Final
		}
	}
	if final.Text() != "hi" {
		t.Fatalf("expected final text 'hi', got %q", final.Text())
	}
	if len(mp.Calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(mp.Calls))
	}
	if mp.Calls[0].ReasoningEffort != provider.ReasoningHigh {
		t.Errorf("expected high reasoning effort passed through, got %s", mp.Calls[0].ReasoningEffort)
	}
	if mp.Calls[0].SystemPrompt != "sys" {
		t.Errorf("expected system prompt passed through, got %q", mp.Calls[0].SystemPrompt)
	}
}

func TestResolveMaxTokensCustomOverride(t *testing.T) {
	c := &Client{Provider: &FakeProvider{}, Config: LoopConfig{ModelID: "m", MaxTokens: 16384}}
	if got := c.ResolveMaxTokens(context.Background()); got != 16384 {
		t.Errorf("expected 16384, got %d", got)
	}
}

func TestResolveMaxTokensFromProvider(t *testing.T) {
	mp := &FakeProvider{Models: []provider.ModelInfo{
		{ID: "claude-opus", OutputTokenLimit: 32000},
		{ID: "claude-sonnet", OutputTokenLimit: 64000},
	}}
	c := &Client{Provider: mp, Config: LoopConfig{ModelID: "claude-sonnet"}}
	if got := c.ResolveMaxTokens(context.Background()); got != 64000 {
		t.Errorf("expected 64000, got %d", got)
	}
}

func TestResolveMaxTokensFallback(t *testing.T) {
	mp := &FakeProvider{Models: []provider.ModelInfo{{ID: "other-model", OutputTokenLimit: 32000}}}
	c := &Client{Provider: mp, Config: LoopConfig{ModelID: "unknown-model"}}
	if got := c.ResolveMaxTokens(context.Background()); got != defaultMaxTokens {
		t.Errorf("expected default %d, got %d", defaultMaxTokens, got)
	}
}
