// Package provider implements the LLMStream capability: a uniform,
// normalized-event streaming interface over concrete model backends.
package provider

import (
	"context"

	"github.com/genloop/genloop/internal/message"
)

// Provider names a concrete backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderMoonshot  Provider = "moonshot"
)

// AuthMethod names how credentials are resolved for a Provider.
type AuthMethod string

const (
	AuthAPIKey  AuthMethod = "api_key"
	AuthVertex  AuthMethod = "vertex"
	AuthBedrock AuthMethod = "bedrock"
)

// ProviderMeta is static metadata about a provider/auth combination.
type ProviderMeta struct {
	Provider    Provider
	AuthMethod  AuthMethod
	EnvVars     []string
	DisplayName string
}

// Key returns a unique key for this provider configuration.
func (m ProviderMeta) Key() string {
	return string(m.Provider) + ":" + string(m.AuthMethod)
}

// ModelInfo describes a model available from a provider.
type ModelInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DisplayName      string `json:"displayName,omitempty"`
	InputTokenLimit  int    `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit int    `json:"outputTokenLimit,omitempty"`
}

// ToolManifest is what the engine surfaces to the model per tool: name,
// description, and a JSON Schema for its arguments.
type ToolManifest struct {
	Name            string
	Description     string
	ParameterSchema any
}

// ReasoningEffort is the provider-facing reasoning intensity, already
// mapped from the engine's internal reasoning level (see spec §6 in
// SPEC_FULL.md; the mapping itself lives in internal/client).
type ReasoningEffort string

const (
	ReasoningNone   ReasoningEffort = ""
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
	ReasoningXHigh  ReasoningEffort = "xhigh"
)

// ThinkingBudget is an explicit reasoning token allowance for providers
// that price reasoning separately.
type ThinkingBudget string

const (
	ThinkingNone    ThinkingBudget = ""
	ThinkingMinimal ThinkingBudget = "minimal"
	ThinkingLow     ThinkingBudget = "low"
	ThinkingMedium  ThinkingBudget = "medium"
	ThinkingHigh    ThinkingBudget = "high"
)

// CompletionOptions is the normalized request shape passed to
// LLMProvider.Stream — the open_stream(...) capability from the spec.
type CompletionOptions struct {
	ModelID         string
	SystemPrompt    string
	Messages        []message.Message
	Tools           []ToolManifest
	ReasoningEffort ReasoningEffort
	ThinkingBudget  ThinkingBudget
	Temperature     *float64
	MaxTokens       int
	SessionID       string
	MaxRetryDelayMs int
	APIKey          string
}

// EventType discriminates StreamEvent.
type EventType string

const (
	EventStart         EventType = "start"
	EventTextStart     EventType = "text_start"
	EventTextDelta     EventType = "text_delta"
	EventTextEnd       EventType = "text_end"
	EventThinkingStart EventType = "thinking_start"
	EventThinkingDelta EventType = "thinking_delta"
	EventThinkingEnd   EventType = "thinking_end"
	EventToolCallStart EventType = "toolcall_start"
	EventToolCallDelta EventType = "toolcall_delta"
	EventToolCallEnd   EventType = "toolcall_end"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// StreamEvent is one normalized event from open_stream. Every delta
// carries the updated Partial so observers can snapshot without
// reconstructing state.
type StreamEvent struct {
	Type EventType
	// Index identifies which content block a *_start/*_delta/*_end event
	// belongs to, for providers that interleave multiple blocks.
	Index int
	Delta string

	// Partial is the in-progress assistant message, valid on start and
	// every delta event.
	Partial message.Message

	// Content is the finished block text, valid on text_end/thinking_end.
	Content string
	// ToolCall is the finished call, valid on toolcall_end.
	ToolCall *message.ToolCall

	// Final is the terminal assistant message, valid on done/error.
	Final  message.Message
	Reason message.StopReason

	Err error
}

// LLMProvider is the interface every concrete backend implements.
type LLMProvider interface {
	Name() string
	Stream(ctx context.Context, opts CompletionOptions) (<-chan StreamEvent, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ProviderFactory constructs a configured LLMProvider.
type ProviderFactory func(ctx context.Context) (LLMProvider, error)

// Complete collects a full stream into a single terminal assistant
// message — the one-shot mode the Compactor uses for summarization.
func Complete(ctx context.Context, p LLMProvider, opts CompletionOptions) (message.Message, error) {
	events, err := p.Stream(ctx, opts)
	if err != nil {
		return message.Message{}, err
	}
	for ev := range events {
		switch ev.Type {
		case EventDone:
			return ev.Final, nil
		case EventError:
			return ev.Final, ev.Err
		}
	}
	return message.Message{}, nil
}
