package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// Client implements provider.LLMProvider using the Anthropic SDK.
type Client struct {
	client       anthropic.Client
	name         string
	cachedModels []provider.ModelInfo
}

// NewClient creates a new Anthropic client with the given SDK client.
func NewClient(client anthropic.Client, name string) *Client {
	return &Client{client: client, name: name}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// toAnthropicMessages converts the engine's message history into the
// Anthropic SDK's param shape.
func toAnthropicMessages(msgs []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
			for _, b := range m.Blocks {
				switch b.Kind {
				case message.BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case message.BlockImage:
					blocks = append(blocks, anthropic.NewImageBlockBase64(b.Image.MediaType, b.Image.Data))
				}
			}
			out = append(out, anthropic.NewUserMessage(blocks...))

		case message.RoleToolResult:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), m.IsError),
			))

		case message.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
			for _, b := range m.Blocks {
				switch b.Kind {
				case message.BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case message.BlockToolCall:
					input := any(b.ToolCall.Arguments)
					if b.ToolCall.Arguments == nil {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolCall.ID, input, b.ToolCall.Name))
				}
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(tools []provider.ToolManifest) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.ParameterSchema.(map[string]any); ok {
			if properties, ok := props["properties"]; ok {
				schema.Properties = properties
			}
			switch req := props["required"].(type) {
			case []string:
				schema.Required = req
			case []any:
				strs := make([]string, 0, len(req))
				for _, r := range req {
					if s, ok := r.(string); ok {
						strs = append(strs, s)
					}
				}
				schema.Required = strs
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// reasoningToThinking maps an already-resolved provider.ReasoningEffort /
// provider.ThinkingBudget pair onto the SDK's thinking-config param.
// Anthropic prices thinking in raw tokens, so a symbolic ThinkingBudget
// is converted to a concrete token allowance.
func reasoningToThinking(budget provider.ThinkingBudget) *anthropic.ThinkingConfigParamUnion {
	var tokens int64
	switch budget {
	case provider.ThinkingMinimal:
		tokens = 1024
	case provider.ThinkingLow:
		tokens = 4096
	case provider.ThinkingMedium:
		tokens = 10000
	case provider.ThinkingHigh:
		tokens = 24000
	default:
		return nil
	}
	return &anthropic.ThinkingConfigParamUnion{
		OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: tokens},
	}
}

// Stream opens a normalized event stream over the Anthropic Messages API.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent)

	go func() {
		defer close(ch)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.ModelID),
			MaxTokens: int64(opts.MaxTokens),
			Messages:  toAnthropicMessages(opts.Messages),
		}
		if opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
		}
		if tools := toAnthropicTools(opts.Tools); tools != nil {
			params.Tools = tools
		}
		if thinking := reasoningToThinking(opts.ThinkingBudget); thinking != nil {
			params.Thinking = *thinking
		}

		log.LogRequest(c.name, opts.ModelID, opts)

		var partial message.Message
		ch <- provider.StreamEvent{Type: provider.EventStart, Partial: partial.Snapshot()}

		stream := c.client.Messages.NewStreaming(ctx, params)

		var usage message.Usage
		var toolIndex int
		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			event := stream.Current()
			chunkCount++

			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart()
				switch block.ContentBlock.Type {
				case "tool_use":
					partial.Blocks = append(partial.Blocks, message.Call(message.ToolCall{
						ID:   block.ContentBlock.ID,
						Name: block.ContentBlock.Name,
					}))
					toolIndex = len(partial.Blocks) - 1
					ch <- provider.StreamEvent{Type: provider.EventToolCallStart, Index: toolIndex, Partial: partial.Snapshot()}
				case "thinking":
					ch <- provider.StreamEvent{Type: provider.EventThinkingStart, Partial: partial.Snapshot()}
				default:
					ch <- provider.StreamEvent{Type: provider.EventTextStart, Partial: partial.Snapshot()}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" {
						partial.AppendTextDelta(delta.Delta.Text)
						ch <- provider.StreamEvent{Type: provider.EventTextDelta, Delta: delta.Delta.Text, Partial: partial.Snapshot()}
					}
				case "thinking_delta":
					if delta.Delta.Thinking != "" {
						partial.AppendThinkingDelta(delta.Delta.Thinking)
						ch <- provider.StreamEvent{Type: provider.EventThinkingDelta, Delta: delta.Delta.Thinking, Partial: partial.Snapshot()}
					}
				case "input_json_delta":
					if delta.Delta.PartialJSON != "" && toolIndex < len(partial.Blocks) {
						ch <- provider.StreamEvent{
							Type: provider.EventToolCallDelta, Index: toolIndex,
							Delta: delta.Delta.PartialJSON, Partial: partial.Snapshot(),
						}
					}
				}

			case "content_block_stop":
				if toolIndex < len(partial.Blocks) && partial.Blocks[toolIndex].Kind == message.BlockToolCall {
					ch <- provider.StreamEvent{
						Type: provider.EventToolCallEnd, Index: toolIndex,
						ToolCall: partial.Blocks[toolIndex].ToolCall, Partial: partial.Snapshot(),
					}
				}

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				usage.Output = int(msgDelta.Usage.OutputTokens)

			case "message_start":
				msgStart := event.AsMessageStart()
				usage.Input = int(msgStart.Message.Usage.InputTokens)
				usage.CacheRead = int(msgStart.Message.Usage.CacheReadInputTokens)
				usage.CacheWrite = int(msgStart.Message.Usage.CacheCreationInputTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

		if err := stream.Err(); err != nil {
			log.LogError(c.name, err)
			final := message.NewAssistantMessage(partial.Blocks, message.StopError, usage)
			final.ErrorMessage = err.Error()
			ch <- provider.StreamEvent{Type: provider.EventError, Final: final, Err: err}
			return
		}

		reason := message.StopEndTurn
		if len(partial.ToolCalls()) > 0 {
			reason = message.StopToolUse
		}
		final := message.NewAssistantMessage(partial.Blocks, reason, usage)
		log.LogResponse(c.name, final)
		ch <- provider.StreamEvent{Type: provider.EventDone, Final: final, Reason: reason}
	}()

	return ch, nil
}

// defaultModels is the fallback static model list.
var defaultModels = []provider.ModelInfo{
	{ID: "claude-opus-4-5@20251101", Name: "Claude Opus 4.5", DisplayName: "Claude Opus 4.5 (Most Capable)"},
	{ID: "claude-sonnet-4-5@20250929", Name: "Claude Sonnet 4.5", DisplayName: "Claude Sonnet 4.5 (Balanced)"},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", DisplayName: "Claude Sonnet 4"},
	{ID: "claude-haiku-3-5@20241022", Name: "Claude Haiku 3.5", DisplayName: "Claude Haiku 3.5 (Fast)"},
}

// ListModels returns available models using the Anthropic Models API,
// falling back to a static list if the API call fails.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	if len(c.cachedModels) > 0 {
		return c.cachedModels, nil
	}

	models, err := c.fetchModels(ctx)
	if err != nil {
		c.cachedModels = defaultModels
		return c.cachedModels, nil
	}
	c.cachedModels = models
	return c.cachedModels, nil
}

func (c *Client) fetchModels(ctx context.Context) ([]provider.ModelInfo, error) {
	pager := c.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []provider.ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, provider.ModelInfo{ID: m.ID, Name: m.DisplayName, DisplayName: m.DisplayName})
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models returned from API")
	}
	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)
