// Package moonshot implements the LLMProvider interface using the Moonshot AI platform.
// Moonshot's API is OpenAI-compatible, so we reuse the openai-go SDK with a custom base URL.
package moonshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// Client implements the LLMProvider interface for Moonshot AI using the OpenAI SDK.
type Client struct {
	client openai.Client
	name   string
}

// NewClient creates a new Moonshot client with the given OpenAI SDK client.
func NewClient(client openai.Client, name string) *Client {
	return &Client{
		client: client,
		name:   name,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

func toolArgumentsJSON(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func userImages(msg message.Message) []message.ImageData {
	var images []message.ImageData
	for _, b := range msg.Blocks {
		if b.Kind == message.BlockImage && b.Image != nil {
			images = append(images, *b.Image)
		}
	}
	return images
}

// Stream opens a normalized event stream over Moonshot's Chat Completions
// endpoint, preserving the Kimi thinking-model reasoning_content wire
// format on both the outgoing request and incoming deltas.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent)

	go func() {
		defer close(ch)

		messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.Messages)+1)

		if opts.SystemPrompt != "" {
			messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
		}

		for _, msg := range opts.Messages {
			switch msg.Role {
			case message.RoleToolResult:
				messages = append(messages, openai.ToolMessage(msg.Text(), msg.ToolCallID))

			case message.RoleUser:
				images := userImages(msg)
				if len(images) > 0 {
					parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
					for _, img := range images {
						dataURI := fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)
						parts = append(parts, openai.ChatCompletionContentPartUnionParam{
							OfImageURL: &openai.ChatCompletionContentPartImageParam{
								ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI},
							},
						})
					}
					if text := msg.Text(); text != "" {
						parts = append(parts, openai.ChatCompletionContentPartUnionParam{
							OfText: &openai.ChatCompletionContentPartTextParam{Text: text},
						})
					}
					messages = append(messages, openai.ChatCompletionMessageParamUnion{
						OfUser: &openai.ChatCompletionUserMessageParam{
							Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
						},
					})
				} else {
					messages = append(messages, openai.UserMessage(msg.Text()))
				}

			case message.RoleAssistant:
				var asstMsg openai.ChatCompletionAssistantMessageParam
				if text := msg.Text(); text != "" {
					asstMsg.Content.OfString = openai.Opt(text)
				}
				if calls := msg.ToolCalls(); len(calls) > 0 {
					asstMsg.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnionParam, len(calls))
					for i, tc := range calls {
						asstMsg.ToolCalls[i] = openai.ChatCompletionMessageToolCallUnionParam{
							OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
								ID: tc.ID,
								Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
									Name:      tc.Name,
									Arguments: toolArgumentsJSON(tc.Arguments),
								},
							},
						}
					}
				}
				// Moonshot requires reasoning_content on every assistant message
				// when thinking is enabled, even if empty.
				asstMsg.SetExtraFields(map[string]any{"reasoning_content": msg.Thinking()})
				messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asstMsg})

			default:
				messages = append(messages, openai.SystemMessage(msg.Text()))
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:    opts.ModelID,
			Messages: messages,
		}

		// Enable thinking mode for Kimi thinking models; reasoning_content is
		// captured above and replayed on the next turn's assistant messages.
		params.SetExtraFields(map[string]any{
			"thinking": map[string]any{"type": "enabled"},
		})

		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
		if opts.Temperature != nil {
			params.Temperature = openai.Float(*opts.Temperature)
		}
		if len(opts.Tools) > 0 {
			tools := make([]openai.ChatCompletionToolUnionParam, 0, len(opts.Tools))
			for _, t := range opts.Tools {
				var funcParams openai.FunctionParameters
				if props, ok := t.ParameterSchema.(map[string]any); ok {
					funcParams = props
				}
				tools = append(tools, openai.ChatCompletionToolUnionParam{
					OfFunction: &openai.ChatCompletionFunctionToolParam{
						Function: openai.FunctionDefinitionParam{
							Name:        t.Name,
							Description: openai.String(t.Description),
							Parameters:  funcParams,
						},
					},
				})
			}
			params.Tools = tools
		}

		log.LogRequest(c.name, opts.ModelID, opts)

		var partial message.Message
		ch <- provider.StreamEvent{Type: provider.EventStart, Partial: partial.Snapshot()}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		toolIndex := make(map[int]int)
		toolArgs := make(map[int]*strings.Builder)
		var usage message.Usage
		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			chunk := stream.Current()
			chunkCount++

			for _, choice := range chunk.Choices {
				// reasoning_content isn't in the SDK's typed delta struct, so
				// it's pulled out of the raw JSON.
				if rawJSON := choice.Delta.RawJSON(); rawJSON != "" {
					var deltaMap map[string]any
					if err := json.Unmarshal([]byte(rawJSON), &deltaMap); err == nil {
						if rc, ok := deltaMap["reasoning_content"]; ok && rc != nil {
							if content, ok := rc.(string); ok && content != "" {
								partial.AppendThinkingDelta(content)
								ch <- provider.StreamEvent{Type: provider.EventThinkingDelta, Delta: content, Partial: partial.Snapshot()}
							}
						}
					}
				}

				if choice.Delta.Content != "" {
					partial.AppendTextDelta(choice.Delta.Content)
					ch <- provider.StreamEvent{Type: provider.EventTextDelta, Delta: choice.Delta.Content, Partial: partial.Snapshot()}
				}

				for _, tc := range choice.Delta.ToolCalls {
					idx := int(tc.Index)

					blockIdx, exists := toolIndex[idx]
					if !exists {
						partial.Blocks = append(partial.Blocks, message.Call(message.ToolCall{
							ID:   tc.ID,
							Name: tc.Function.Name,
						}))
						blockIdx = len(partial.Blocks) - 1
						toolIndex[idx] = blockIdx
						toolArgs[idx] = &strings.Builder{}
						ch <- provider.StreamEvent{Type: provider.EventToolCallStart, Index: blockIdx, Partial: partial.Snapshot()}
					}

					if tc.Function.Arguments != "" {
						toolArgs[idx].WriteString(tc.Function.Arguments)
						ch <- provider.StreamEvent{
							Type: provider.EventToolCallDelta, Index: blockIdx,
							Delta: tc.Function.Arguments, Partial: partial.Snapshot(),
						}
					}
				}
			}

			if chunk.Usage.PromptTokens > 0 {
				usage.Input = int(chunk.Usage.PromptTokens)
			}
			if chunk.Usage.CompletionTokens > 0 {
				usage.Output = int(chunk.Usage.CompletionTokens)
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

		for idx, blockIdx := range toolIndex {
			if blockIdx >= len(partial.Blocks) || partial.Blocks[blockIdx].ToolCall == nil {
				continue
			}
			if args, err := message.ParseToolInput([]byte(toolArgs[idx].String())); err == nil {
				partial.Blocks[blockIdx].ToolCall.Arguments = args
			}
			ch <- provider.StreamEvent{
				Type: provider.EventToolCallEnd, Index: blockIdx,
				ToolCall: partial.Blocks[blockIdx].ToolCall, Partial: partial.Snapshot(),
			}
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

// staticModels is the fallback list when the models API is unavailable.
var staticModels = []provider.ModelInfo{
	{ID: "moonshot-v1-auto", Name: "moonshot-v1-auto", DisplayName: "Moonshot V1 Auto"},
	{ID: "moonshot-v1-128k", Name: "moonshot-v1-128k", DisplayName: "Moonshot V1 128K"},
	{ID: "kimi-k2-0711-preview", Name: "kimi-k2-0711-preview", DisplayName: "Kimi K2 0711 Preview"},
	{ID: "kimi-k2-0905-preview", Name: "kimi-k2-0905-preview", DisplayName: "Kimi K2 0905 Preview"},
}

// ListModels returns the available models for Moonshot AI using the API.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return staticModels, err
	}

	models := make([]provider.ModelInfo, 0)
	for _, m := range page.Data {
		id := m.ID
		info := provider.ModelInfo{
			ID:          id,
			Name:        id,
			DisplayName: id,
		}
		// Extract context_length from raw JSON (Moonshot extension field).
		if raw := m.RawJSON(); raw != "" {
			var extra struct {
				ContextLength int `json:"context_length"`
			}
			if err := json.Unmarshal([]byte(raw), &extra); err == nil && extra.ContextLength > 0 {
				info.InputTokenLimit = extra.ContextLength
			}
		}
		models = append(models, info)
	}

	if len(models) == 0 {
		return staticModels, nil
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

// Ensure Client implements LLMProvider
var _ provider.LLMProvider = (*Client)(nil)
