package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"

	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// Client implements the LLMProvider interface using the OpenAI SDK
type Client struct {
	client openai.Client
	name   string
}

// NewClient creates a new OpenAI client with the given SDK client
func NewClient(client openai.Client, name string) *Client {
	return &Client{
		client: client,
		name:   name,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.name
}

// isResponsesModel returns true if the model uses the Responses API instead of Chat Completions.
func isResponsesModel(model string) bool {
	return strings.Contains(model, "codex")
}

// Stream opens a normalized event stream, routing to the Responses API
// for codex models and Chat Completions for all others.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) (<-chan provider.StreamEvent, error) {
	if isResponsesModel(opts.ModelID) {
		return c.streamResponses(ctx, opts), nil
	}
	return c.streamChatCompletions(ctx, opts), nil
}

func toolArgumentsJSON(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// streamResponses implements streaming via the Responses API for codex models.
func (c *Client) streamResponses(ctx context.Context, opts provider.CompletionOptions) <-chan provider.StreamEvent {
	ch := make(chan provider.StreamEvent)

	go func() {
		defer close(ch)

		var inputItems responses.ResponseInputParam

		for _, msg := range opts.Messages {
			switch msg.Role {
			case message.RoleToolResult:
				inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
					OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
						CallID: msg.ToolCallID,
						Output: responses.ResponseInputItemFunctionCallOutputOutputUnionParam{
							OfString: openai.Opt(msg.Text()),
						},
					},
				})
			case message.RoleUser:
				inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleUser,
						Content: responses.EasyInputMessageContentUnionParam{
							OfString: openai.Opt(msg.Text()),
						},
					},
				})
			case message.RoleAssistant:
				if calls := msg.ToolCalls(); len(calls) > 0 {
					if text := msg.Text(); text != "" {
						inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
							OfMessage: &responses.EasyInputMessageParam{
								Role: responses.EasyInputMessageRoleAssistant,
								Content: responses.EasyInputMessageContentUnionParam{
									OfString: openai.Opt(text),
								},
							},
						})
					}
					for _, tc := range calls {
						inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
							OfFunctionCall: &responses.ResponseFunctionToolCallParam{
								CallID:    tc.ID,
								Name:      tc.Name,
								Arguments: toolArgumentsJSON(tc.Arguments),
							},
						})
					}
				} else {
					inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
						OfMessage: &responses.EasyInputMessageParam{
							Role: responses.EasyInputMessageRoleAssistant,
							Content: responses.EasyInputMessageContentUnionParam{
								OfString: openai.Opt(msg.Text()),
							},
						},
					})
				}
			default:
				inputItems = append(inputItems, responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleSystem,
						Content: responses.EasyInputMessageContentUnionParam{
							OfString: openai.Opt(msg.Text()),
						},
					},
				})
			}
		}

		params := responses.ResponseNewParams{
			Model: opts.ModelID,
			Input: responses.ResponseNewParamsInputUnion{
				OfInputItemList: inputItems,
			},
		}

		if opts.SystemPrompt != "" {
			params.Instructions = openai.Opt(opts.SystemPrompt)
		}
		if opts.MaxTokens > 0 {
			params.MaxOutputTokens = openai.Opt(int64(opts.MaxTokens))
		}
		if opts.Temperature != nil {
			params.Temperature = openai.Opt(*opts.Temperature)
		}
		if len(opts.Tools) > 0 {
			tools := make([]responses.ToolUnionParam, len(opts.Tools))
			for i, t := range opts.Tools {
				var funcParams map[string]any
				if props, ok := t.ParameterSchema.(map[string]any); ok {
					funcParams = props
				}
				tools[i] = responses.ToolUnionParam{
					OfFunction: &responses.FunctionToolParam{
						Name:        t.Name,
						Description: openai.Opt(t.Description),
						Parameters:  funcParams,
					},
				}
			}
			params.Tools = tools
		}

		log.LogRequest(c.name, opts.ModelID, opts)

		var partial message.Message
		ch <- provider.StreamEvent{Type: provider.EventStart, Partial: partial.Snapshot()}

		stream := c.client.Responses.NewStreaming(ctx, params)

		toolIndex := make(map[string]int)
		toolArgs := make(map[string]*strings.Builder)
		var usage message.Usage
		hasToolCalls := false
		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			event := stream.Current()
			chunkCount++

			switch event.Type {
			case "response.output_text.delta":
				delta := event.AsResponseOutputTextDelta()
				if delta.Delta != "" {
					partial.AppendTextDelta(delta.Delta)
					ch <- provider.StreamEvent{Type: provider.EventTextDelta, Delta: delta.Delta, Partial: partial.Snapshot()}
				}

			case "response.output_item.added":
				itemEvent := event.AsResponseOutputItemAdded()
				if itemEvent.Item.Type == "function_call" {
					funcCall := itemEvent.Item.AsFunctionCall()
					hasToolCalls = true
					partial.Blocks = append(partial.Blocks, message.Call(message.ToolCall{
						ID:   funcCall.CallID,
						Name: funcCall.Name,
					}))
					idx := len(partial.Blocks) - 1
					toolIndex[funcCall.ID] = idx
					toolArgs[funcCall.ID] = &strings.Builder{}
					ch <- provider.StreamEvent{Type: provider.EventToolCallStart, Index: idx, Partial: partial.Snapshot()}
				}

			case "response.function_call_arguments.delta":
				delta := event.AsResponseFunctionCallArgumentsDelta()
				if idx, ok := toolIndex[delta.ItemID]; ok {
					toolArgs[delta.ItemID].WriteString(delta.Delta)
					ch <- provider.StreamEvent{
						Type: provider.EventToolCallDelta, Index: idx,
						Delta: delta.Delta, Partial: partial.Snapshot(),
					}
				}

			case "response.completed":
				completed := event.AsResponseCompleted()
				resp := completed.Response
				usage.Input = int(resp.Usage.InputTokens)
				usage.Output = int(resp.Usage.OutputTokens)

			case "error":
				errEvent := event.AsError()
				err := fmt.Errorf("responses API error: %s", errEvent.Message)
				log.LogError(c.name, err)
				final := message.NewAssistantMessage(partial.Blocks, message.StopError, usage)
				final.ErrorMessage = err.Error()
				ch <- provider.StreamEvent{Type: provider.EventError, Final: final, Err: err}
				return
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

		for itemID, idx := range toolIndex {
			if idx >= len(partial.Blocks) || partial.Blocks[idx].ToolCall == nil {
				continue
			}
			if args, err := message.ParseToolInput([]byte(toolArgs[itemID].String())); err == nil {
				partial.Blocks[idx].ToolCall.Arguments = args
			}
			ch <- provider.StreamEvent{
				Type: provider.EventToolCallEnd, Index: idx,
				ToolCall: partial.Blocks[idx].ToolCall, Partial: partial.Snapshot(),
			}
		}

		reason := message.StopEndTurn
		if hasToolCalls {
			reason = message.StopToolUse
		}
		final := message.NewAssistantMessage(partial.Blocks, reason, usage)
		log.LogResponse(c.name, final)
		ch <- provider.StreamEvent{Type: provider.EventDone, Final: final, Reason: reason}
	}()

	return ch
}

// streamChatCompletions implements streaming via the Chat Completions API.
func (c *Client) streamChatCompletions(ctx context.Context, opts provider.CompletionOptions) <-chan provider.StreamEvent {
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
				if calls := msg.ToolCalls(); len(calls) > 0 {
					var asstMsg openai.ChatCompletionAssistantMessageParam
					if text := msg.Text(); text != "" {
						asstMsg.Content.OfString = openai.Opt(text)
					}
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
					messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asstMsg})
				} else {
					messages = append(messages, openai.AssistantMessage(msg.Text()))
				}

			default:
				messages = append(messages, openai.SystemMessage(msg.Text()))
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:    opts.ModelID,
			Messages: messages,
		}

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

	return ch
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

// ListModels returns the available models for OpenAI using the API
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]provider.ModelInfo, 0)

	for _, m := range page.Data {
		id := m.ID
		if strings.HasPrefix(id, "dall-e") ||
			strings.HasPrefix(id, "tts-") ||
			strings.HasPrefix(id, "whisper-") ||
			strings.HasPrefix(id, "text-embedding") ||
			strings.HasPrefix(id, "omni-moderation") ||
			strings.HasPrefix(id, "davinci") ||
			strings.HasPrefix(id, "babbage") ||
			strings.HasPrefix(id, "sora") ||
			strings.HasPrefix(id, "gpt-image") ||
			strings.Contains(id, "-tts") ||
			strings.Contains(id, "-transcribe") ||
			strings.Contains(id, "-realtime") ||
			strings.Contains(id, "computer-use") ||
			strings.HasSuffix(id, "-instruct") {
			continue
		}

		models = append(models, provider.ModelInfo{
			ID:          id,
			Name:        id,
			DisplayName: id,
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

// Ensure Client implements LLMProvider
var _ provider.LLMProvider = (*Client)(nil)
