package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// Client implements the LLMProvider interface using the Google GenAI SDK
type Client struct {
	client *genai.Client
	name   string
}

// NewClient creates a new Google client with the given SDK client
func NewClient(client *genai.Client, name string) *Client {
	return &Client{
		client: client,
		name:   name,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.name
}

func toGoogleContents(msgs []message.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case message.RoleUser, message.RoleToolResult:
			role = "user"
		case message.RoleAssistant:
			role = "model"
		default:
			role = string(msg.Role)
		}

		parts := make([]*genai.Part, 0)

		switch msg.Role {
		case message.RoleToolResult:
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Text()), &result); err != nil {
				result = map[string]any{"result": msg.Text()}
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: result,
				},
			})

		case message.RoleAssistant:
			if calls := msg.ToolCalls(); len(calls) > 0 {
				if text := msg.Text(); text != "" {
					parts = append(parts, &genai.Part{Text: text})
				}
				for _, tc := range calls {
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID:   tc.ID,
							Name: tc.Name,
							Args: tc.Arguments,
						},
					})
				}
			} else {
				parts = append(parts, &genai.Part{Text: msg.Text()})
			}

		default: // user, custom
			for _, b := range msg.Blocks {
				switch b.Kind {
				case message.BlockImage:
					decoded, err := base64.StdEncoding.DecodeString(b.Image.Data)
					if err == nil {
						parts = append(parts, &genai.Part{
							InlineData: &genai.Blob{MIMEType: b.Image.MediaType, Data: decoded},
						})
					}
				case message.BlockText:
					if b.Text != "" {
						parts = append(parts, &genai.Part{Text: b.Text})
					}
				}
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: ""})
			}
		}

		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// Stream opens a normalized event stream over the Gemini GenerateContentStream API.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent)

	go func() {
		defer close(ch)

		contents := toGoogleContents(opts.Messages)

		config := &genai.GenerateContentConfig{}
		if opts.SystemPrompt != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: opts.SystemPrompt}},
			}
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Temperature != nil {
			temp := float32(*opts.Temperature)
			config.Temperature = &temp
		}
		if len(opts.Tools) > 0 {
			funcDecls := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
			for _, t := range opts.Tools {
				fd := &genai.FunctionDeclaration{
					Name:        t.Name,
					Description: t.Description,
				}
				if t.ParameterSchema != nil {
					fd.ParametersJsonSchema = t.ParameterSchema
				}
				funcDecls = append(funcDecls, fd)
			}
			config.Tools = []*genai.Tool{{FunctionDeclarations: funcDecls}}
		}

		log.LogRequest(c.name, opts.ModelID, opts)

		var partial message.Message
		ch <- provider.StreamEvent{Type: provider.EventStart, Partial: partial.Snapshot()}

		var usage message.Usage
		var stopReason message.StopReason
		streamStart := time.Now()
		chunkCount := 0

		for result, err := range c.client.Models.GenerateContentStream(ctx, opts.ModelID, contents, config) {
			if err != nil {
				log.LogError(c.name, err)
				final := message.NewAssistantMessage(partial.Blocks, message.StopError, usage)
				final.ErrorMessage = err.Error()
				ch <- provider.StreamEvent{Type: provider.EventError, Final: final, Err: err}
				return
			}
			chunkCount++

			for _, candidate := range result.Candidates {
				if candidate.Content == nil {
					continue
				}

				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						partial.AppendTextDelta(part.Text)
						ch <- provider.StreamEvent{Type: provider.EventTextDelta, Delta: part.Text, Partial: partial.Snapshot()}
					}

					if fc := part.FunctionCall; fc != nil {
						partial.Blocks = append(partial.Blocks, message.Call(message.ToolCall{
							ID:        fc.ID,
							Name:      fc.Name,
							Arguments: fc.Args,
						}))
						idx := len(partial.Blocks) - 1
						ch <- provider.StreamEvent{Type: provider.EventToolCallStart, Index: idx, Partial: partial.Snapshot()}
						ch <- provider.StreamEvent{
							Type: provider.EventToolCallEnd, Index: idx,
							ToolCall: partial.Blocks[idx].ToolCall, Partial: partial.Snapshot(),
						}
					}
				}

				if candidate.FinishReason != "" {
					switch candidate.FinishReason {
					case "STOP":
						stopReason = message.StopEndTurn
					case "MAX_TOKENS":
						stopReason = message.StopLength
					default:
						stopReason = message.StopEndTurn
					}
				}
			}

			if result.UsageMetadata != nil {
				usage.Input = int(result.UsageMetadata.PromptTokenCount)
				usage.Output = int(result.UsageMetadata.CandidatesTokenCount)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

		if len(partial.ToolCalls()) > 0 {
			stopReason = message.StopToolUse
		} else if stopReason == "" {
			stopReason = message.StopEndTurn
		}

		final := message.NewAssistantMessage(partial.Blocks, stopReason, usage)
		log.LogResponse(c.name, final)
		ch <- provider.StreamEvent{Type: provider.EventDone, Final: final, Reason: stopReason}
	}()

	return ch, nil
}

// ListModels returns the available models for Google using the API
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	models := make([]provider.ModelInfo, 0)

	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		name := m.Name
		if strings.Contains(name, "gemini") {
			id, _ := strings.CutPrefix(name, "models/")

			if strings.Contains(id, "-exp") || strings.Contains(id, "-latest") {
				continue
			}

			displayName := m.DisplayName
			if displayName == "" {
				displayName = id
			}

			models = append(models, provider.ModelInfo{
				ID:               id,
				Name:             displayName,
				DisplayName:      displayName,
				InputTokenLimit:  int(m.InputTokenLimit),
				OutputTokenLimit: int(m.OutputTokenLimit),
			})
		}
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

// NewAPIKeyClient creates a new Google client using API Key authentication
func NewAPIKeyClient(ctx context.Context) (provider.LLMProvider, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return NewClient(client, "google:api_key"), nil
}

// Ensure Client implements LLMProvider
var _ provider.LLMProvider = (*Client)(nil)
