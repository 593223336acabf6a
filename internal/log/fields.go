package log

import (
	"encoding/json"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// messageMarshaler wraps a Message for zap logging
type messageMarshaler message.Message

func (m messageMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	msg := message.Message(m)
	enc.AddString("role", string(msg.Role))
	if text := msg.Text(); text != "" {
		enc.AddString("content", text)
	}
	if calls := msg.ToolCalls(); len(calls) > 0 {
		_ = enc.AddArray("tool_calls", toolCallsMarshaler(calls))
	}
	if msg.Role == message.RoleToolResult {
		enc.AddString("tool_call_id", msg.ToolCallID)
		enc.AddBool("is_error", msg.IsError)
	}
	return nil
}

// messagesMarshaler wraps a slice of Messages for zap logging
type messagesMarshaler []message.Message

func (m messagesMarshaler) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, msg := range m {
		_ = enc.AppendObject(messageMarshaler(msg))
	}
	return nil
}

// MessagesField creates a zap field for messages
func MessagesField(messages []message.Message) zap.Field {
	return zap.Array("messages", messagesMarshaler(messages))
}

// toolMarshaler wraps a ToolManifest for zap logging
type toolMarshaler provider.ToolManifest

func (t toolMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", t.Name)
	enc.AddString("description", t.Description)
	if t.ParameterSchema != nil {
		paramsJSON, err := json.Marshal(t.ParameterSchema)
		if err == nil {
			enc.AddString("parameters", string(paramsJSON))
		}
	}
	return nil
}

// toolsMarshaler wraps a slice of ToolManifests for zap logging
type toolsMarshaler []provider.ToolManifest

func (t toolsMarshaler) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, tool := range t {
		_ = enc.AppendObject(toolMarshaler(tool))
	}
	return nil
}

// ToolsField creates a zap field for tools
func ToolsField(tools []provider.ToolManifest) zap.Field {
	return zap.Array("tools", toolsMarshaler(tools))
}

// toolCallMarshaler wraps a ToolCall for zap logging
type toolCallMarshaler message.ToolCall

func (tc toolCallMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", tc.ID)
	enc.AddString("name", tc.Name)
	if argsJSON, err := json.Marshal(tc.Arguments); err == nil {
		enc.AddString("arguments", string(argsJSON))
	}
	return nil
}

// toolCallsMarshaler wraps a slice of ToolCalls for zap logging
type toolCallsMarshaler []message.ToolCall

func (tc toolCallsMarshaler) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, call := range tc {
		_ = enc.AppendObject(toolCallMarshaler(call))
	}
	return nil
}

// ToolCallsField creates a zap field for tool calls
func ToolCallsField(toolCalls []message.ToolCall) zap.Field {
	return zap.Array("tool_calls", toolCallsMarshaler(toolCalls))
}

// usageMarshaler wraps Usage for zap logging
type usageMarshaler message.Usage

func (u usageMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("input_tokens", u.Input)
	enc.AddInt("output_tokens", u.Output)
	enc.AddInt("cache_read_tokens", u.CacheRead)
	enc.AddInt("cache_write_tokens", u.CacheWrite)
	return nil
}

// UsageField creates a zap field for usage
func UsageField(usage message.Usage) zap.Field {
	return zap.Object("usage", usageMarshaler(usage))
}
