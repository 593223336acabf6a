// Package message defines the canonical message types and utilities used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"fmt"
	"strings"
)

// Role discriminates the tagged-union Message variants.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
	// RoleCustom marks an application-defined variant that flows through
	// the core opaquely; only CustomType and CustomPayload are meaningful.
	RoleCustom Role = "custom"
)

// StopReason is why an AssistantMessage stopped streaming.
type StopReason string

const (
	StopEndTurn   StopReason = "stop"
	StopLength    StopReason = "length"
	StopToolUse   StopReason = "tool_use"
	StopSensitive StopReason = "sensitive"
	StopError     StopReason = "error"
	StopAborted   StopReason = "aborted"
)

// BlockKind discriminates ContentBlock variants.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockImage    BlockKind = "image"
	BlockThinking BlockKind = "reasoning"
	BlockToolCall BlockKind = "tool_call"
)

// ContentBlock is one ordered unit of message content. Only the fields
// matching Kind are meaningful.
type ContentBlock struct {
	Kind     BlockKind
	Text     string     // BlockText, BlockThinking
	Image    *ImageData // BlockImage
	ToolCall *ToolCall  // BlockToolCall
}

// ImageData is image content, either inline (pasted) or file-backed.
type ImageData struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	FileName  string `json:"file_name,omitempty"`
	Size      int    `json:"size,omitempty"`
}

// ToolCall is a model-requested tool invocation. ID is stable per call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage carries token accounting for an AssistantMessage. Total, when
// populated by the provider, takes precedence over the component sum.
type Usage struct {
	Input      int
	Output     int
	CacheRead  int
	CacheWrite int
	Total      int
}

// ToolResult is what a Tool.Execute produces: ordered content blocks
// plus an opaque, caller-defined Details value.
type ToolResult struct {
	Content []ContentBlock
	Details any
	IsError bool
}

// Message is the tagged union exchanged between user, model, and tools.
// Only the fields relevant to Role are meaningful; the zero value of the
// others is ignored by every consumer in this package.
type Message struct {
	Role Role

	// UserMessage / AssistantMessage: ordered content blocks.
	Blocks []ContentBlock

	// AssistantMessage only.
	StopReason   StopReason
	Usage        Usage
	ErrorMessage string

	// ToolResultMessage only.
	ToolCallID string
	ToolName   string
	IsError    bool

	// RoleCustom only: passes through opaquely, uninterpreted by the core.
	CustomType    string
	CustomPayload any
}

// Text returns a text content block.
func Text(s string) ContentBlock { return ContentBlock{Kind: BlockText, Text: s} }

// Thinking returns a reasoning content block.
func Thinking(s string) ContentBlock { return ContentBlock{Kind: BlockThinking, Text: s} }

// Image returns an image content block.
func Image(img ImageData) ContentBlock { return ContentBlock{Kind: BlockImage, Image: &img} }

// Call returns a tool-call content block.
func Call(tc ToolCall) ContentBlock { return ContentBlock{Kind: BlockToolCall, ToolCall: &tc} }

// NewUserMessage builds a UserMessage from text and optional images.
func NewUserMessage(text string, images []ImageData) Message {
	blocks := make([]ContentBlock, 0, 1+len(images))
	if text != "" {
		blocks = append(blocks, Text(text))
	}
	for _, img := range images {
		blocks = append(blocks, Image(img))
	}
	return Message{Role: RoleUser, Blocks: blocks}
}

// NewAssistantMessage builds a terminal AssistantMessage.
func NewAssistantMessage(blocks []ContentBlock, reason StopReason, usage Usage) Message {
	return Message{Role: RoleAssistant, Blocks: blocks, StopReason: reason, Usage: usage}
}

// NewToolResultMessage binds a ToolResult to the call it answers.
func NewToolResultMessage(callID, toolName string, r ToolResult) Message {
	return Message{
		Role:       RoleToolResult,
		ToolCallID: callID,
		ToolName:   toolName,
		Blocks:     r.Content,
		IsError:    r.IsError,
	}
}

// ErrorResult builds an error ToolResult carrying a single text block.
func ErrorResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{Text(text)}, IsError: true}
}

// Text concatenates every text block's content, in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Thinking concatenates every reasoning block's content, in order.
func (m Message) Thinking() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Kind == BlockThinking {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the ordered ToolCall blocks of an AssistantMessage.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Blocks {
		if b.Kind == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// AppendTextDelta appends delta to the last text block, opening a new
// one if the last block is not text. Used while folding stream deltas.
func (m *Message) AppendTextDelta(delta string) {
	appendBlockDelta(m, BlockText, delta)
}

// AppendThinkingDelta appends delta to the last reasoning block, opening
// a new one if the last block is not reasoning.
func (m *Message) AppendThinkingDelta(delta string) {
	appendBlockDelta(m, BlockThinking, delta)
}

func appendBlockDelta(m *Message, kind BlockKind, delta string) {
	if n := len(m.Blocks); n > 0 && m.Blocks[n-1].Kind == kind {
		m.Blocks[n-1].Text += delta
		return
	}
	m.Blocks = append(m.Blocks, ContentBlock{Kind: kind, Text: delta})
}

// Snapshot returns a deep-enough copy of m suitable for handing to an
// observer: the Blocks slice and its ToolCall/Image pointees are copied
// so later in-place folding cannot mutate what the observer already saw.
func (m Message) Snapshot() Message {
	out := m
	out.Blocks = make([]ContentBlock, len(m.Blocks))
	for i, b := range m.Blocks {
		out.Blocks[i] = b
		if b.ToolCall != nil {
			tc := *b.ToolCall
			out.Blocks[i].ToolCall = &tc
		}
		if b.Image != nil {
			img := *b.Image
			out.Blocks[i].Image = &img
		}
	}
	return out
}

// ParseToolInput is kept for provider adapters that still receive raw
// JSON tool arguments from the wire and must decode them into the
// mapping ToolCall.Arguments expects.
func ParseToolInput(raw []byte) (map[string]any, error) {
	return parseToolInput(raw)
}

// Describe renders a one-line human summary, used by logging.
func (m Message) Describe() string {
	switch m.Role {
	case RoleUser:
		return fmt.Sprintf("user(%d blocks)", len(m.Blocks))
	case RoleAssistant:
		return fmt.Sprintf("assistant(%d blocks, stop=%s)", len(m.Blocks), m.StopReason)
	case RoleToolResult:
		return fmt.Sprintf("tool_result(%s, error=%v)", m.ToolName, m.IsError)
	default:
		return fmt.Sprintf("custom(%s)", m.CustomType)
	}
}
