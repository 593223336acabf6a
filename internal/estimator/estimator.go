// Package estimator implements the Token Estimator (C1): a cheap,
// conservative byte-level estimate of conversation size, sharpened by
// authoritative usage counters from the model when available.
package estimator

import (
	"encoding/json"

	"github.com/genloop/genloop/internal/message"
)

// imageByteSurrogate is the fixed byte cost assigned to every image
// block, regardless of its actual encoded size.
const imageByteSurrogate = 4800

// EstimateMessage returns ceil(bytes/4) over the message's visible
// content: text across variants, serialized tool-call arguments, and a
// flat surrogate per image. It is deterministic and pure.
func EstimateMessage(m message.Message) int {
	var chars int

	switch m.Role {
	case message.RoleUser, message.RoleToolResult:
		for _, b := range m.Blocks {
			switch b.Kind {
			case message.BlockText:
				chars += len(b.Text)
			case message.BlockImage:
				chars += imageByteSurrogate
			}
		}
	case message.RoleAssistant:
		for _, b := range m.Blocks {
			switch b.Kind {
			case message.BlockText, message.BlockThinking:
				chars += len(b.Text)
			case message.BlockToolCall:
				chars += len(b.ToolCall.Name)
				if raw, err := json.Marshal(b.ToolCall.Arguments); err == nil {
					chars += len(raw)
				}
			}
		}
	case message.RoleCustom:
		if s, ok := m.CustomPayload.(string); ok {
			chars += len(s)
		}
	}

	return ceilDiv4(chars)
}

func ceilDiv4(n int) int { return (n + 3) / 4 }

// ContextUsage is the result of EstimateContext.
type ContextUsage struct {
	Tokens         int
	UsageTokens    int
	TrailingTokens int
	// LastUsageIndex is -1 when no anchor was found.
	LastUsageIndex int
}

// EstimateContext scans messages newest-to-oldest for the most recent
// AssistantMessage with a populated, non-aborted, non-error usage. That
// message's usage anchors the estimate; everything after it is summed
// with EstimateMessage. Without an anchor the whole conversation is
// estimated.
func EstimateContext(messages []message.Message) ContextUsage {
	lastIdx := -1
	var anchor message.Usage

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != message.RoleAssistant {
			continue
		}
		if m.StopReason == message.StopAborted || m.StopReason == message.StopError {
			continue
		}
		if m.Usage == (message.Usage{}) {
			continue
		}
		anchor = m.Usage
		lastIdx = i
		break
	}

	if lastIdx == -1 {
		total := 0
		for _, m := range messages {
			total += EstimateMessage(m)
		}
		return ContextUsage{Tokens: total, TrailingTokens: total, LastUsageIndex: -1}
	}

	usageTokens := anchor.Total
	if usageTokens == 0 {
		usageTokens = anchor.Input + anchor.Output + anchor.CacheRead + anchor.CacheWrite
	}

	trailing := 0
	for i := lastIdx + 1; i < len(messages); i++ {
		trailing += EstimateMessage(messages[i])
	}

	return ContextUsage{
		Tokens:         usageTokens + trailing,
		UsageTokens:    usageTokens,
		TrailingTokens: trailing,
		LastUsageIndex: lastIdx,
	}
}
