package log

import (
	"fmt"
	"strings"

	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// LogRequest logs an LLM request in human-readable format and mirrors it
// to DEV_DIR as JSON when enabled.
func LogRequest(providerName, model string, opts provider.CompletionOptions) {
	turn := NextTurn()

	WriteDevRequest(providerName, model, opts, turn)

	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "───────────────────────────────────────── %s ─────────────────────────────────────────\n", GetTurnPrefix(turn))
	temp := 0.0
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	fmt.Fprintf(&sb, ">>> [%s] %s | max_tokens=%d temp=%.1f\n", providerName, model, opts.MaxTokens, temp)

	if opts.SystemPrompt != "" {
		fmt.Fprintf(&sb, "    System: %s\n", escapeForLog(opts.SystemPrompt))
	}

	if len(opts.Tools) > 0 {
		toolNames := make([]string, len(opts.Tools))
		for i, t := range opts.Tools {
			toolNames[i] = t.Name
		}
		fmt.Fprintf(&sb, "    Tools(%d): [%s]\n", len(opts.Tools), strings.Join(toolNames, ", "))
	}

	fmt.Fprintf(&sb, "    Messages(%d):\n", len(opts.Messages))
	for i, msg := range opts.Messages {
		switch msg.Role {
		case message.RoleUser:
			if text := msg.Text(); text != "" {
				fmt.Fprintf(&sb, "      [%d] User: %s\n", i, escapeForLog(text))
			}
		case message.RoleToolResult:
			if msg.IsError {
				fmt.Fprintf(&sb, "      [%d] ToolResult[%s] ERROR: %s\n", i, msg.ToolCallID, escapeForLog(msg.Text()))
			} else {
				fmt.Fprintf(&sb, "      [%d] ToolResult[%s]: %s\n", i, msg.ToolCallID, escapeForLog(msg.Text()))
			}
		case message.RoleAssistant:
			if text := msg.Text(); text != "" {
				fmt.Fprintf(&sb, "      [%d] Assistant: %s\n", i, escapeForLog(text))
			}
			for _, tc := range msg.ToolCalls() {
				argsJSON, _ := jsonMarshalCompact(tc.Arguments)
				fmt.Fprintf(&sb, "      [%d] ToolCall: %s(%s)\n", i, tc.Name, escapeForLog(argsJSON))
			}
		}
	}

	logger.Info(sb.String())
}
