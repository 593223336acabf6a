package compactor

import (
	"fmt"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

// SerializeConversation renders messages as role-tagged plain text so a
// summarization call cannot mistake its input for a conversation to
// continue.
func SerializeConversation(messages []message.Message) string {
	var parts []string
	for _, m := range messages {
		switch m.Role {
		case message.RoleUser:
			if text := m.Text(); text != "" {
				parts = append(parts, fmt.Sprintf("[User]: %s", text))
			}

		case message.RoleAssistant:
			if thinking := m.Thinking(); thinking != "" {
				parts = append(parts, fmt.Sprintf("[Assistant thinking]: %s", thinking))
			}
			if text := m.Text(); text != "" {
				parts = append(parts, fmt.Sprintf("[Assistant]: %s", text))
			}
			if calls := m.ToolCalls(); len(calls) > 0 {
				rendered := make([]string, len(calls))
				for i, tc := range calls {
					rendered[i] = fmt.Sprintf("%s(%s)", tc.Name, formatArgs(tc.Arguments))
				}
				parts = append(parts, fmt.Sprintf("[Assistant tool calls]: %s", strings.Join(rendered, "; ")))
			}

		case message.RoleToolResult:
			if text := m.Text(); text != "" {
				parts = append(parts, fmt.Sprintf("[Tool result]: %s", text))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func formatArgs(args map[string]any) string {
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}
