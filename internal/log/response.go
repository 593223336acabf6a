package log

import (
	"fmt"
	"strings"

	"github.com/genloop/genloop/internal/message"
)

// LogResponse logs an LLM response in human-readable format and mirrors it
// to DEV_DIR as JSON when enabled.
func LogResponse(providerName string, final message.Message) {
	turn := CurrentTurn()

	WriteDevResponse(providerName, final, turn)

	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<<< [%s] stop=%s | in=%d out=%d\n", providerName, final.StopReason, final.Usage.Input, final.Usage.Output)

	if text := final.Text(); text != "" {
		sb.WriteString("    Content:\n")
		for _, line := range strings.Split(text, "\n") {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}

	if thinking := final.Thinking(); thinking != "" {
		sb.WriteString("    Thinking:\n")
		for _, line := range strings.Split(thinking, "\n") {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}

	if calls := final.ToolCalls(); len(calls) > 0 {
		fmt.Fprintf(&sb, "    ToolCalls(%d):\n", len(calls))
		for _, tc := range calls {
			argsJSON, _ := jsonMarshalCompact(tc.Arguments)
			fmt.Fprintf(&sb, "      [%s] %s(%s)\n", tc.ID, tc.Name, escapeForLog(argsJSON))
		}
	}

	logger.Info(sb.String())
}

// LogError logs an error in human-readable format
func LogError(context string, err error) {
	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "!!! ERROR [%s] %v\n", context, err)

	logger.Error(sb.String())
}
