package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/genloop/genloop/internal/message"
)

const maxBashOutput = 30000

// BashTool executes a shell command synchronously and captures its output.
type BashTool struct{}

func (t *BashTool) Name() string        { return "Bash" }
func (t *BashTool) Description() string { return "Execute a shell command" }

func (t *BashTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string"},
			"description": map[string]any{"type": "string", "description": "Short description of what the command does"},
			"timeout":     map[string]any{"type": "integer", "description": "Timeout in milliseconds, default 120000, max 600000"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, callID string, args map[string]any, progress ProgressSink) message.ToolResult {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return errorResult("command is required")
	}

	timeout := 120 * time.Second
	if timeoutMs, ok := args["timeout"].(float64); ok && timeoutMs > 0 {
		timeout = min(time.Duration(timeoutMs)*time.Millisecond, 600*time.Second)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd, _ := os.Getwd()
	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if progress != nil {
		progress.Progress("Running: " + command)
	}

	err := cmd.Run()

	output := stdout.String()
	errOutput := stderr.String()
	full := output
	if errOutput != "" {
		if full != "" {
			full += "\n"
		}
		full += errOutput
	}

	truncated := false
	if len(full) > maxBashOutput {
		full = full[:maxBashOutput] + "\n... (output truncated)"
		truncated = true
	}
	_ = truncated

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			msg := fmt.Sprintf("command timed out after %s", timeout)
			if full != "" {
				msg = full + "\n" + msg
			}
			return errorResult(msg)
		}
		errMsg := err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			errMsg = fmt.Sprintf("exit code %d", exitErr.ExitCode())
		}
		msg := errMsg
		if full != "" {
			msg = full + "\n" + errMsg
		}
		return errorResult(msg)
	}

	if full == "" {
		full = "(no output)"
	}
	return textResult(full)
}

func init() {
	Register(&BashTool{})
}
