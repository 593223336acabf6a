package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/genloop/genloop/internal/client"
	"github.com/genloop/genloop/internal/compactor"
	"github.com/genloop/genloop/internal/config"
	"github.com/genloop/genloop/internal/core"
	"github.com/genloop/genloop/internal/event"
	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/permission"
	"github.com/genloop/genloop/internal/provider"
	"github.com/genloop/genloop/internal/tool"

	// Import providers for registration.
	_ "github.com/genloop/genloop/internal/provider/anthropic"
	_ "github.com/genloop/genloop/internal/provider/google"
	_ "github.com/genloop/genloop/internal/provider/moonshot"
	_ "github.com/genloop/genloop/internal/provider/openai"
)

var version = "0.1.0"

func init() {
	_ = godotenv.Load()
	_ = log.Init()
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gen [message]",
	Short: "Gen - AI coding agent core for the terminal",
	Long: `Gen drives one prompt through the agent execution core: reads the
conversation, streams a model turn, dispatches any requested tools, and
prints the result.

  gen "your message"       Send a message directly
  echo "message" | gen     Send a message via stdin
  gen -p "prompt"          Use a custom prompt`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		message := getInputMessage(args)
		if message == "" {
			_ = cmd.Help()
			return
		}
		if err := runPrompt(message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var promptFlag string
var loopConfigFlag string
var compactionConfigFlag string

func init() {
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Custom prompt to send")
	rootCmd.Flags().StringVar(&loopConfigFlag, "loop-config", "", "Path to a JSON LoopConfig file")
	rootCmd.Flags().StringVar(&compactionConfigFlag, "compaction-config", "", "Path to a JSON CompactionSettings file")
}

// getInputMessage resolves the message to send from flags, positional
// args, or a piped stdin, in that priority order.
func getInputMessage(args []string) string {
	if promptFlag != "" {
		return promptFlag
	}
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// runPrompt resolves a connected provider, builds one Engine wired to
// the default tool registry, and drives a single prompt() to
// completion, printing text deltas and tool activity as they stream.
func runPrompt(msg string) error {
	ctx := context.Background()

	llmProvider, modelID, err := resolveProvider(ctx)
	if err != nil {
		return err
	}

	loopConfig := client.LoopConfig{ModelID: modelID}
	if loopConfigFlag != "" {
		parsed, err := loadLoopConfig(loopConfigFlag)
		if err != nil {
			return err
		}
		loopConfig = client.LoopConfigFromSettings(*parsed)
		if loopConfig.ModelID == "" {
			loopConfig.ModelID = modelID
		}
	}

	e := core.NewEngine()
	e.Client = &client.Client{Provider: llmProvider, Config: loopConfig}
	e.SystemPrompt = "You are Gen, a helpful AI coding assistant running in a terminal."
	e.Registry = tool.DefaultRegistry
	e.Tools = &tool.Set{Registry: e.Registry}
	e.Permission = permission.PermitAll()
	e.ContextWindow = e.Client.ResolveMaxTokens(ctx)

	if compactionConfigFlag != "" {
		settings, err := loadCompactionSettings(compactionConfigFlag)
		if err != nil {
			return err
		}
		e.Compaction = compactor.CompactionSettings{
			Enabled:          settings.Enabled,
			ReserveTokens:    settings.ReserveTokens,
			KeepRecentTokens: settings.KeepRecentTokens,
		}
	}

	e.Subscribe(event.SinkFunc(printEvent))

	if err := e.Prompt(ctx, msg, nil); err != nil {
		return err
	}
	if err := e.Err(); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

// loadLoopConfig reads and validates a JSON LoopConfig file, rejecting
// unknown keys via config.ValidateLoopConfig.
func loadLoopConfig(path string) (*config.LoopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read loop config %s: %w", path, err)
	}
	cfg, err := config.ValidateLoopConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid loop config %s: %w", path, err)
	}
	return cfg, nil
}

// loadCompactionSettings reads and validates a JSON CompactionSettings
// file, rejecting unknown keys via config.ValidateCompactionSettings.
func loadCompactionSettings(path string) (*config.CompactionSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compaction config %s: %w", path, err)
	}
	cfg, err := config.ValidateCompactionSettings(data)
	if err != nil {
		return nil, fmt.Errorf("invalid compaction config %s: %w", path, err)
	}
	return cfg, nil
}

func printEvent(ev event.Event) {
	switch ev.Kind {
	case event.MessageUpdate:
		if ev.Delta != "" {
			fmt.Print(ev.Delta)
		}
	case event.ToolExecutionStart:
		fmt.Fprintf(os.Stderr, "\n[tool] %s %v\n", ev.ToolName, ev.ToolArgs)
	case event.ToolExecutionEnd:
		if ev.ToolIsError {
			fmt.Fprintf(os.Stderr, "[tool error] %s: %s\n", ev.ToolName, resultText(ev.ToolResult))
		}
	}
}

func resultText(r message.ToolResult) string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Kind == message.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// resolveProvider picks the current connected provider from the store,
// falling back to the first connected provider if none is marked current.
func resolveProvider(ctx context.Context) (provider.LLMProvider, string, error) {
	store, err := provider.NewStore()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load store: %w", err)
	}

	if current := store.GetCurrentModel(); current != nil {
		p, err := provider.GetProvider(ctx, current.Provider, current.AuthMethod)
		if err != nil {
			return nil, "", fmt.Errorf("provider %s (%s) not available: %w", current.Provider, current.AuthMethod, err)
		}
		return p, current.ModelID, nil
	}

	for name, conn := range store.GetConnections() {
		p, err := provider.GetProvider(ctx, provider.Provider(name), conn.AuthMethod)
		if err == nil {
			return p, defaultModel(name, conn.AuthMethod), nil
		}
	}

	return nil, "", fmt.Errorf("no provider connected; set an API key and connect a provider first")
}

// defaultModel returns a sensible default model ID for a provider with
// no explicit current-model selection.
func defaultModel(providerName string, authMethod provider.AuthMethod) string {
	switch providerName {
	case "anthropic":
		if authMethod == provider.AuthVertex {
			return "claude-sonnet-4-5@20250929"
		}
		return "claude-sonnet-4-20250514"
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-2.0-flash"
	case "moonshot":
		return "kimi-k2-0711-preview"
	default:
		return "claude-sonnet-4-20250514"
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gen version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
