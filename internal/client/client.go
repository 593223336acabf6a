// Package client resolves a LoopConfig into provider-facing
// CompletionOptions: reasoning-level mapping, thinking-budget lookup,
// and model/token defaults, before handing off to an LLMProvider.
package client

import (
	"context"
	"strings"

	"github.com/genloop/genloop/internal/config"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

const defaultMaxTokens = 8192

// xhighCapableMarker is the model-id substring that signals xhigh
// reasoning support (spec.md §6).
const xhighCapableMarker = "gpt-5.2"

// DefaultMaxRetryDelayMs is substituted whenever a LoopConfig leaves
// MaxRetryDelayMs at its zero value.
const DefaultMaxRetryDelayMs = 60000

// ReasoningLevel is the engine's internal, provider-agnostic reasoning
// intensity (spec.md §3 LoopConfig.reasoning_level).
type ReasoningLevel string

const (
	ReasoningOff     ReasoningLevel = "off"
	ReasoningMinimal ReasoningLevel = "minimal"
	ReasoningLowL    ReasoningLevel = "low"
	ReasoningMediumL ReasoningLevel = "medium"
	ReasoningHighL   ReasoningLevel = "high"
	ReasoningXHighL  ReasoningLevel = "xhigh"
)

// ThinkingBudgets maps a reasoning level to an explicit token budget,
// for providers that price reasoning separately (spec.md §3).
type ThinkingBudgets struct {
	Minimal provider.ThinkingBudget
	Low     provider.ThinkingBudget
	Medium  provider.ThinkingBudget
	High    provider.ThinkingBudget
}

// LoopConfig is the configuration the Turn Engine recognizes (spec.md §3).
type LoopConfig struct {
	ModelID         string
	ReasoningLevel  ReasoningLevel
	Temperature     *float64
	MaxTokens       int
	SessionID       string
	APIKey          string
	ThinkingBudgets *ThinkingBudgets
	MaxRetryDelayMs int // default 60000; 0 from an unset config normalizes to the default
}

// LoopConfigFromSettings converts a config.LoopConfig — the validated,
// JSON-facing record config.ValidateLoopConfig produces — into the
// Go-native LoopConfig the Turn Engine consumes.
func LoopConfigFromSettings(cfg config.LoopConfig) LoopConfig {
	lc := LoopConfig{
		ModelID:        cfg.ModelID,
		ReasoningLevel: ReasoningLevel(cfg.ReasoningLevel),
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		SessionID:      cfg.SessionID,
		APIKey:         cfg.APIKey,
	}
	if cfg.MaxRetryDelayMs != nil {
		lc.MaxRetryDelayMs = *cfg.MaxRetryDelayMs
	}
	if cfg.ThinkingBudgets != nil {
		lc.ThinkingBudgets = &ThinkingBudgets{
			Minimal: provider.ThinkingBudget(cfg.ThinkingBudgets.Minimal),
			Low:     provider.ThinkingBudget(cfg.ThinkingBudgets.Low),
			Medium:  provider.ThinkingBudget(cfg.ThinkingBudgets.Medium),
			High:    provider.ThinkingBudget(cfg.ThinkingBudgets.High),
		}
	}
	return lc
}

// resolveReasoningEffort implements the spec.md §6 mapping table.
func resolveReasoningEffort(level ReasoningLevel, modelID string) provider.ReasoningEffort {
	switch level {
	case ReasoningMinimal, ReasoningLowL:
		return provider.ReasoningLow
	case ReasoningMediumL:
		return provider.ReasoningMedium
	case ReasoningHighL:
		return provider.ReasoningHigh
	case ReasoningXHighL:
		if strings.Contains(modelID, xhighCapableMarker) {
			return provider.ReasoningXHigh
		}
		return provider.ReasoningHigh
	default: // off, ""
		return provider.ReasoningNone
	}
}

// resolveThinkingBudget implements "when a thinking_budgets table is
// provided and the level is not off" (spec.md §6).
func resolveThinkingBudget(level ReasoningLevel, budgets *ThinkingBudgets) provider.ThinkingBudget {
	if budgets == nil || level == ReasoningOff || level == "" {
		return provider.ThinkingNone
	}
	switch level {
	case ReasoningMinimal:
		return budgets.Minimal
	case ReasoningLowL:
		return budgets.Low
	case ReasoningMediumL:
		return budgets.Medium
	case ReasoningHighL, ReasoningXHighL:
		return budgets.High
	default:
		return provider.ThinkingNone
	}
}

// Client wraps an LLMProvider, resolving a LoopConfig into
// provider.CompletionOptions for each call.
type Client struct {
	Provider provider.LLMProvider
	Config   LoopConfig
}

// Name returns the provider name (e.g. "anthropic").
func (c *Client) Name() string { return c.Provider.Name() }

// Options builds the normalized CompletionOptions for one stream call.
func (c *Client) Options(systemPrompt string, messages []message.Message, tools []provider.ToolManifest) provider.CompletionOptions {
	maxTokens := c.Config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	retryDelay := c.Config.MaxRetryDelayMs
	if retryDelay == 0 {
		retryDelay = DefaultMaxRetryDelayMs
	}

	return provider.CompletionOptions{
		ModelID:         c.Config.ModelID,
		SystemPrompt:    systemPrompt,
		Messages:        messages,
		Tools:           tools,
		ReasoningEffort: resolveReasoningEffort(c.Config.ReasoningLevel, c.Config.ModelID),
		ThinkingBudget:  resolveThinkingBudget(c.Config.ReasoningLevel, c.Config.ThinkingBudgets),
		Temperature:     c.Config.Temperature,
		MaxTokens:       maxTokens,
		SessionID:       c.Config.SessionID,
		MaxRetryDelayMs: retryDelay,
		APIKey:          c.Config.APIKey,
	}
}

// Stream opens a model stream through the wrapped provider.
func (c *Client) Stream(ctx context.Context, systemPrompt string, messages []message.Message, tools []provider.ToolManifest) (<-chan provider.StreamEvent, error) {
	return c.Provider.Stream(ctx, c.Options(systemPrompt, messages, tools))
}

// ResolveMaxTokens returns the effective output token limit: the
// config override if set, else the provider's model metadata, else the
// package default.
func (c *Client) ResolveMaxTokens(ctx context.Context) int {
	if c.Config.MaxTokens > 0 {
		return c.Config.MaxTokens
	}
	if limit := c.providerOutputLimit(ctx); limit > 0 {
		return limit
	}
	return defaultMaxTokens
}

func (c *Client) providerOutputLimit(ctx context.Context) int {
	if c.Provider == nil {
		return 0
	}
	models, err := c.Provider.ListModels(ctx)
	if err != nil {
		return 0
	}
	for _, m := range models {
		if m.ID == c.Config.ModelID {
			return m.OutputTokenLimit
		}
	}
	return 0
}
