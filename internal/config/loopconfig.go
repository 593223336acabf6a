package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReasoningLevel mirrors client.ReasoningLevel without importing
// internal/client — config stays a leaf package the same way the
// teacher keeps it dependency-free.
type ReasoningLevel string

const (
	ReasoningOff     ReasoningLevel = "off"
	ReasoningMinimal ReasoningLevel = "minimal"
	ReasoningLow     ReasoningLevel = "low"
	ReasoningMedium  ReasoningLevel = "medium"
	ReasoningHigh    ReasoningLevel = "high"
	ReasoningXHigh   ReasoningLevel = "xhigh"
)

var validReasoningLevels = map[ReasoningLevel]bool{
	ReasoningOff:     true,
	ReasoningMinimal: true,
	ReasoningLow:     true,
	ReasoningMedium:  true,
	ReasoningHigh:    true,
	ReasoningXHigh:   true,
}

// ThinkingBudgets is the JSON-facing form of spec.md §3's
// thinking_budgets table.
type ThinkingBudgets struct {
	Minimal string `json:"minimal,omitempty"`
	Low     string `json:"low,omitempty"`
	Medium  string `json:"medium,omitempty"`
	High    string `json:"high,omitempty"`
}

// LoopConfig is the JSON-facing flat record spec.md §3 defines:
// "configuration recognized by the engine". It is the wire format
// config.ValidateLoopConfig parses and rejects unknown keys against;
// callers convert the validated result into client.LoopConfig.
type LoopConfig struct {
	ModelID         string           `json:"model_id"`
	ReasoningLevel  ReasoningLevel   `json:"reasoning_level,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxTokens       int              `json:"max_tokens,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	APIKey          string           `json:"api_key,omitempty"`
	ThinkingBudgets *ThinkingBudgets `json:"thinking_budgets,omitempty"`
	MaxRetryDelayMs *int             `json:"max_retry_delay_ms,omitempty"`
}

// CompactionSettings is the JSON-facing form of spec.md §3's
// CompactionSettings: {enabled, reserve_tokens, keep_recent_tokens}.
type CompactionSettings struct {
	Enabled          bool `json:"enabled"`
	ReserveTokens    int  `json:"reserve_tokens"`
	KeepRecentTokens int  `json:"keep_recent_tokens"`
}

// ValidateLoopConfig parses a LoopConfig from JSON, rejecting unknown
// keys per spec.md §6 ("Unknown keys are rejected by the config
// validator") and checking reasoning_level against the enum in §3.
func ValidateLoopConfig(data []byte) (*LoopConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg LoopConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("loop config: %w", err)
	}

	if cfg.ModelID == "" {
		return nil, fmt.Errorf("loop config: model_id is required")
	}
	if cfg.ReasoningLevel != "" && !validReasoningLevels[cfg.ReasoningLevel] {
		return nil, fmt.Errorf("loop config: unrecognized reasoning_level %q", cfg.ReasoningLevel)
	}
	if cfg.MaxRetryDelayMs != nil && *cfg.MaxRetryDelayMs < 0 {
		return nil, fmt.Errorf("loop config: max_retry_delay_ms must be >= 0")
	}

	return &cfg, nil
}

// ValidateCompactionSettings parses a CompactionSettings from JSON,
// rejecting unknown keys the same way ValidateLoopConfig does.
func ValidateCompactionSettings(data []byte) (*CompactionSettings, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg CompactionSettings
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("compaction settings: %w", err)
	}
	if cfg.ReserveTokens < 0 || cfg.KeepRecentTokens < 0 {
		return nil, fmt.Errorf("compaction settings: reserve_tokens and keep_recent_tokens must be >= 0")
	}

	return &cfg, nil
}
