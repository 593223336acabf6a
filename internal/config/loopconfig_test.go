package config

import "testing"

func TestValidateLoopConfigRejectsUnknownKeys(t *testing.T) {
	data := []byte(`{"model_id":"gpt-4o","reasoning_level":"high","bogus_field":true}`)

	_, err := ValidateLoopConfig(data)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestValidateLoopConfigAcceptsRecognizedFields(t *testing.T) {
	data := []byte(`{
		"model_id": "claude-sonnet-4",
		"reasoning_level": "medium",
		"max_tokens": 4096,
		"session_id": "s1",
		"thinking_budgets": {"minimal": "1k", "low": "2k", "medium": "4k", "high": "8k"},
		"max_retry_delay_ms": 30000
	}`)

	cfg, err := ValidateLoopConfig(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelID != "claude-sonnet-4" {
		t.Errorf("expected model_id to round-trip, got %q", cfg.ModelID)
	}
	if cfg.ReasoningLevel != ReasoningMedium {
		t.Errorf("expected reasoning_level=medium, got %q", cfg.ReasoningLevel)
	}
	if cfg.MaxRetryDelayMs == nil || *cfg.MaxRetryDelayMs != 30000 {
		t.Errorf("expected max_retry_delay_ms=30000, got %v", cfg.MaxRetryDelayMs)
	}
}

func TestValidateLoopConfigRejectsMissingModelID(t *testing.T) {
	_, err := ValidateLoopConfig([]byte(`{"reasoning_level":"off"}`))
	if err == nil {
		t.Fatal("expected error for missing model_id, got nil")
	}
}

func TestValidateLoopConfigRejectsUnknownReasoningLevel(t *testing.T) {
	_, err := ValidateLoopConfig([]byte(`{"model_id":"gpt-4o","reasoning_level":"turbo"}`))
	if err == nil {
		t.Fatal("expected error for unrecognized reasoning_level, got nil")
	}
}

func TestValidateLoopConfigRejectsNegativeRetryDelay(t *testing.T) {
	_, err := ValidateLoopConfig([]byte(`{"model_id":"gpt-4o","max_retry_delay_ms":-1}`))
	if err == nil {
		t.Fatal("expected error for negative max_retry_delay_ms, got nil")
	}
}

func TestValidateCompactionSettingsRejectsUnknownKeys(t *testing.T) {
	_, err := ValidateCompactionSettings([]byte(`{"enabled":true,"reserve_tokens":1000,"nonsense":1}`))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestValidateCompactionSettingsAcceptsRecognizedFields(t *testing.T) {
	cfg, err := ValidateCompactionSettings([]byte(`{"enabled":true,"reserve_tokens":2000,"keep_recent_tokens":500}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled || cfg.ReserveTokens != 2000 || cfg.KeepRecentTokens != 500 {
		t.Errorf("unexpected settings: %+v", cfg)
	}
}
