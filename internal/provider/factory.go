package provider

import (
	"context"
	"fmt"

	"github.com/genloop/genloop/internal/provider/anthropic"
	"github.com/genloop/genloop/internal/provider/google"
	"github.com/genloop/genloop/internal/provider/moonshot"
	"github.com/genloop/genloop/internal/provider/openai"
)

// NewProvider creates a new LLMProvider based on a "<provider>:<auth>" key.
func NewProvider(ctx context.Context, name string) (LLMProvider, error) {
	switch name {
	case "anthropic:api_key":
		return anthropic.NewAPIKeyClient(ctx)
	case "google:api_key":
		return google.NewAPIKeyClient(ctx)
	case "openai:api_key":
		return openai.NewAPIKeyClient(ctx)
	case "moonshot:api_key":
		return moonshot.NewAPIKeyClient(ctx)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
