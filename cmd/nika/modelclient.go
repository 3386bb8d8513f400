package main

import (
	"context"
	"fmt"

	"github.com/nikahq/nika/internal/config"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/provider/anthropic"
	"github.com/nikahq/nika/internal/provider/bedrock"
	"github.com/nikahq/nika/internal/provider/openai"
)

// newModelClient resolves the modelapi.Client the agent verb's multi-turn
// loop dispatches through, for whichever provider the config names as the
// default. infer-verb single-turn calls go through the separate
// provider.Create registry instead; this is only the richer surface
// agentloop needs.
func newModelClient(ctx context.Context, cfg *config.Config) (modelapi.Client, error) {
	name := cfg.General.DefaultProvider
	if name == "" {
		name = "anthropic"
	}

	switch name {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.ProviderAPIKey("anthropic"), modelOrDefault(cfg, "claude-sonnet-4-5-20250929"))
	case "openai":
		return openai.NewFromAPIKey(cfg.ProviderAPIKey("openai"), modelOrDefault(cfg, "gpt-4.1"))
	case "bedrock":
		return bedrock.NewFromEnv(ctx, modelOrDefault(cfg, "anthropic.claude-3-5-sonnet-20241022-v2:0"))
	default:
		return nil, fmt.Errorf("unknown default provider %q", name)
	}
}

func modelOrDefault(cfg *config.Config, fallback string) string {
	if cfg.General.DefaultModel != "" {
		return cfg.General.DefaultModel
	}
	return fallback
}
