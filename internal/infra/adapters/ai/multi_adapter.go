package ai

import (
	"context"
	"fmt"
	"strings"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

// ProviderFamily identifies which backend serves a model.
type ProviderFamily string

const (
	ProviderOpenAI    ProviderFamily = "openai"
	ProviderAnthropic ProviderFamily = "anthropic"
	ProviderGemini    ProviderFamily = "gemini"
)

// ResolveProvider maps a model name to its provider family by prefix.
// Unknown names are an error rather than a silent fallback, so a typo in
// a request cannot route to an unintended (and billed) backend.
func ResolveProvider(modelName string) (ProviderFamily, error) {
	l := strings.ToLower(strings.TrimSpace(modelName))
	switch {
	case strings.HasPrefix(l, "gpt") || strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3") || strings.HasPrefix(l, "o4"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(l, "claude"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(l, "gemini"):
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownModel, modelName)
	}
}

var _ adapter.AIProvider = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes each call to the provider that owns the model.
// A missing provider for a resolvable model is a configuration error and
// surfaces as domain.ErrUnknownModel.
type MultiAIAdapter struct {
	byFamily map[ProviderFamily]adapter.AIProvider
}

func NewMultiAIAdapter(byFamily map[ProviderFamily]adapter.AIProvider) *MultiAIAdapter {
	return &MultiAIAdapter{byFamily: byFamily}
}

func (m *MultiAIAdapter) pick(modelName string) (adapter.AIProvider, error) {
	fam, err := ResolveProvider(modelName)
	if err != nil {
		return nil, err
	}
	if a := m.byFamily[fam]; a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: no %s provider configured", domain.ErrUnknownModel, fam)
}

func (m *MultiAIAdapter) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	a, err := m.pick(modelName)
	if err != nil {
		return "", err
	}
	return a.Complete(ctx, modelName, turns)
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	a, err := m.pick(modelName)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, modelName, turns)
}
