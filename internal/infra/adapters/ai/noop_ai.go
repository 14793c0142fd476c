package ai

import (
	"context"
	"time"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIProvider = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIProvider for local/dev testing.
// It returns canned output instead of calling a real backend.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

func (a *NoopAIAdapter) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "- Problem: noop problem\n- Solution: noop solution", nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	n := 0
	for _, t := range turns {
		n += len(t.Content) / 4
	}
	return n, nil
}
