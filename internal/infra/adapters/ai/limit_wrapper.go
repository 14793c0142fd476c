package ai

import (
	"context"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIProvider = (*limitedAI)(nil)

// limitedAI caps concurrent upstream calls with a semaphore.
type limitedAI struct {
	inner adapter.AIProvider
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIProvider, maxConcurrent int) adapter.AIProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, modelName, turns)
}

func (l *limitedAI) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	return l.inner.CountTokens(ctx, modelName, turns)
}
