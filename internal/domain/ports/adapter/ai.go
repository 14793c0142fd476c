package adapter

import (
	"context"

	"screenshot-ai-assistant/internal/domain/model"
)

// AIProvider is the port for LLM chat completion.
type AIProvider interface {
	// Complete sends the whole conversation and returns the assistant text.
	// Turns may carry base64 images for multimodal user messages.
	Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error)

	// CountTokens returns prompt tokens for the provided turns
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error)
}
