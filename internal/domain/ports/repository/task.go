package repository

import (
	"context"

	"screenshot-ai-assistant/internal/domain/model"
)

// TaskRepository persists tasks and their conversations.
type TaskRepository interface {
	Save(ctx context.Context, qx any, task *model.Task) error
	Update(ctx context.Context, qx any, task *model.Task) error
	FindByTaskID(ctx context.Context, qx any, taskID string) (*model.Task, error)
}
