package redis

import (
	"context"
	"encoding/json"
	"time"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/infra/metrics"
)

// TaskCache keeps recently touched task records in Redis so debug rounds and
// late event-stream readers avoid a database round trip.
type TaskCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewTaskCache(client RedisClient, ttl time.Duration) *TaskCache {
	return &TaskCache{client: client, ttl: ttl}
}

func (c *TaskCache) Store(ctx context.Context, task *model.Task) error {
	key := "task:" + task.ID
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

func (c *TaskCache) Get(ctx context.Context, taskID string) (*model.Task, error) {
	key := "task:" + taskID
	data, err := c.client.Get(ctx, key)
	if err != nil {
		metrics.IncCacheRequest("task", "miss")
		return nil, err
	}

	var task model.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, err
	}
	metrics.IncCacheRequest("task", "hit")
	return &task, nil
}

func (c *TaskCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, "task:"+taskID)
}

func (c *TaskCache) Extend(ctx context.Context, taskID string) error {
	return c.client.Expire(ctx, "task:"+taskID, c.ttl)
}
