package model

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusStarted    TaskStatus = "started"
	TaskStatusUploading  TaskStatus = "uploading"
	TaskStatusExtracting TaskStatus = "extracting"
	TaskStatusReasoning  TaskStatus = "reasoning"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// stageRank orders statuses so transitions can only move forward.
// Terminal states never transition again.
var stageRank = map[TaskStatus]int{
	TaskStatusStarted:    0,
	TaskStatusUploading:  1,
	TaskStatusExtracting: 2,
	TaskStatusReasoning:  3,
	TaskStatusCompleted:  4,
	TaskStatusFailed:     4,
}

// AssetRef points at one uploaded image in object storage.
type AssetRef struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
}

// Turn is one entry in a task's conversation history.
// Images carry base64 payloads for multimodal user turns and stay empty otherwise.
type Turn struct {
	Role    string   `json:"role"` // "system" | "user" | "assistant"
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Task is the aggregate root for one generate/debug request and its state.
type Task struct {
	ID             string
	UserID         string
	Status         TaskStatus
	Round          int
	Model          string
	Assets         []AssetRef
	ExtractedTexts []string
	Analysis       string
	Problem        string
	Solution       string
	Conversation   []Turn
	FailureStage   string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewTask(id, userID, model string) *Task {
	now := time.Now()
	return &Task{
		ID:           id,
		UserID:       userID,
		Status:       TaskStatusStarted,
		Model:        model,
		Conversation: make([]Turn, 0, 4),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanTransition reports whether moving to next keeps the status monotonic.
func (t *Task) CanTransition(next TaskStatus) bool {
	if t.IsTerminal() {
		return false
	}
	return stageRank[next] >= stageRank[t.Status]
}

// Transition advances the status. Backward or post-terminal moves are dropped.
func (t *Task) Transition(next TaskStatus) bool {
	if !t.CanTransition(next) {
		return false
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return true
}

func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// AppendTurn grows the conversation. The history is append-only; nothing
// in this package ever truncates it.
func (t *Task) AppendTurn(role, content string, images []string) {
	t.Conversation = append(t.Conversation, Turn{Role: role, Content: content, Images: images})
	t.UpdatedAt = time.Now()
}

// AdvanceRound bumps the debug round counter, never backwards.
func (t *Task) AdvanceRound(round int) {
	if round > t.Round {
		t.Round = round
	}
}

func (t *Task) Fail(stage, reason string) {
	t.FailureStage = stage
	t.FailureReason = reason
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
}
