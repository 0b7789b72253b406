package daemonruntime

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
	TaskIgnored TaskStatus = "ignored"
)

type TaskKind string

const (
	TaskKindMessage  TaskKind = "message"
	TaskKindFeedback TaskKind = "feedback"
)

// TaskInfo is one relay job as seen by the task view.
type TaskInfo struct {
	ID         string     `json:"id"`
	Kind       TaskKind   `json:"kind"`
	Status     TaskStatus `json:"status"`
	ChannelID  string     `json:"channel_id"`
	MessageID  string     `json:"message_id"`
	AuthorID   string     `json:"author_id,omitempty"`
	Query      string     `json:"query,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func ParseTaskStatus(raw string) (TaskStatus, bool) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "":
		return "", true
	case string(TaskQueued):
		return TaskQueued, true
	case string(TaskRunning):
		return TaskRunning, true
	case string(TaskDone):
		return TaskDone, true
	case string(TaskFailed):
		return TaskFailed, true
	case string(TaskIgnored):
		return TaskIgnored, true
	default:
		return "", false
	}
}
