package daemonruntime

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxQueryChars = 200

// Enqueue records a new queued task and returns its id.
func (s *MemoryStore) Enqueue(kind TaskKind, channelID, messageID, authorID, query string) string {
	if s == nil {
		return ""
	}
	id := newTaskID()
	s.add(TaskInfo{
		ID:        id,
		Kind:      kind,
		Status:    TaskQueued,
		ChannelID: strings.TrimSpace(channelID),
		MessageID: strings.TrimSpace(messageID),
		AuthorID:  strings.TrimSpace(authorID),
		Query:     TruncateUTF8(query, maxQueryChars),
		CreatedAt: time.Now().UTC(),
	})
	return id
}

func (s *MemoryStore) MarkRunning(id string) {
	s.update(id, func(info *TaskInfo) {
		now := time.Now().UTC()
		info.Status = TaskRunning
		info.StartedAt = &now
	})
}

func (s *MemoryStore) MarkFinished(id string, status TaskStatus, outcome string, err error) {
	s.update(id, func(info *TaskInfo) {
		now := time.Now().UTC()
		info.Status = status
		info.Outcome = strings.TrimSpace(outcome)
		info.FinishedAt = &now
		if err != nil {
			info.Error = TruncateUTF8(err.Error(), maxQueryChars)
		}
	})
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func TruncateUTF8(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
