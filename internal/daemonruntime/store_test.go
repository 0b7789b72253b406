package daemonruntime

import (
	"errors"
	"fmt"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(100)
	id := s.Enqueue(TaskKindMessage, "100", "500", "7", "  what is X?  ")
	if id == "" {
		t.Fatalf("Enqueue() returned empty id")
	}

	items := s.List("", 20)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Status != TaskQueued || items[0].Query != "what is X?" {
		t.Fatalf("queued item mismatch: %#v", items[0])
	}

	s.MarkRunning(id)
	s.MarkFinished(id, TaskFailed, "error_reply", errors.New("http 503"))

	item, ok := s.Get(id)
	if !ok || item == nil {
		t.Fatalf("Get() not found")
	}
	if item.Status != TaskFailed || item.Outcome != "error_reply" || item.Error != "http 503" {
		t.Fatalf("finished item mismatch: %#v", item)
	}
	if item.StartedAt == nil || item.FinishedAt == nil {
		t.Fatalf("expected started/finished timestamps")
	}
	if got := s.Counts()[TaskFailed]; got != 1 {
		t.Fatalf("Counts()[failed] = %d, want 1", got)
	}
}

func TestMemoryStoreDropsOldest(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(3)
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Enqueue(TaskKindMessage, "100", fmt.Sprintf("m%d", i), "7", "q"))
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	s.MarkFinished(ids[3], TaskDone, "replied", nil)

	items := s.List("", 10)
	if len(items) != 3 || items[0].MessageID != "m4" || items[2].MessageID != "m2" {
		t.Fatalf("order mismatch: %#v", items)
	}
	if done := s.List(TaskDone, 10); len(done) != 1 || done[0].ID != ids[3] {
		t.Fatalf("List(done) mismatch: %#v", done)
	}
	if _, ok := s.Get(ids[0]); ok {
		t.Fatalf("oldest task was not dropped")
	}
	s.MarkRunning(ids[0])
	if s.Len() != 3 {
		t.Fatalf("update of a dropped task changed the store")
	}
}

func TestMemoryStoreListLimit(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0)
	for i := 0; i < 25; i++ {
		s.Enqueue(TaskKindFeedback, "100", fmt.Sprintf("m%d", i), "7", "feedback:positive:1")
	}
	if got := len(s.List("", 0)); got != defaultListLimit {
		t.Fatalf("len(List(0)) = %d, want %d", got, defaultListLimit)
	}
	if got := len(s.List("", 1000)); got != 25 {
		t.Fatalf("len(List(1000)) = %d, want 25", got)
	}
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()
	if got, ok := ParseTaskStatus(" Ignored "); !ok || got != TaskIgnored {
		t.Fatalf("ParseTaskStatus() = %q, %v", got, ok)
	}
	if _, ok := ParseTaskStatus("pending"); ok {
		t.Fatalf("ParseTaskStatus(pending) accepted")
	}
}
