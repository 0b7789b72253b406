package daemonruntime

import (
	"strings"
	"sync"
)

const (
	defaultStoreSize = 1000
	defaultListLimit = 20
	maxListLimit     = 200
)

// MemoryStore keeps the most recent tasks in arrival order. Once full, the
// oldest task is dropped for every new one.
type MemoryStore struct {
	mu    sync.RWMutex
	size  int
	order []string
	byID  map[string]*TaskInfo
}

func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = defaultStoreSize
	}
	return &MemoryStore{
		size: size,
		byID: make(map[string]*TaskInfo, size),
	}
}

func (s *MemoryStore) add(info TaskInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[info.ID]; !exists {
		s.order = append(s.order, info.ID)
	}
	s.byID[info.ID] = &info
	for len(s.order) > s.size {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *MemoryStore) update(id string, fn func(*TaskInfo)) {
	if s == nil || id == "" {
		return
	}
	s.mu.Lock()
	if info, ok := s.byID[id]; ok {
		fn(info)
	}
	s.mu.Unlock()
}

func (s *MemoryStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Counts groups tasks by status.
func (s *MemoryStore) Counts() map[TaskStatus]int {
	out := make(map[TaskStatus]int)
	if s == nil {
		return out
	}
	s.mu.RLock()
	for _, info := range s.byID {
		out[info.Status]++
	}
	s.mu.RUnlock()
	return out
}

func (s *MemoryStore) Get(id string) (*TaskInfo, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	cp := *info
	return &cp, true
}

// List returns up to limit tasks, newest first. An empty status matches all.
func (s *MemoryStore) List(status TaskStatus, limit int) []TaskInfo {
	if s == nil {
		return nil
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskInfo, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		info := s.byID[s.order[i]]
		if status != "" && info.Status != status {
			continue
		}
		out = append(out, *info)
	}
	return out
}
