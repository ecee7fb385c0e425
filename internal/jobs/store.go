package jobs

import (
	"sync"

	"promoreel/internal/domain"
)

// Store abstracts the job map so the tracker never owns process-global state.
// Implementations must be safe for concurrent use; jobs are stored and
// returned by value so readers can never observe a torn write.
type Store interface {
	Get(id string) (domain.Job, bool)
	Set(id string, job domain.Job)
	SetIfAbsent(id string, job domain.Job) bool
	Delete(id string)
}

// MemoryStore is the default in-process Store. Jobs are lost on restart; the
// durable video record keeps the user-visible outcome.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]domain.Job)}
}

func (s *MemoryStore) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *MemoryStore) Set(id string, job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = job
}

func (s *MemoryStore) SetIfAbsent(id string, job domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return false
	}
	s.jobs[id] = job
	return true
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

var _ Store = (*MemoryStore)(nil)
