package publish

import (
	"sort"
	"sync"
	"time"

	"promoreel/internal/domain"
)

// TaskStore owns publish task lifecycles. Tasks share the creation-job
// terminal invariant: once completed or failed nothing may change. Like the
// job tracker, the store is volatile; successful posts land in the durable
// post record.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.PublishTask
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]domain.PublishTask)}
}

// Create registers a new pending task. Duplicate ids return
// domain.ErrConflict.
func (s *TaskStore) Create(task domain.PublishTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return domain.ErrConflict
	}
	s.tasks[task.ID] = task
	return nil
}

// Get returns a snapshot of the task or domain.ErrNotFound.
func (s *TaskStore) Get(id string) (domain.PublishTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.PublishTask{}, domain.ErrNotFound
	}
	return task, nil
}

// ListByJob returns the job's tasks ordered by creation time.
func (s *TaskStore) ListByJob(jobID string) []domain.PublishTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PublishTask
	for _, task := range s.tasks {
		if task.JobID == jobID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *TaskStore) MarkRunning(id string) {
	s.mutate(id, func(t *domain.PublishTask) {
		t.Status = domain.JobStatusRunning
	})
}

func (s *TaskStore) Complete(id, postID, postURL string) {
	s.mutate(id, func(t *domain.PublishTask) {
		t.Status = domain.JobStatusCompleted
		t.PostID = postID
		t.PostURL = postURL
		t.Error = ""
	})
}

func (s *TaskStore) Fail(id, message string) {
	s.mutate(id, func(t *domain.PublishTask) {
		t.Status = domain.JobStatusFailed
		t.Error = message
	})
}

// mutate applies the change unless the task is already terminal.
func (s *TaskStore) mutate(id string, apply func(*domain.PublishTask)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status.Terminal() {
		return
	}
	apply(&task)
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
}
