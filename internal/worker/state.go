package worker

import "sync"

// activeJobs tracks tokens that are queued or running on this instance.
type activeJobs struct {
	mu    sync.RWMutex
	tasks map[string]*pipelineTask
}

func newActiveJobs() *activeJobs {
	return &activeJobs{tasks: make(map[string]*pipelineTask)}
}

// claim registers the task unless its token is already active.
func (s *activeJobs) claim(token string, task *pipelineTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[token]; ok {
		return false
	}
	s.tasks[token] = task
	return true
}

// release drops the token only if it still belongs to task.
func (s *activeJobs) release(token string, task *pipelineTask) {
	s.mu.Lock()
	if cur, ok := s.tasks[token]; ok && cur == task {
		delete(s.tasks, token)
	}
	s.mu.Unlock()
}

func (s *activeJobs) get(token string) *pipelineTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[token]
}

func (s *activeJobs) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *activeJobs) snapshot() []*pipelineTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pipelineTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task)
	}
	return out
}
