package worker

type Worker struct {
	id         int
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		id:         id,
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start runs one pipeline at a time until told to stop.
func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			switch job.Type {
			case Run:
				debugLog("worker picked job", "worker", w.id, "token", job.token())
				w.manager.handleRun(job.Task)
				if !w.pool.Release(w.jobChannel) {
					w.pool.retire(w.jobChannel)
					return
				}
			case Stop:
				debugLog("worker retired", "worker", w.id)
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}
