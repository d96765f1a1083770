package worker

import (
	"context"
	"errors"
	"log/slog"

	"audiodigest/internal/models"
	"audiodigest/internal/redis"
)

var (
	ErrJobActive    = errors.New("job already active")
	ErrNoActiveJob  = errors.New("no active job")
	errCancelled    = errors.New("cancel requested")
	errShuttingDown = errors.New("manager shutting down")
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *models.Job, emit func(models.ProgressEvent)) models.JobState
}

type ProcessRequest struct {
	Context context.Context
	Client  string // fairness key, usually the remote IP
	Job     *models.Job
}

// Manager queues pipeline jobs onto the worker pool and tracks the
// tokens being processed on this instance.
type Manager struct {
	runner     Runner
	dispatcher *Dispatcher
	active     *activeJobs
	cache      *progressRedis
	stop       context.CancelFunc
}

// NewManager starts the dispatcher. rdb may be nil.
func NewManager(runner Runner, rdb *redis.Client, cfg DispatcherConfig) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		runner: runner,
		active: newActiveJobs(),
		cache:  newProgressCache(rdb),
		stop:   stop,
	}
	m.dispatcher = NewDispatcher(cfg, m)
	m.cache.startListener(ctx, func(msg cancelMessage) {
		if m.cancelLocal(msg.Token) {
			slog.Info("job cancelled by remote request", "token", msg.Token)
		}
	})
	return m
}

// Process queues the job and returns its event stream. The channel is
// closed after the terminal event. The job is cancelled when
// req.Context ends.
func (m *Manager) Process(req ProcessRequest) (<-chan models.ProgressEvent, error) {
	if req.Job == nil || req.Job.Token == "" {
		return nil, errors.New("job is required")
	}
	parent := req.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	task := &pipelineTask{
		ctx:    ctx,
		cancel: cancel,
		job:    req.Job,
		client: req.Client,
		events: make(chan models.ProgressEvent, 4),
	}
	if !m.active.claim(req.Job.Token, task) {
		cancel(nil)
		return nil, ErrJobActive
	}
	if err := m.dispatcher.Submit(Job{Type: Run, Task: task}); err != nil {
		m.active.release(req.Job.Token, task)
		cancel(nil)
		return nil, err
	}
	return task.events, nil
}

// Cancel stops the job for token. A job still waiting for a worker is
// finished right away. Without a local job the request is broadcast to
// other instances when one of them reports the token in progress.
func (m *Manager) Cancel(token string) error {
	if m.cancelLocal(token) {
		return nil
	}
	if ev, ok := m.cache.loadProgress(context.Background(), token); ok && !ev.Terminal() {
		if m.cache.publishCancel(token) {
			return nil
		}
	}
	return ErrNoActiveJob
}

func (m *Manager) cancelLocal(token string) bool {
	task := m.active.get(token)
	if task == nil {
		return false
	}
	m.stopTask(task, errCancelled)
	return true
}

// stopTask cancels task; a task still queued is run at once so its
// stream gets the terminal event.
func (m *Manager) stopTask(task *pipelineTask, cause error) {
	task.cancel(cause)
	if job, ok := m.dispatcher.Drop(task.job.Token); ok {
		go m.handleRun(job.Task)
	}
}

// Active returns the number of queued or running jobs on this instance.
func (m *Manager) Active() int {
	return m.active.len()
}

// IsActive reports whether token is queued or running on this instance.
func (m *Manager) IsActive(token string) bool {
	return m.active.get(token) != nil
}

// Progress returns the last event shared through redis for token.
func (m *Manager) Progress(ctx context.Context, token string) (*models.ProgressEvent, bool) {
	return m.cache.loadProgress(ctx, token)
}

// Close cancels every active job and stops the workers.
func (m *Manager) Close() {
	for _, task := range m.active.snapshot() {
		m.stopTask(task, errShuttingDown)
	}
	m.stop()
	m.dispatcher.Stop()
}

func (m *Manager) handleRun(task *pipelineTask) {
	token := task.job.Token
	defer func() {
		m.active.release(token, task)
		task.cancel(nil)
		close(task.events)
	}()

	m.runner.Run(task.ctx, task.job, func(ev models.ProgressEvent) {
		m.cache.storeProgress(token, ev)
		task.events <- ev
	})
}
