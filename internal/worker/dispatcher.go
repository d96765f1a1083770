package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

var ErrDispatcherBusy = errors.New("dispatcher busy")

type clientQueue struct {
	jobs     []Job
	enqueued bool
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	Manager  *Manager

	mu        sync.Mutex
	queues    map[string]*clientQueue // job queue for each client
	ready     *list.List              // LRU queue storing client keys
	positions map[string]*list.Element
	pending   int // submitted but not yet handed to a worker
	capacity  int
	quit      chan struct{}
	stopOnce  sync.Once
}

func NewDispatcher(cfg DispatcherConfig, manager *Manager) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, manager)

	d := &Dispatcher{
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		Manager:   manager,
		capacity:  cfg.QueueSize,
		quit:      make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues a job without blocking. Once queue_size jobs are waiting
// for a worker it fails with ErrDispatcherBusy.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	if d.pending >= d.capacity {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.mu.Unlock()

	select {
	case d.JobQueue <- job:
		return nil
	default:
		d.mu.Lock()
		d.pending--
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the client in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case <-d.quit:
			return
		default:
		}
		d.drainQueue()
	}
}

// Drop removes a job that is still waiting for a worker, including one
// not yet moved out of JobQueue.
func (d *Dispatcher) Drop(token string) (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.drainQueueLocked()
	for key, q := range d.queues {
		for i, job := range q.jobs {
			if job.token() != token {
				continue
			}
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			if len(q.jobs) == 0 {
				d.removeClientLocked(key)
			}
			d.pending--
			return job, true
		}
	}
	return Job{}, false
}

// Pending returns the number of jobs waiting for a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqueueLocked(job)
}

func (d *Dispatcher) enqueueLocked(job Job) {
	key := job.clientKey()
	q := d.queues[key]
	if q == nil {
		q = &clientQueue{}
		d.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// client already enqueued, skip
		return
	}
	q.enqueued = true
	d.positions[key] = d.ready.PushBack(key)
}

func (d *Dispatcher) removeClientLocked(key string) {
	delete(d.queues, key)
	if elem, ok := d.positions[key]; ok {
		d.ready.Remove(elem)
		delete(d.positions, key)
	}
}

// drainQueue moves everything waiting in JobQueue into the client queues
func (d *Dispatcher) drainQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drainQueueLocked()
}

func (d *Dispatcher) drainQueueLocked() {
	for {
		select {
		case job := <-d.JobQueue:
			d.enqueueLocked(job)
		default:
			return
		}
	}
}

// dispatchOne waits for a worker, then hands it the next job of the first
// client in LRU order
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	empty := d.ready.Len() == 0
	d.mu.Unlock()
	if empty {
		return false
	}

	workerChan := d.pool.acquire()
	if workerChan == nil {
		return false
	}
	// jobs that arrived while every worker was busy compete for this one
	d.drainQueue()

	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		// the waiting jobs were dropped meanwhile
		d.mu.Unlock()
		d.pool.Release(workerChan)
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// client has no more jobs, leave the queue
		d.removeClientLocked(key)
	} else {
		// go to the back of the queue
		d.ready.MoveToBack(elem)
	}
	d.pending--
	d.mu.Unlock()

	debugLog("dispatch job", "token", job.token(), "client", key, "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
