package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiodigest/internal/models"
)

// fakeRunner emits the normal three events, optionally blocking until
// release is closed or the job is cancelled.
type fakeRunner struct {
	release chan struct{}
	started chan string
	ran     atomic.Int32
	mu      sync.Mutex
	order   []string
}

func newFakeRunner(blocking bool) *fakeRunner {
	r := &fakeRunner{started: make(chan string, 64)}
	if blocking {
		r.release = make(chan struct{})
	}
	return r
}

func (r *fakeRunner) Run(ctx context.Context, job *models.Job, emit func(models.ProgressEvent)) models.JobState {
	r.ran.Add(1)
	r.mu.Lock()
	r.order = append(r.order, job.Token)
	r.mu.Unlock()
	if ctx.Err() != nil {
		emit(models.ErrorEvent(models.ErrMsgCancelled))
		return models.JobCancelled
	}
	emit(models.TranscribingEvent())
	r.started <- job.Token
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			emit(models.ErrorEvent(models.ErrMsgCancelled))
			return models.JobCancelled
		}
	}
	emit(models.SummarizingEvent())
	emit(models.DoneEvent("t", "s"))
	return models.JobDone
}

func (r *fakeRunner) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func drain(t *testing.T, ch <-chan models.ProgressEvent) []models.ProgressEvent {
	t.Helper()
	var out []models.ProgressEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("event stream not closed, got %+v", out)
		}
	}
}

func waitStarted(t *testing.T, r *fakeRunner) string {
	t.Helper()
	select {
	case tok := <-r.started:
		return tok
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not start")
		return ""
	}
}

func job(token string) *models.Job {
	return &models.Job{ID: token, Token: token}
}

func TestManagerProcessStreamsEvents(t *testing.T) {
	runner := newFakeRunner(false)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	defer m.Close()

	ch, err := m.Process(ProcessRequest{Context: context.Background(), Client: "10.0.0.1", Job: job("audio_1.mp3")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	events := drain(t, ch)
	if len(events) != 3 || events[2].Status != models.StatusDone {
		t.Fatalf("unexpected events %+v", events)
	}
	deadline := time.Now().Add(time.Second)
	for m.Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Active() != 0 {
		t.Fatalf("token should be released after completion")
	}
}

func TestManagerRejectsDuplicateToken(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	defer m.Close()

	ch, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_dup.mp3")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	waitStarted(t, runner)
	if _, err := m.Process(ProcessRequest{Context: context.Background(), Client: "b", Job: job("audio_dup.mp3")}); !errors.Is(err, ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
	if !m.IsActive("audio_dup.mp3") {
		t.Fatalf("token should be active")
	}
	close(runner.release)
	drain(t, ch)
}

func TestManagerBusyWhenQueueFull(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	defer m.Close()

	first, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_a.mp3")})
	if err != nil {
		t.Fatalf("Process first: %v", err)
	}
	waitStarted(t, runner)

	second, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_b.mp3")})
	if err != nil {
		t.Fatalf("Process second should queue: %v", err)
	}
	if _, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_c.mp3")}); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	if m.IsActive("audio_c.mp3") {
		t.Fatalf("rejected job must not stay active")
	}
	if n := m.dispatcher.Pending(); n != 1 {
		t.Fatalf("rejected job must not count as pending, got %d", n)
	}

	close(runner.release)
	drain(t, first)
	drain(t, second)
}

func TestManagerCancelRunningJob(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2})
	defer m.Close()

	ch, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_run.mp3")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	waitStarted(t, runner)
	if err := m.Cancel("audio_run.mp3"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	events := drain(t, ch)
	if last := events[len(events)-1]; last.Error != models.ErrMsgCancelled {
		t.Fatalf("expected cancel terminal, got %+v", events)
	}
	if err := m.Cancel("audio_unknown.mp3"); !errors.Is(err, ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
}

func TestManagerCancelQueuedJobFinishesImmediately(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	defer m.Close()

	busy, err := m.Process(ProcessRequest{Context: context.Background(), Client: "a", Job: job("audio_busy.mp3")})
	if err != nil {
		t.Fatalf("Process busy: %v", err)
	}
	waitStarted(t, runner)

	// neither job has left JobQueue yet: the only worker is busy
	first, err := m.Process(ProcessRequest{Context: context.Background(), Client: "b", Job: job("audio_q1.mp3")})
	if err != nil {
		t.Fatalf("Process q1: %v", err)
	}
	second, err := m.Process(ProcessRequest{Context: context.Background(), Client: "b", Job: job("audio_q2.mp3")})
	if err != nil {
		t.Fatalf("Process q2: %v", err)
	}
	if n := m.dispatcher.Pending(); n != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", n)
	}

	if err := m.Cancel("audio_q2.mp3"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case ev, ok := <-second:
		if !ok || ev.Error != models.ErrMsgCancelled {
			t.Fatalf("queued job should only report cancellation, got %+v (open=%v)", ev, ok)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled queued job got no terminal event while the worker was busy")
	}
	if events := drain(t, second); len(events) != 0 {
		t.Fatalf("nothing may follow the terminal event, got %+v", events)
	}
	if n := m.dispatcher.Pending(); n != 1 {
		t.Fatalf("expected 1 pending job after cancel, got %d", n)
	}

	close(runner.release)
	drain(t, busy)
	if events := drain(t, first); len(events) != 3 {
		t.Fatalf("remaining queued job should run normally, got %+v", events)
	}
	if n := m.dispatcher.Pending(); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestManagerRequestContextCancels(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Process(ProcessRequest{Context: ctx, Client: "a", Job: job("audio_ctx.mp3")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	waitStarted(t, runner)
	cancel()
	events := drain(t, ch)
	if events[len(events)-1].Error != models.ErrMsgCancelled {
		t.Fatalf("expected cancel terminal, got %+v", events)
	}
}

func TestDispatcherFairAcrossClients(t *testing.T) {
	runner := newFakeRunner(true)
	m := NewManager(runner, nil, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16})
	defer m.Close()

	blocker, err := m.Process(ProcessRequest{Context: context.Background(), Client: "x", Job: job("audio_block.mp3")})
	if err != nil {
		t.Fatalf("Process blocker: %v", err)
	}
	waitStarted(t, runner)

	var streams []<-chan models.ProgressEvent
	for i := 0; i < 3; i++ {
		ch, err := m.Process(ProcessRequest{Context: context.Background(), Client: "heavy", Job: job(fmt.Sprintf("audio_h%d.mp3", i))})
		if err != nil {
			t.Fatalf("Process heavy %d: %v", i, err)
		}
		streams = append(streams, ch)
	}
	time.Sleep(20 * time.Millisecond)
	light, err := m.Process(ProcessRequest{Context: context.Background(), Client: "light", Job: job("audio_l0.mp3")})
	if err != nil {
		t.Fatalf("Process light: %v", err)
	}
	streams = append(streams, light)
	time.Sleep(20 * time.Millisecond)

	close(runner.release)
	drain(t, blocker)
	for _, ch := range streams {
		drain(t, ch)
	}

	order := runner.tokens()
	pos := map[string]int{}
	for i, tok := range order {
		pos[tok] = i
	}
	if pos["audio_l0.mp3"] > pos["audio_h1.mp3"] {
		t.Fatalf("light client should not wait behind every heavy job: %v", order)
	}
}

func TestActiveJobsRegistry(t *testing.T) {
	s := newActiveJobs()
	a, b := &pipelineTask{}, &pipelineTask{}
	if !s.claim("t", a) || s.claim("t", b) {
		t.Fatalf("claim should be exclusive")
	}
	s.release("t", b)
	if s.get("t") != a {
		t.Fatalf("release by a different task must not drop the claim")
	}
	s.release("t", a)
	if s.len() != 0 {
		t.Fatalf("registry not empty")
	}
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	p := newJobChannelPool(0, 2, 20*time.Millisecond, nil)
	defer p.close()
	p.spawnWorker()
	p.spawnWorker()
	if running, _ := p.size(); running != 2 {
		t.Fatalf("expected 2 workers, got %d", running)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if running, _ := p.size(); running == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	running, _ := p.size()
	t.Fatalf("idle workers not retired, running=%d", running)
}
