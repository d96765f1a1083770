package pipeline

import (
	"context"
	"log/slog"

	"audiodigest/internal/models"
	"audiodigest/internal/service/engine"
)

// Store persists job transitions and releases artifacts.
type Store interface {
	Record(ctx context.Context, job *models.Job) error
	Remove(ctx context.Context, job *models.Job) error
}

type Options struct {
	// CleanupOnFailure also releases the artifact of failed or cancelled jobs.
	CleanupOnFailure bool
}

// Pipeline runs Transcribe -> Summarize -> Cleanup for one job at a time
// and reports each stage as a ProgressEvent.
type Pipeline struct {
	transcriber engine.Transcriber
	summarizer  engine.Summarizer
	policy      engine.LengthPolicy
	store       Store
	logger      *slog.Logger
	opts        Options
}

// New builds a pipeline. A nil policy selects proportional bounds; a nil
// store disables persistence and cleanup.
func New(t engine.Transcriber, s engine.Summarizer, policy engine.LengthPolicy, store Store, logger *slog.Logger, opts Options) *Pipeline {
	if policy == nil {
		policy = engine.ProportionalBounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		transcriber: t,
		summarizer:  s,
		policy:      policy,
		store:       store,
		logger:      logger,
		opts:        opts,
	}
}

// Stream runs the job on its own goroutine. The channel carries every event
// in order and is closed after the terminal one.
func (p *Pipeline) Stream(ctx context.Context, job *models.Job) <-chan models.ProgressEvent {
	// at most three events per job, so sends never block
	events := make(chan models.ProgressEvent, 4)
	go func() {
		defer close(events)
		p.Run(ctx, job, func(ev models.ProgressEvent) { events <- ev })
	}()
	return events
}

// Run drives the job to a terminal state, calling emit once per event.
// Exactly one terminal event is emitted and it is always the last.
func (p *Pipeline) Run(ctx context.Context, job *models.Job, emit func(models.ProgressEvent)) models.JobState {
	log := p.logger.With("job_id", job.ID, "token", job.Token)

	if ctx.Err() != nil {
		return p.cancel(ctx, job, emit, log)
	}

	p.transition(ctx, job, models.JobTranscribing, log)
	emit(models.TranscribingEvent())

	transcript, err := p.transcriber.Transcribe(ctx, job.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancel(ctx, job, emit, log)
		}
		return p.fail(ctx, job, emit, log, "transcribe", models.ErrMsgTranscribe, err)
	}
	job.Transcript = transcript
	if ctx.Err() != nil {
		return p.cancel(ctx, job, emit, log)
	}

	p.transition(ctx, job, models.JobSummarizing, log)
	emit(models.SummarizingEvent())

	bounds := p.policy(engine.WordCount(transcript))
	summary, err := p.summarizer.Summarize(ctx, transcript, bounds)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancel(ctx, job, emit, log)
		}
		return p.fail(ctx, job, emit, log, "summarize", models.ErrMsgSummarize, err)
	}
	job.Summary = summary
	if ctx.Err() != nil {
		return p.cancel(ctx, job, emit, log)
	}

	p.transition(ctx, job, models.JobDone, log)
	emit(models.DoneEvent(transcript, summary))
	p.release(ctx, job, log)
	log.Info("job done", "transcript_words", engine.WordCount(transcript), "min_length", bounds.MinLength, "max_length", bounds.MaxLength)
	return models.JobDone
}

func (p *Pipeline) fail(ctx context.Context, job *models.Job, emit func(models.ProgressEvent), log *slog.Logger, stage, msg string, cause error) models.JobState {
	job.Error = cause.Error()
	log.Error("job failed", "stage", stage, "error", cause)
	p.transition(ctx, job, models.JobFailed, log)
	emit(models.ErrorEvent(msg))
	if p.opts.CleanupOnFailure {
		p.release(ctx, job, log)
	}
	return models.JobFailed
}

func (p *Pipeline) cancel(ctx context.Context, job *models.Job, emit func(models.ProgressEvent), log *slog.Logger) models.JobState {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	job.Error = cause.Error()
	log.Info("job cancelled", "state", job.State, "error", cause)
	p.transition(ctx, job, models.JobCancelled, log)
	emit(models.ErrorEvent(models.ErrMsgCancelled))
	if p.opts.CleanupOnFailure {
		p.release(ctx, job, log)
	}
	return models.JobCancelled
}

// transition records the new state; persistence failures never stop the job.
func (p *Pipeline) transition(ctx context.Context, job *models.Job, state models.JobState, log *slog.Logger) {
	job.State = state
	if p.store == nil {
		return
	}
	if err := p.store.Record(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("record job state failed", "state", state, "error", err)
	}
}

func (p *Pipeline) release(ctx context.Context, job *models.Job, log *slog.Logger) {
	if p.store == nil {
		return
	}
	if err := p.store.Remove(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("cleanup failed", "error", err)
	}
}

