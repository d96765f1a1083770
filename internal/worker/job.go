package worker

import (
	"context"

	"audiodigest/internal/models"
)

type JobType int

const (
	Run JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Run:
		return "run"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Job is the unit handed from the dispatcher to a worker.
type Job struct {
	Type JobType
	Task *pipelineTask
}

type pipelineTask struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	job    *models.Job
	client string
	events chan models.ProgressEvent
}

func (job Job) clientKey() string {
	if job.Task == nil {
		return ""
	}
	return job.Task.client
}

func (job Job) token() string {
	if job.Task == nil || job.Task.job == nil {
		return ""
	}
	return job.Task.job.Token
}
