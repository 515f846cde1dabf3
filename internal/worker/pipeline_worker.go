package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/multiviral/api/internal/service"
)

// QueuePipeline is the asynq queue that carries pipeline tasks.
const QueuePipeline = "pipeline"

// Runner executes the pipeline for one job. Failures are recorded on the
// job, so Run returns nothing.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

type pipelinePayload struct {
	JobID string `json:"jobId"`
}

// NewPipelineTask builds the queued task for a job.
func NewPipelineTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(pipelinePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(service.TaskTypePipeline, payload), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher schedules pipeline runs through a redis-backed queue.
type AsynqDispatcher struct {
	client enqueuer
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// Dispatch enqueues the pipeline task. Runs are never retried: a failed
// run leaves the job in error and the caller restarts it explicitly.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := NewPipelineTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// PipelineWorker consumes pipeline tasks
type PipelineWorker struct {
	runner Runner
}

func NewPipelineWorker(runner Runner) *PipelineWorker {
	return &PipelineWorker{runner: runner}
}

// ProcessTask handles pipeline task processing
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload pipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("task payload has no job id: %w", asynq.SkipRetry)
	}

	log.Printf("[%s] Starting pipeline task", payload.JobID)
	w.runner.Run(ctx, payload.JobID)
	return nil
}

// Register mounts the worker on an asynq mux.
func (w *PipelineWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(service.TaskTypePipeline, w.ProcessTask)
}
