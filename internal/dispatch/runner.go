package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/engine"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
	"github.com/mr1hm/go-hazard-tasks/internal/worker"
)

// StatusUpdater records the outcome of a dispatched job.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, reason string) (*models.Task, error)
}

// Runner consumes dispatched jobs, runs them on the engine through a worker
// pool and reports each outcome exactly once.
type Runner struct {
	sub    message.Subscriber
	pool   *worker.WorkerPool[models.ProcessingJob]
	engine engine.Engine
	status StatusUpdater
	wg     sync.WaitGroup
	log    *slog.Logger
}

func NewRunner(sub message.Subscriber, eng engine.Engine, status StatusUpdater, cfg config.WorkerConfig) *Runner {
	r := &Runner{
		sub:    sub,
		engine: eng,
		status: status,
		log:    logging.Component("dispatch"),
	}
	r.pool = worker.NewWorkerPool(cfg.Count, cfg.BufferSize, r.process)
	r.pool.OnError(func(job models.ProcessingJob, err error) {
		r.log.Error("dispatch failed", "task_id", job.TaskID, "filename", job.Output.Filename, "error", err)
	})
	return r
}

// Start subscribes to the dispatch topic and begins consuming. It returns
// once the subscription exists.
func (r *Runner) Start(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("error subscribing to %s: %w", Topic, err)
	}

	r.pool.Start(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(ctx, messages)
	}()

	r.log.Info("dispatch runner started", "topic", Topic)
	return nil
}

// Stop waits for the consumer to exit and the queued jobs to finish. The
// context passed to Start must be canceled first.
func (r *Runner) Stop() {
	r.wg.Wait()
	r.pool.Stop()
}

func (r *Runner) consume(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg *message.Message) {
	var job models.ProcessingJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		r.log.Error("dropping undecodable job", "message_uuid", msg.UUID, "task_id", msg.Metadata.Get(metadataTaskID), "error", err)
		msg.Ack()
		return
	}

	if err := r.pool.Submit(ctx, job); err != nil {
		r.log.Warn("job not queued", "task_id", job.TaskID, "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

func (r *Runner) process(ctx context.Context, job models.ProcessingJob) error {
	err := r.run(ctx, job)
	metrics.DispatchFinished(err)

	status, reason := models.TaskStatusCompleted, ""
	if err != nil {
		status, reason = models.TaskStatusError, err.Error()
	}

	// The outcome is recorded even when shutdown canceled the job.
	if _, uerr := r.status.UpdateStatus(context.WithoutCancel(ctx), job.TaskID, status, reason); uerr != nil {
		return fmt.Errorf("error recording %s for task %s: %w", status, job.TaskID, uerr)
	}
	if err != nil {
		return fmt.Errorf("error processing task %s: %w", job.TaskID, err)
	}

	r.log.Info("job completed", "task_id", job.TaskID, "filename", job.Output.Filename)
	return nil
}

func (r *Runner) run(ctx context.Context, job models.ProcessingJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine panicked: %v", p)
		}
	}()
	return r.engine.Process(ctx, job)
}
