package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one job. The returned result is stored on the job record
// whether or not err is nil.
type Handler func(ctx context.Context, job Job) (result any, err error)

const finishTimeout = 5 * time.Second

type Worker struct {
	queue    *Queue
	handlers map[string]Handler
	poll     time.Duration
	logger   zerolog.Logger
}

func NewWorker(queue *Queue, poll time.Duration, logger zerolog.Logger) *Worker {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Worker{
		queue:    queue,
		handlers: map[string]Handler{},
		poll:     poll,
		logger:   logger.With().Str("component", "worker").Logger(),
	}
}

func (w *Worker) Register(jobType string, handler Handler) {
	w.handlers[jobType] = handler
}

func (w *Worker) types() []string {
	types := make([]string, 0, len(w.handlers))
	for jobType := range w.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return errors.New("worker has no registered handlers")
	}
	w.logger.Info().Strs("job_types", w.types()).Msg("worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("worker stopped")
			return nil
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("process job")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits up to the poll interval for a job and runs it. It reports
// whether a job was processed; handler failures are recorded on the job, not
// returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx, w.types(), w.poll)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With().Str("job_id", job.ID).Str("job_type", job.Type).Logger()
	handler, ok := w.handlers[job.Type]

	// The job is already off the list, so its final state must be written
	// even when ctx is cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if !ok {
		return true, w.queue.Fail(finishCtx, job.ID, fmt.Errorf("no handler for job type %q", job.Type), nil)
	}

	started := time.Now()
	result, runErr := w.safeRun(ctx, handler, *job)
	duration := time.Since(started)

	if runErr != nil && ctx.Err() != nil {
		log.Warn().Err(runErr).Dur("duration", duration).Msg("job interrupted, requeueing")
		return true, w.queue.Requeue(finishCtx, *job)
	}
	if runErr != nil {
		log.Error().Err(runErr).Dur("duration", duration).Msg("job failed")
		return true, w.queue.Fail(finishCtx, job.ID, runErr, result)
	}
	log.Info().Dur("duration", duration).Msg("job done")
	return true, w.queue.Complete(finishCtx, job.ID, result)
}

func (w *Worker) safeRun(ctx context.Context, handler Handler, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}
