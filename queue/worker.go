package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Handler consumes one delivery of a job. A nil return acknowledges the job;
// a RedeliverError re-delays it without consuming an attempt; any other error
// consumes an attempt and triggers backoff until attempts run out.
type Handler func(ctx context.Context, job *Job) error

// RedeliverError asks the worker to put the job back and fire it again at At
type RedeliverError struct {
	At     time.Time
	Reason string
}

func (e *RedeliverError) Error() string {
	return fmt.Sprintf("redeliver at %s: %s", e.At.Format(time.RFC3339), e.Reason)
}

// RedeliverAt builds a RedeliverError firing at the given time
func RedeliverAt(at time.Time, reason string) error {
	return &RedeliverError{At: at, Reason: reason}
}

// WorkerConfig tunes a queue worker
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
}

// Worker polls a queue for due jobs and runs them through a handler
type Worker struct {
	queue   *Queue
	handler Handler
	cfg     WorkerConfig
	logger  *log.Logger
}

// NewWorker builds a worker; zero config fields get serviceable defaults
func NewWorker(q *Queue, handler Handler, cfg WorkerConfig, logger *log.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{queue: q, handler: handler, cfg: cfg, logger: logger}
}

// Start launches the polling loop and returns a stop function that blocks
// until in-flight jobs finish
func (w *Worker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		w.logger.Printf("queue %s: worker started (concurrency=%d)", w.queue.Name(), w.cfg.Concurrency)
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Printf("queue %s: worker stopped", w.queue.Name())
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) tick(ctx context.Context) {
	now := time.Now()
	if err := w.queue.reapExpired(ctx, now); err != nil && ctx.Err() == nil {
		w.logger.Printf("queue %s: reap failed: %v", w.queue.Name(), err)
	}

	jobs, err := w.queue.claimDue(ctx, now, w.cfg.Lease, w.cfg.Concurrency)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Printf("queue %s: claim failed: %v", w.queue.Name(), err)
		}
		return
	}
	if len(jobs) == 0 {
		return
	}

	results := make(chan struct{}, len(jobs))
	for _, job := range jobs {
		go func(job *Job) {
			defer func() { results <- struct{}{} }()
			w.run(ctx, job)
		}(job)
	}
	for range jobs {
		<-results
	}
}

func (w *Worker) run(ctx context.Context, job *Job) {
	err := w.handler(ctx, job)
	if err == nil {
		if ackErr := w.queue.ack(ctx, job); ackErr != nil {
			w.logger.Printf("queue %s: ack %s failed: %v", w.queue.Name(), job.ID, ackErr)
		}
		return
	}

	var redeliver *RedeliverError
	if errors.As(err, &redeliver) {
		w.logger.Printf("queue %s: job %s redelivered at %s: %s",
			w.queue.Name(), job.ID, redeliver.At.Format(time.RFC3339), redeliver.Reason)
		if rdErr := w.queue.RedeliverAfter(ctx, job, redeliver.At); rdErr != nil {
			w.logger.Printf("queue %s: redeliver %s failed: %v", w.queue.Name(), job.ID, rdErr)
		}
		return
	}

	w.logger.Printf("queue %s: job %s attempt %d/%d failed: %v",
		w.queue.Name(), job.ID, job.AttemptsMade+1, job.MaxAttempts, err)
	if retryErr := w.queue.retry(ctx, job); retryErr != nil {
		w.logger.Printf("queue %s: retry %s failed: %v", w.queue.Name(), job.ID, retryErr)
	}
}
