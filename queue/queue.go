// Package queue implements a persistent delayed job queue on Redis.
//
// Jobs live in a hash keyed by job id; due times are tracked in a delayed
// sorted set and leased jobs in a running sorted set scored by lease expiry.
// Delivery is at-least-once: a worker that dies mid-job loses its lease and
// the job returns to the delayed set.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Options tunes retry behavior for a single enqueued job
type Options struct {
	// MaxAttempts caps deliveries consumed by handler errors
	MaxAttempts int
	// Backoff is the first retry delay; it doubles per attempt
	Backoff time.Duration
}

// Job is one delivery of an enqueued task
type Job struct {
	ID           string
	Queue        string
	Name         string
	Payload      json.RawMessage
	AttemptsMade int
	MaxAttempts  int
	Backoff      time.Duration
}

// LastAttempt reports whether a handler error on this delivery exhausts the job
func (j *Job) LastAttempt() bool {
	return j.AttemptsMade+1 >= j.MaxAttempts
}

// Queue is a named delayed queue backed by a shared Redis client
type Queue struct {
	rc   *redis.Client
	name string
}

// NewQueue creates a queue handle; queues sharing a Redis client are independent
func NewQueue(rc *redis.Client, name string) *Queue {
	return &Queue{rc: rc, name: name}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("queue:{%s}:job:%s", q.name, id)
}

func (q *Queue) delayedKey() string {
	return fmt.Sprintf("queue:{%s}:delayed", q.name)
}

func (q *Queue) runningKey() string {
	return fmt.Sprintf("queue:{%s}:running", q.name)
}

// Enqueue stores a job and schedules it to fire after delay. A non-positive
// delay makes the job due immediately.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload any, delay time.Duration, opts Options) (string, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 30 * time.Second
	}
	if delay < 0 {
		delay = 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue %s: marshal payload: %w", q.name, err)
	}

	id := uuid.NewString()
	fireAt := time.Now().Add(delay)

	pipe := q.rc.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), map[string]any{
		"name":          jobName,
		"payload":       string(body),
		"attempts_made": 0,
		"max_attempts":  opts.MaxAttempts,
		"backoff_ms":    opts.Backoff.Milliseconds(),
		"created_at":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(fireAt.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("queue %s: enqueue: %w", q.name, err)
	}
	return id, nil
}

// Cancel removes a pending job. A job already leased by a worker is not
// touched; the consumer's own existence checks make that race a no-op.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	removed, err := q.rc.ZRem(ctx, q.delayedKey(), jobID).Result()
	if err != nil {
		return fmt.Errorf("queue %s: cancel %s: %w", q.name, jobID, err)
	}
	if removed > 0 {
		if err := q.rc.Del(ctx, q.jobKey(jobID)).Err(); err != nil {
			return fmt.Errorf("queue %s: cancel %s: %w", q.name, jobID, err)
		}
	}
	return nil
}

// Exists reports whether a job id still resolves to a stored job
func (q *Queue) Exists(ctx context.Context, jobID string) (bool, error) {
	n, err := q.rc.Exists(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("queue %s: exists %s: %w", q.name, jobID, err)
	}
	return n > 0, nil
}

// RedeliverAfter moves a leased job back to the delayed set to fire at the
// given time. Attempts made are not touched; a rate-limited delivery does
// not count against the retry cap.
func (q *Queue) RedeliverAfter(ctx context.Context, job *Job, at time.Time) error {
	pipe := q.rc.TxPipeline()
	pipe.ZRem(ctx, q.runningKey(), job.ID)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(at.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue %s: redeliver %s: %w", q.name, job.ID, err)
	}
	return nil
}

// ack removes a finished job entirely
func (q *Queue) ack(ctx context.Context, job *Job) error {
	pipe := q.rc.TxPipeline()
	pipe.ZRem(ctx, q.runningKey(), job.ID)
	pipe.Del(ctx, q.jobKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue %s: ack %s: %w", q.name, job.ID, err)
	}
	return nil
}

// retry counts the failed delivery and either re-delays the job with
// exponential backoff or, when attempts are exhausted, drops it
func (q *Queue) retry(ctx context.Context, job *Job) error {
	attempts, err := q.rc.HIncrBy(ctx, q.jobKey(job.ID), "attempts_made", 1).Result()
	if err != nil {
		return fmt.Errorf("queue %s: retry %s: %w", q.name, job.ID, err)
	}
	if attempts >= int64(job.MaxAttempts) {
		return q.ack(ctx, job)
	}

	delay := BackoffDelay(job.Backoff, int(attempts))
	pipe := q.rc.TxPipeline()
	pipe.ZRem(ctx, q.runningKey(), job.ID)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue %s: retry %s: %w", q.name, job.ID, err)
	}
	return nil
}

// BackoffDelay returns the exponential delay before the given retry:
// base after the first failure, then doubling per further failure.
func BackoffDelay(base time.Duration, attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	delay := base
	for i := 1; i < attemptsMade; i++ {
		delay *= 2
	}
	return delay
}

// claimScript atomically moves due jobs from the delayed set to the running
// set (scored by lease expiry) and returns their ids
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('ZADD', KEYS[2], ARGV[2], id)
end
return due
`)

// claimDue leases up to limit due jobs and loads their stored state.
// Jobs whose hash vanished (cancelled mid-lease) are skipped and reaped.
func (q *Queue) claimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Job, error) {
	ids, err := claimScript.Run(ctx, q.rc,
		[]string{q.delayedKey(), q.runningKey()},
		now.UnixMilli(),
		now.Add(lease).UnixMilli(),
		limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("queue %s: claim: %w", q.name, err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		fields, err := q.rc.HGetAll(ctx, q.jobKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("queue %s: load job %s: %w", q.name, id, err)
		}
		if len(fields) == 0 {
			_ = q.rc.ZRem(ctx, q.runningKey(), id).Err()
			continue
		}

		attemptsMade, _ := strconv.Atoi(fields["attempts_made"])
		maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
		backoffMs, _ := strconv.ParseInt(fields["backoff_ms"], 10, 64)

		jobs = append(jobs, &Job{
			ID:           id,
			Queue:        q.name,
			Name:         fields["name"],
			Payload:      json.RawMessage(fields["payload"]),
			AttemptsMade: attemptsMade,
			MaxAttempts:  maxAttempts,
			Backoff:      time.Duration(backoffMs) * time.Millisecond,
		})
	}
	return jobs, nil
}

// reapExpired returns jobs whose lease ran out to the delayed set so another
// worker can pick them up
func (q *Queue) reapExpired(ctx context.Context, now time.Time) error {
	expired, err := q.rc.ZRangeByScore(ctx, q.runningKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("queue %s: reap: %w", q.name, err)
	}
	for _, id := range expired {
		pipe := q.rc.TxPipeline()
		pipe.ZRem(ctx, q.runningKey(), id)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue %s: reap %s: %w", q.name, id, err)
		}
	}
	return nil
}
