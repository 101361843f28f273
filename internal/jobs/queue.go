// Package jobs is a small Redis-backed job queue: one list per job type
// holding job IDs, and one hash per job holding its payload and status.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"localeforge/api/internal/failure"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const finishedRetention = 7 * 24 * time.Hour

type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Status     Status          `json:"status"`
	Payload    json.RawMessage `json:"payload"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

type Queue struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client, prefix: "jobs:", now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) listKey(jobType string) string { return q.prefix + "queue:" + jobType }
func (q *Queue) jobKey(id string) string        { return q.prefix + "job:" + id }

// Enqueue stores the job and pushes it onto its type's list. The returned ID
// is never empty on success.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	if strings.TrimSpace(jobType) == "" {
		return "", failure.Validation("enqueue job", "type", "is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	id := uuid.NewString()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id), map[string]any{
			"id":          id,
			"type":        jobType,
			"status":      string(StatusQueued),
			"payload":     string(body),
			"enqueued_at": q.now().Format(time.RFC3339Nano),
		})
		pipe.LPush(ctx, q.listKey(jobType), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Dequeue blocks up to timeout for the next job of any of the given types
// and marks it running. It returns nil when nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, jobTypes []string, timeout time.Duration) (*Job, error) {
	if len(jobTypes) == 0 {
		return nil, failure.Validation("dequeue job", "types", "at least one job type is required")
	}
	keys := make([]string, 0, len(jobTypes))
	for _, jobType := range jobTypes {
		keys = append(keys, q.listKey(jobType))
	}

	popped, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	// BRPOP replies with [list, value].
	id := popped[1]

	startedAt := q.now()
	if err := q.client.HSet(ctx, q.jobKey(id), map[string]any{
		"status":     string(StatusRunning),
		"started_at": startedAt.Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) Get(ctx context.Context, id string) (Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return Job{}, failure.NotFound("get job", "job", id)
	}

	job := Job{
		ID:     fields["id"],
		Type:   fields["type"],
		Status: Status(fields["status"]),
		Error:  fields["error"],
	}
	if payload := fields["payload"]; payload != "" {
		job.Payload = json.RawMessage(payload)
	}
	if result := fields["result"]; result != "" {
		job.Result = json.RawMessage(result)
	}
	job.EnqueuedAt = parseTime(fields["enqueued_at"])
	if started := parseTime(fields["started_at"]); !started.IsZero() {
		job.StartedAt = &started
	}
	if finished := parseTime(fields["finished_at"]); !finished.IsZero() {
		job.FinishedAt = &finished
	}
	return job, nil
}

func (q *Queue) Complete(ctx context.Context, id string, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	return q.finish(ctx, id, map[string]any{
		"status": string(StatusDone),
		"result": string(body),
	})
}

func (q *Queue) Fail(ctx context.Context, id string, cause error, result any) error {
	fields := map[string]any{
		"status": string(StatusFailed),
		"error":  cause.Error(),
	}
	if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		fields["result"] = string(body)
	}
	return q.finish(ctx, id, fields)
}

// Requeue puts an interrupted job back at the head of its list with status
// queued, so the next worker picks it up first.
func (q *Queue) Requeue(ctx context.Context, job Job) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.ID), "status", string(StatusQueued))
		pipe.HDel(ctx, q.jobKey(job.ID), "started_at")
		pipe.RPush(ctx, q.listKey(job.Type), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

func (q *Queue) finish(ctx context.Context, id string, fields map[string]any) error {
	fields["finished_at"] = q.now().Format(time.RFC3339Nano)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id), fields)
		pipe.Expire(ctx, q.jobKey(id), finishedRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// Pending returns how many jobs of jobType are waiting.
func (q *Queue) Pending(ctx context.Context, jobType string) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
