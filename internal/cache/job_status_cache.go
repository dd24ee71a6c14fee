package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// Generation job lifecycle values.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// JobStatus is the pollable state of one generation job.
type JobStatus struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	DocType    string `json:"doc_type"`
	ProjectID  uint   `json:"project_id"`
	DocumentID uint   `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
	UpdatedAt  int64  `json:"updated_at"`
}

// JobStatusCache keeps generation job states in redis so any server
// instance can answer a poll.
type JobStatusCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewJobStatusCache(client *redisv9.Client, ttl time.Duration) *JobStatusCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JobStatusCache{client: client, ttl: ttl}
}

func (c *JobStatusCache) Set(ctx context.Context, status JobStatus) error {
	status.UpdatedAt = time.Now().Unix()
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal job status failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(status.JobID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set job status failed: %w", err)
	}
	return nil
}

// Get returns (nil, nil) for an unknown or expired job id.
func (c *JobStatusCache) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	raw, err := c.client.Get(ctx, c.key(jobID)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job status failed: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("unmarshal job status failed: %w", err)
	}
	return &status, nil
}

func (c *JobStatusCache) key(jobID string) string {
	return "generate:job:" + jobID
}
