package orchestrator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CancelChecker tells a polling loop whether its job was cancelled.
type CancelChecker interface {
	Cancelled(ctx context.Context, jobID string) (bool, error)
}

// CancelRegistry stores cancellation flags in Redis so the API process can
// stop a polling loop owned by a worker process. Cancelling stops future
// polls only; it never touches the job record, which may still settle later
// through the webhook.
type CancelRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCancelRegistry(rdb *redis.Client) *CancelRegistry {
	return &CancelRegistry{rdb: rdb, ttl: 24 * time.Hour}
}

func cancelKey(jobID string) string {
	return "jobs:cancel:" + jobID
}

// RequestCancel flags the job for cancellation.
func (c *CancelRegistry) RequestCancel(ctx context.Context, jobID string) error {
	return c.rdb.Set(ctx, cancelKey(jobID), "1", c.ttl).Err()
}

// Cancelled reports whether the job was flagged.
func (c *CancelRegistry) Cancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CancelChecker = (*CancelRegistry)(nil)
