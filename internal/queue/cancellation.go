// Package queue provides cooperative job-cancellation signaling. The
// teacher's RedisConsumer dispatched jobs by pushing asynq tasks over
// Redis; that push model has no role once the job queue itself becomes
// Postgres row-claim polling (see internal/storage.JobStore), so asynq is
// dropped (DESIGN.md) and go-redis is repurposed here for the one thing
// spec §5 still needs from Redis: a termination signal a job can observe
// cooperatively between frames.
package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const cancelChannelPrefix = "videotrack:cancel:"

// Canceller publishes and observes cooperative cancellation signals for a
// job, keyed by job ID.
type Canceller struct {
	client *redis.Client
}

// NewCanceller connects to Redis at redisURL.
func NewCanceller(redisURL string) (*Canceller, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Canceller{client: redis.NewClient(opt)}, nil
}

// Cancel publishes a termination signal for jobID.
func (c *Canceller) Cancel(ctx context.Context, jobID, reason string) error {
	return c.client.Publish(ctx, cancelChannelPrefix+jobID, reason).Err()
}

// Watch returns a channel that receives the cancellation reason once
// published, and a cleanup function the caller must invoke when the job
// finishes or aborts. The Job Runner selects on this channel between
// frames per spec §5's suspension-point model.
func (c *Canceller) Watch(ctx context.Context, jobID string) (<-chan string, func()) {
	sub := c.client.Subscribe(ctx, cancelChannelPrefix+jobID)
	out := make(chan string, 1)

	go func() {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return // context cancelled or subscription closed by cleanup
		}
		select {
		case out <- msg.Payload:
		default:
		}
	}()

	cleanup := func() {
		if err := sub.Close(); err != nil {
			log.Printf("warning: closing cancel subscription for job %s: %v", jobID, err)
		}
	}
	return out, cleanup
}

// Close closes the underlying Redis client.
func (c *Canceller) Close() error {
	return c.client.Close()
}
