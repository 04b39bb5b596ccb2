// Package messaging provides the Redis Streams transport between the
// scheduler and the worker pool.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamTenantSync   = "sync:tenant"
	StreamDispatchSend = "dispatch:send"
)

// TenantSyncJob asks a worker to run one tenant pass.
type TenantSyncJob struct {
	TenantID int64 `json:"tenant_id"`
}

// DispatchSendJob wakes a worker for one persisted dispatch job.
type DispatchSendJob struct {
	JobID int64 `json:"job_id"`
}

// RedisProducer implements the producer ports using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishTenantSync publishes a tenant pass job.
func (p *RedisProducer) PublishTenantSync(ctx context.Context, tenantID int64) error {
	return p.publish(ctx, StreamTenantSync, &TenantSyncJob{TenantID: tenantID})
}

// PublishDispatch publishes a wake-up for a persisted dispatch job.
func (p *RedisProducer) PublishDispatch(ctx context.Context, jobID int64) error {
	return p.publish(ctx, StreamDispatchSend, &DispatchSendJob{JobID: jobID})
}

// publish appends one JSON payload to a stream.
func (p *RedisProducer) publish(ctx context.Context, stream string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}
