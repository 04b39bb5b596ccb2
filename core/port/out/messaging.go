package out

import "context"

// DispatchProducer publishes wake-up events for persisted dispatch jobs.
// Publishing is best-effort: the durable queue is the jobs table, and the
// periodic due-job sweep re-publishes anything a lost event left behind.
type DispatchProducer interface {
	PublishDispatch(ctx context.Context, jobID int64) error
}

// SyncProducer publishes tenant sync pass jobs for the worker pool.
type SyncProducer interface {
	PublishTenantSync(ctx context.Context, tenantID int64) error
}
