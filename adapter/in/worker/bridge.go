package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"replyflow_server/adapter/out/messaging"
)

// streamJobs maps stream names to the job types the pool understands.
var streamJobs = map[string]JobType{
	messaging.StreamTenantSync:   JobTenantSync,
	messaging.StreamDispatchSend: JobDispatchSend,
}

// StreamBridge feeds stream messages into the worker pool. Acking on
// submit is fine here: tenant passes recur every scheduler tick and
// dispatch jobs live in Postgres, so a lost stream entry is recovered
// by the next tick or the due sweep.
type StreamBridge struct {
	pool *Pool
}

func NewStreamBridge(pool *Pool) *StreamBridge {
	return &StreamBridge{pool: pool}
}

// Handle implements messaging.JobHandler.
func (b *StreamBridge) Handle(ctx context.Context, stream string, data []byte) error {
	jobType, ok := streamJobs[stream]
	if !ok {
		return fmt.Errorf("no job type for stream %s", stream)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid payload on %s: %w", stream, err)
	}

	if !b.pool.Submit(NewMessage(jobType, payload)) {
		return fmt.Errorf("pool not accepting jobs")
	}
	return nil
}
