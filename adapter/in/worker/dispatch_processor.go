package worker

import (
	"context"
	"fmt"

	"replyflow_server/core/service/dispatch"
	"replyflow_server/pkg/logger"
)

// DispatchProcessor handles outbound send jobs.
type DispatchProcessor struct {
	dispatchService *dispatch.Service
	log             *logger.Logger
}

func NewDispatchProcessor(dispatchService *dispatch.Service) *DispatchProcessor {
	return &DispatchProcessor{
		dispatchService: dispatchService,
		log:             logger.WithField("component", "dispatch_processor"),
	}
}

type dispatchSendPayload struct {
	JobID int64 `json:"job_id"`
}

// ProcessSend claims and sends one persisted dispatch job. A job already
// claimed or finished by another worker is a no-op, not an error.
func (p *DispatchProcessor) ProcessSend(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[dispatchSendPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid dispatch payload: %w", err)
	}
	if payload.JobID <= 0 {
		return fmt.Errorf("invalid dispatch payload: job_id %d", payload.JobID)
	}

	if err := p.dispatchService.Process(ctx, payload.JobID); err != nil {
		p.log.WithField("job_id", payload.JobID).WithError(err).Error("dispatch send failed")
		return err
	}
	return nil
}
