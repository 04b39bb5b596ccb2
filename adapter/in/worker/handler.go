package worker

import (
	"context"

	"github.com/goccy/go-json"

	"replyflow_server/pkg/logger"
)

type Handler struct {
	syncProcessor     *SyncProcessor
	dispatchProcessor *DispatchProcessor
}

func NewHandler(syncProcessor *SyncProcessor, dispatchProcessor *DispatchProcessor) *Handler {
	return &Handler{
		syncProcessor:     syncProcessor,
		dispatchProcessor: dispatchProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobTenantSync:
		return h.syncProcessor.ProcessTenantPass(ctx, msg)
	case JobDispatchSend:
		return h.dispatchProcessor.ProcessSend(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
