package worker

import (
	"context"
	"fmt"

	syncsvc "replyflow_server/core/service/sync"
	"replyflow_server/pkg/logger"
)

// SyncProcessor handles tenant sync pass jobs.
type SyncProcessor struct {
	syncService *syncsvc.Service
	log         *logger.Logger
}

func NewSyncProcessor(syncService *syncsvc.Service) *SyncProcessor {
	return &SyncProcessor{
		syncService: syncService,
		log:         logger.WithField("component", "sync_processor"),
	}
}

type tenantSyncPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// ProcessTenantPass runs one fetch-classify-decide pass for a tenant.
func (p *SyncProcessor) ProcessTenantPass(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[tenantSyncPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid tenant sync payload: %w", err)
	}
	if payload.TenantID <= 0 {
		return fmt.Errorf("invalid tenant sync payload: tenant_id %d", payload.TenantID)
	}

	result, err := p.syncService.RunTenantPass(ctx, payload.TenantID)
	if err != nil {
		p.log.WithTenant(payload.TenantID).WithError(err).Error("tenant pass failed")
		return err
	}

	p.log.WithTenant(payload.TenantID).WithFields(map[string]any{
		"mailboxes": result.Mailboxes,
		"fetched":   result.Fetched,
		"ingested":  result.Ingested,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"outcome":   string(result.Outcome),
	}).Info("tenant pass finished")
	return nil
}
