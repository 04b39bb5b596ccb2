package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	syncsvc "replyflow_server/core/service/sync"
	"replyflow_server/pkg/response"
)

// SyncHandler exposes manual sync controls for operators.
type SyncHandler struct {
	syncService *syncsvc.Service
}

func NewSyncHandler(syncService *syncsvc.Service) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Register registers sync routes.
func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")

	sync.Post("/tick", h.Tick)
	sync.Post("/tenants/:id", h.RunTenant)
	sync.Get("/tenants/:id/human-queue", h.HumanQueue)
}

// Tick runs one scheduler tick inline across all active tenants and
// returns the summed counters. The periodic scheduler publishes passes to
// the stream instead; this surface trades latency for real numbers.
func (h *SyncHandler) Tick(c *fiber.Ctx) error {
	tick, err := h.syncService.RunTick(c.Context())
	if err != nil {
		return err
	}

	return response.OK(c, tick)
}

// RunTenant runs one tenant pass inline and returns its counters. Useful
// for debugging a single tenant without waiting for the scheduler.
func (h *SyncHandler) RunTenant(c *fiber.Ctx) error {
	tenantID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "invalid tenant ID")
	}

	result, err := h.syncService.RunTenantPass(c.Context(), tenantID)
	if err != nil {
		return err
	}

	return response.OK(c, result)
}

// HumanQueue lists messages routed to the tenant's inbox for manual handling.
func (h *SyncHandler) HumanQueue(c *fiber.Ctx) error {
	tenantID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "invalid tenant ID")
	}
	limit := c.QueryInt("limit", 50)

	messages, err := h.syncService.ListHumanQueue(c.Context(), tenantID, limit)
	if err != nil {
		return err
	}

	return response.OKWithMeta(c, messages, &response.Meta{
		Total: len(messages),
		Limit: limit,
	})
}
