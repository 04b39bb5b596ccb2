package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"replyflow_server/core/service/dispatch"
	"replyflow_server/pkg/response"
)

// JobsHandler exposes the dead-letter side of the dispatch queue.
type JobsHandler struct {
	dispatchService *dispatch.Service
}

func NewJobsHandler(dispatchService *dispatch.Service) *JobsHandler {
	return &JobsHandler{dispatchService: dispatchService}
}

// Register registers dispatch job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")

	jobs.Get("/dead", h.ListDead)
	jobs.Post("/:id/retry", h.Retry)
}

// ListDead lists jobs that exhausted their attempts.
func (h *JobsHandler) ListDead(c *fiber.Ctx) error {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil || tenantID <= 0 {
		return response.BadRequest(c, "tenant_id query parameter required")
	}
	limit := c.QueryInt("limit", 50)

	jobs, err := h.dispatchService.ListDead(c.Context(), tenantID, limit)
	if err != nil {
		return err
	}

	return response.OKWithMeta(c, jobs, &response.Meta{
		Total: len(jobs),
		Limit: limit,
	})
}

// Retry moves a dead job back to pending and wakes a worker for it.
func (h *JobsHandler) Retry(c *fiber.Ctx) error {
	jobID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "invalid job ID")
	}

	job, err := h.dispatchService.Retry(c.Context(), jobID)
	if err != nil {
		return err
	}

	return response.Accepted(c, job)
}
