package http

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"replyflow_server/pkg/health"
)

type HealthHandler struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	registry *health.Registry
}

func NewHealthHandler(db *pgxpool.Pool, redis *redis.Client, registry *health.Registry) *HealthHandler {
	return &HealthHandler{
		db:       db,
		redis:    redis,
		registry: registry,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/healthz", h.Health)
	app.Get("/readyz", h.Ready)
}

// Health reports liveness plus the component heartbeat snapshot.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	if h.registry != nil && !h.registry.Healthy() {
		status = "degraded"
	}

	body := fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.registry != nil {
		body["components"] = h.registry.Snapshot()
	}
	body["workers"] = h.workerBeats(c.Context())

	if status != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}

// workerBeats collects the heartbeats worker processes publish to Redis. The
// keys carry a TTL, so dead workers drop out on their own.
func (h *HealthHandler) workerBeats(ctx context.Context) map[string]json.RawMessage {
	beats := make(map[string]json.RawMessage)
	if h.redis == nil {
		return beats
	}

	scanCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := h.redis.Scan(scanCtx, 0, health.WorkerKeyPrefix+"*", 50).Iterator()
	for iter.Next(scanCtx) {
		key := iter.Val()
		val, err := h.redis.Get(scanCtx, key).Result()
		if err != nil {
			continue
		}
		beats[strings.TrimPrefix(key, health.WorkerKeyPrefix)] = json.RawMessage(val)
	}
	return beats
}

// Ready checks the backing stores.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = "healthy"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	if !allHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": checks,
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}
