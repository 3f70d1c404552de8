package handlers

import (
	"context"
	"time"

	"nexispulse/internal/database"
	"nexispulse/internal/pipeline"
	"nexispulse/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	orchestrator *pipeline.Orchestrator
	connManager  *services.ConnectionManager
	redis        *services.RedisService
	mongo        *database.MongoDB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(orchestrator *pipeline.Orchestrator, connManager *services.ConnectionManager, redis *services.RedisService, mongo *database.MongoDB) *HealthHandler {
	return &HealthHandler{
		orchestrator: orchestrator,
		connManager:  connManager,
		redis:        redis,
		mongo:        mongo,
	}
}

// Handle responds with basic liveness.
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"connections": h.connManager.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

// HandleDetailed responds with the scored pipeline health plus dependency
// checks.
// GET /api/health
func (h *HealthHandler) HandleDetailed(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	health := h.orchestrator.Health()
	stats := h.orchestrator.Stats()

	deps := fiber.Map{}
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			deps["redis"] = "down: " + err.Error()
		} else {
			deps["redis"] = "up"
		}
	}
	if h.mongo != nil {
		if err := h.mongo.Ping(ctx); err != nil {
			deps["mongodb"] = "down: " + err.Error()
		} else {
			deps["mongodb"] = "up"
		}
	}

	return c.JSON(fiber.Map{
		"health":       health,
		"pipeline":     stats,
		"connections":  h.connManager.Count(),
		"dependencies": deps,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}
