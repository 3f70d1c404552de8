package handlers

import (
	"time"

	"nexispulse/internal/pipeline"

	"github.com/gofiber/fiber/v2"
)

// AnalyticsHandler serves analytics snapshots and historical patterns
type AnalyticsHandler struct {
	orchestrator *pipeline.Orchestrator
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(orchestrator *pipeline.Orchestrator) *AnalyticsHandler {
	return &AnalyticsHandler{orchestrator: orchestrator}
}

// HandleCurrent returns the freshest analytics snapshot for a user.
// GET /api/analytics/:userId
func (h *AnalyticsHandler) HandleCurrent(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing userId",
		})
	}

	snapshot := h.orchestrator.CurrentAnalytics(userID)
	if snapshot == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No telemetry retained for user",
		})
	}
	return c.JSON(snapshot)
}

// HandleEmbedding returns the user's current cognitive state vector.
// GET /api/analytics/:userId/embedding
func (h *AnalyticsHandler) HandleEmbedding(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing userId",
		})
	}

	vec := h.orchestrator.Embedding(userID)
	return c.JSON(fiber.Map{
		"user_id":   userID,
		"dimension": len(vec),
		"embedding": vec,
	})
}

// HandlePatterns returns stored episodes plus behavioral reports.
// GET /api/patterns/:userId?from=RFC3339&to=RFC3339
// Defaults to the last 7 days.
func (h *AnalyticsHandler) HandlePatterns(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing userId",
		})
	}

	now := time.Now()
	from := now.Add(-7 * 24 * time.Hour)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid 'from' timestamp, expected RFC3339",
			})
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid 'to' timestamp, expected RFC3339",
			})
		}
		to = t
	}
	if !to.After(from) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "'to' must be after 'from'",
		})
	}

	report, err := h.orchestrator.HistoricalPatterns(c.Context(), userID, from, to)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load patterns: " + err.Error(),
		})
	}
	return c.JSON(report)
}
