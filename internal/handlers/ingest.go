package handlers

import (
	"nexispulse/internal/models"
	"nexispulse/internal/pipeline"

	"github.com/gofiber/fiber/v2"
)

// IngestHandler accepts biometric samples from devices
type IngestHandler struct {
	orchestrator *pipeline.Orchestrator
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(orchestrator *pipeline.Orchestrator) *IngestHandler {
	return &IngestHandler{orchestrator: orchestrator}
}

// HandleSample processes a single sample.
// POST /api/samples
func (h *IngestHandler) HandleSample(c *fiber.Ctx) error {
	var sample models.BiometricSample
	if err := c.BodyParser(&sample); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: " + err.Error(),
		})
	}

	result := h.orchestrator.Ingest(c.Context(), &sample)
	if !result.Success {
		status := fiber.StatusBadRequest
		if result.Overflowed {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(result)
	}
	if result.Overflowed {
		// Accepted but deferred; processing happens when capacity returns.
		return c.Status(fiber.StatusAccepted).JSON(result)
	}
	return c.JSON(result)
}

// HandleBatch processes a device-side buffer of samples in arrival order.
// POST /api/samples/batch
func (h *IngestHandler) HandleBatch(c *fiber.Ctx) error {
	var samples []models.BiometricSample
	if err := c.BodyParser(&samples); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: " + err.Error(),
		})
	}
	if len(samples) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Empty batch",
		})
	}

	results := make([]*models.ProcessingResult, 0, len(samples))
	accepted := 0
	for i := range samples {
		result := h.orchestrator.Ingest(c.Context(), &samples[i])
		if result.Success {
			accepted++
		}
		results = append(results, result)
	}

	return c.JSON(fiber.Map{
		"accepted": accepted,
		"rejected": len(samples) - accepted,
		"results":  results,
	})
}
