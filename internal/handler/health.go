package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/multiviral/api/pkg/response"
)

// TierReporter reports which providers of a cascade are usable.
type TierReporter interface {
	Tiers() map[string]bool
}

type HealthHandler struct {
	transcription TierReporter
	generation    TierReporter
	services      map[string]bool
}

// NewHealthHandler builds the health endpoint. services holds static flags
// such as storage and dispatch mode availability.
func NewHealthHandler(transcription, generation TierReporter, services map[string]bool) *HealthHandler {
	return &HealthHandler{
		transcription: transcription,
		generation:    generation,
		services:      services,
	}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Liveness plus which transcription and generation providers are usable
// @Tags         Health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status":        "ok",
		"transcription": h.transcription.Tiers(),
		"generation":    h.generation.Tiers(),
		"services":      h.services,
	})
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"message": "Multi-Viral AI API",
		"health":  "/health",
	})
}
