package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

type SettingsHandler struct {
	s service.SettingsService
}

func NewSettingsHandler(service service.SettingsService) *SettingsHandler {
	return &SettingsHandler{s: service}
}

func (h *SettingsHandler) GetOwnerLimits(c *fiber.Ctx) error {
	limits, err := h.s.GetOwnerLimits(c.Context(), c.Params("owner_id"))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to resolve limits for owner")
	}

	return c.JSON(limits)
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req transfer.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	if req.ScoreThreshold == nil {
		return errorJSON(c, fiber.StatusBadRequest, "score_threshold is required")
	}

	limits, err := h.s.UpdateScoreThreshold(c.Context(), c.Params("owner_id"), *req.ScoreThreshold)
	if err != nil {
		if errors.Is(err, service.ErrInvalidThreshold) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to update settings")
	}

	return c.JSON(limits)
}
