package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/models"
)

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// platformParam reads :platform, answering 400 itself when it is not a known
// destination.
func platformParam(c *fiber.Ctx) (models.Platform, bool, error) {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return "", false, errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return p, true, nil
}
