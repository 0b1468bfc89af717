package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

type JobHandler struct {
	s service.JobService
}

func NewJobHandler(service service.JobService) *JobHandler {
	return &JobHandler{s: service}
}

func (h *JobHandler) CreateJobs(c *fiber.Ctx) error {
	var req transfer.EnqueueJobsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}

	resp, err := h.s.Enqueue(c.Context(), req.ContentItemID, req.Platforms)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidJobRequest), errors.Is(err, service.ErrUnknownPlatform):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrContentNotFound):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to create jobs")
	}

	status := fiber.StatusCreated
	if len(resp.Created) == 0 {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(resp)
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	contentItemID := c.Query("content_item_id")
	if contentItemID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "content_item_id is required")
	}

	jobs, err := h.s.ListByContentItem(c.Context(), contentItemID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to list jobs")
	}
	return c.JSON(jobs)
}

func (h *JobHandler) Backlog(c *fiber.Ctx) error {
	counts, err := h.s.Backlog(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to read backlog")
	}
	return c.JSON(counts)
}
