package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/maheshrc27/clipcast/internal/service"
)

type DispatchHandler struct {
	ds        service.DispatchService
	rs        service.ReconcileService
	q         queue.Enqueuer
	uniqueTTL time.Duration
}

func NewDispatchHandler(ds service.DispatchService, rs service.ReconcileService, q queue.Enqueuer, uniqueTTL time.Duration) *DispatchHandler {
	return &DispatchHandler{ds: ds, rs: rs, q: q, uniqueTTL: uniqueTTL}
}

// Run dispatches one batch for the platform and waits for the summary.
func (h *DispatchHandler) Run(c *fiber.Ctx) error {
	return h.run(c, "")
}

func (h *DispatchHandler) RunOwner(c *fiber.Ctx) error {
	ownerID := c.Params("owner_id")
	if ownerID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "owner_id is required")
	}
	return h.run(c, ownerID)
}

func (h *DispatchHandler) run(c *fiber.Ctx, ownerID string) error {
	platform, ok, err := platformParam(c)
	if !ok {
		return err
	}

	summary, err := h.ds.Run(c.Context(), service.RunRequest{Platform: platform, OwnerID: ownerID})
	if err != nil {
		if errors.Is(err, service.ErrUnknownPlatform) {
			return errorJSON(c, fiber.StatusNotFound, err.Error())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Dispatch run aborted",
			"summary": summary,
		})
	}

	return c.JSON(summary)
}

type enqueueDispatchRequest struct {
	OwnerID string `json:"owner_id"`
}

func (h *DispatchHandler) Enqueue(c *fiber.Ctx) error {
	platform, ok, err := platformParam(c)
	if !ok {
		return err
	}

	var req enqueueDispatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
		}
	}

	queued, err := queue.EnqueueDispatch(h.q, queue.DispatchPayload{Platform: string(platform), OwnerID: req.OwnerID}, h.uniqueTTL)
	if err != nil {
		slog.Error("unable to queue dispatch", "platform", platform, "error", err)
		return errorJSON(c, fiber.StatusServiceUnavailable, "Unable to queue dispatch")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"platform": platform,
		"owner_id": req.OwnerID,
		"queued":   queued,
	})
}

func (h *DispatchHandler) Reconcile(c *fiber.Ctx) error {
	summary, err := h.rs.Sweep(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Reconcile sweep failed")
	}
	return c.JSON(summary)
}
