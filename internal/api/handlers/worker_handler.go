package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/postdeck/postdeck/internal/repository"
	"github.com/postdeck/postdeck/internal/worker"
)

type WorkerHandler struct {
	c  *worker.Controller
	sr repository.ScheduleRepository
	pr repository.PostRepository
}

func NewWorkerHandler(controller *worker.Controller, sr repository.ScheduleRepository, pr repository.PostRepository) *WorkerHandler {
	return &WorkerHandler{c: controller, sr: sr, pr: pr}
}

func (h *WorkerHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"worker_id": h.c.WorkerID(),
	})
}

func (h *WorkerHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.c.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(stats)
}

// Job exposes a single schedule row and its post for operators chasing a
// stuck or failed publish.
func (h *WorkerHandler) Job(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid job id",
		})
	}

	job, err := h.sr.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if job == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "job not found",
		})
	}

	post, err := h.pr.GetByID(c.Context(), job.PostID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"job":  job,
		"post": post,
	})
}
