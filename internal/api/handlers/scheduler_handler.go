package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow-engine/internal/scheduler"
)

// SchedulerControl is the operational surface of *scheduler.Scheduler.
type SchedulerControl interface {
	Start(ctx context.Context) bool
	Stop() bool
	Status() scheduler.Status
	TriggerBatch(ctx context.Context) scheduler.BatchReport
	ResetStats()
}

type SchedulerHandler struct {
	sched SchedulerControl
	// base outlives requests; the timer loop runs on it.
	base context.Context
}

func NewSchedulerHandler(base context.Context, sched SchedulerControl) *SchedulerHandler {
	return &SchedulerHandler{
		sched: sched,
		base:  base,
	}
}

func (h *SchedulerHandler) GetStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.sched.Status())
}

func (h *SchedulerHandler) Start(c *fiber.Ctx) error {
	started := h.sched.Start(h.base)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"started": started,
		"status":  h.sched.Status(),
	})
}

func (h *SchedulerHandler) Stop(c *fiber.Ctx) error {
	stopped := h.sched.Stop()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"stopped": stopped,
		"status":  h.sched.Status(),
	})
}

func (h *SchedulerHandler) Trigger(c *fiber.Ctx) error {
	report := h.sched.TriggerBatch(h.base)
	if report.Skipped {
		return c.Status(fiber.StatusConflict).JSON(report)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *SchedulerHandler) Reset(c *fiber.Ctx) error {
	h.sched.ResetStats()
	return c.Status(fiber.StatusOK).JSON(h.sched.Status())
}
