package run

import (
	"errors"
	"time"

	"backend-runistanbul/internal/route"

	"github.com/gofiber/fiber/v2"
)

type submitRequest struct {
	UserID    string      `json:"user_id"`
	StartedAt time.Time   `json:"started_at"`
	Fixes     []route.Fix `json:"fixes"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req submitRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		summary, err := svc.SubmitCompletedRun(c.Context(), req.UserID, req.Fixes, req.StartedAt)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(summary)
	})

	r.Get("/user/:userID", func(c *fiber.Ctx) error {
		runs, err := svc.ListByUser(c.Context(), c.Params("userID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(runs)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		r, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "run not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(r)
	})

	r.Get("/:id/captures", func(c *fiber.Ctx) error {
		captures, err := svc.Captures(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(captures)
	})
}
