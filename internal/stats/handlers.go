package stats

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/users/:userID", func(c *fiber.Ctx) error {
		stats, err := svc.UserStatistics(c.Context(), c.Params("userID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stats)
	})

	r.Get("/leaderboard/:district", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		entries, err := svc.Leaderboard(c.Context(), c.Params("district"), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(entries)
	})
}
