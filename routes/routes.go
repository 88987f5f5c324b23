package routes

import (
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/gofiber/fiber/v2"
)

// Setup mounts every route group under /api/v1. auth is the token check
// from middleware.Protected.
func Setup(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	PublicRoutes(app, h)
	BookingRoutes(app, h, auth)
	StudioRoutes(app, h, auth)
	InstructorRoutes(app, h, auth)
	WalletRoutes(app, h, auth)
	AdminRoutes(app, h, auth)
}

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	api.Get("/studios", h.ListStudios)
	api.Get("/studios/:studioId/slots", h.GetAvailableSlots)
}
