package routes

import (
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/gofiber/fiber/v2"
)

func StudioRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	api := app.Group("/api/v1")

	studio := api.Group("/studio", auth, middleware.RoleRequired(models.RoleStudio))
	studio.Post("/studios", h.CreateStudio)
	studio.Post("/slots", h.CreateSlot)
	studio.Post("/slots/recurring", h.GenerateRecurringSlots)
}

func InstructorRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	api := app.Group("/api/v1")

	instructor := api.Group("/instructor", auth, middleware.RoleRequired(models.RoleInstructor))
	instructor.Put("/profile", h.SaveInstructorProfile)
	instructor.Get("/availability", h.GetMyAvailability)
	instructor.Post("/availability", h.AddAvailability)
	instructor.Delete("/availability/:windowId", h.DeleteAvailability)
}
