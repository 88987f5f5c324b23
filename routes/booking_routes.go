package routes

import (
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", auth)
	booking.Get("/me", h.GetMyBookings)
	booking.Post("", middleware.RoleRequired(models.RoleCustomer, models.RoleInstructor), h.CreateBooking)
	booking.Get("/:bookingId", h.GetBooking)
	booking.Get("/:bookingId/payment-proof/signature", h.GeneratePaymentProofSignature)
	booking.Post("/:bookingId/payment-proof", h.SubmitPaymentProof)
	booking.Post("/:bookingId/cancel", h.CancelBooking)

	operator := middleware.RoleRequired(models.RoleStudio, models.RoleAdmin)
	booking.Post("/:bookingId/approve", operator, h.ApproveBooking)
	booking.Post("/:bookingId/reject", operator, h.RejectBooking)
}
