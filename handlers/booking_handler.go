package handlers

import (
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	var input services.CreateBookingInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}

	booking, err := h.Bookings.CreateBooking(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(booking)
}

func (h *Handler) GetBooking(c *fiber.Ctx) error {
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.Bookings.GetBooking(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) GetMyBookings(c *fiber.Ctx) error {
	var filter services.BookingFilter
	if err := c.QueryParser(&filter); err != nil {
		return badRequest(c, "Invalid query parameters")
	}
	bookings, err := h.Bookings.ListBookingsFor(c.UserContext(), middleware.ActorFrom(c), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(bookings)
}

func (h *Handler) SubmitPaymentProof(c *fiber.Ctx) error {
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	var input services.PaymentProofInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	booking, err := h.Bookings.SubmitPaymentProof(c.UserContext(), middleware.ActorFrom(c), id, input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) ApproveBooking(c *fiber.Ctx) error {
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.Bookings.ApproveBooking(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) RejectBooking(c *fiber.Ctx) error {
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	var input services.RejectInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return badRequest(c, "Cannot parse JSON")
		}
	}
	booking, err := h.Bookings.RejectBooking(c.UserContext(), middleware.ActorFrom(c), id, input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	var input services.CancelInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return badRequest(c, "Cannot parse JSON")
		}
	}
	booking, err := h.Bookings.CancelBooking(c.UserContext(), middleware.ActorFrom(c), id, input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(booking)
}
