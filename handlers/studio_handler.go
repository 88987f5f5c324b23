package handlers

import (
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateStudio(c *fiber.Ctx) error {
	var input services.StudioInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	studio, err := h.Profiles.CreateStudio(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(studio)
}

func (h *Handler) ListStudios(c *fiber.Ctx) error {
	studios, err := h.Profiles.ListStudios(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(studios)
}

func (h *Handler) CreateSlot(c *fiber.Ctx) error {
	var input services.SlotInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	slot, err := h.Studios.CreateSlot(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(slot)
}

func (h *Handler) GenerateRecurringSlots(c *fiber.Ctx) error {
	var input services.RecurringSlotsInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	slots, err := h.Studios.GenerateRecurringSlots(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": len(slots), "slots": slots})
}

// GetAvailableSlots lists open slots of a studio on ?date=YYYY-MM-DD.
func (h *Handler) GetAvailableSlots(c *fiber.Ctx) error {
	studioID, err := paramID(c, "studioId")
	if err != nil {
		return h.fail(c, err)
	}
	date := c.Query("date")
	if date == "" {
		return badRequest(c, "date query parameter is required")
	}
	slots, err := h.Studios.AvailableSlots(c.UserContext(), studioID, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(slots)
}
