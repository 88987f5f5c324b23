package handlers

import (
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) SaveInstructorProfile(c *fiber.Ctx) error {
	var input services.InstructorInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	profile, err := h.Profiles.SaveInstructorProfile(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(profile)
}

func (h *Handler) AddAvailability(c *fiber.Ctx) error {
	var input matcher.WindowInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	window, err := h.Matcher.AddWindow(c.UserContext(), middleware.ActorFrom(c).ID, input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(window)
}

func (h *Handler) GetMyAvailability(c *fiber.Ctx) error {
	windows, err := h.Matcher.ListWindows(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(windows)
}

func (h *Handler) DeleteAvailability(c *fiber.Ctx) error {
	id, err := paramID(c, "windowId")
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Matcher.DeleteWindow(c.UserContext(), middleware.ActorFrom(c).ID, id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
