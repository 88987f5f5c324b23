package handlers

import (
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type topUpRequest struct {
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

// TopUpWallet credits an account. Settling a negative balance is a top-up.
func (h *Handler) TopUpWallet(c *fiber.Ctx) error {
	var input topUpRequest
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if input.UserID == uuid.Nil {
		return badRequest(c, "user_id is required")
	}
	wallet, err := h.Ledger.TopUp(c.UserContext(), input.UserID, input.Amount, input.Memo)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(wallet)
}

func (h *Handler) ListPayoutRequests(c *fiber.Ctx) error {
	payouts, err := h.Ledger.ListPendingPayouts(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(payouts)
}

type processPayoutRequest struct {
	Status models.PayoutStatus `json:"status"`
	Notes  string              `json:"notes"`
}

func (h *Handler) ProcessPayoutRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "requestId")
	if err != nil {
		return h.fail(c, err)
	}
	var input processPayoutRequest
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	payout, err := h.Ledger.ProcessPayout(c.UserContext(), id, input.Status, input.Notes)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(payout)
}

func (h *Handler) ReinstateStudio(c *fiber.Ctx) error {
	id, err := paramID(c, "studioId")
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Studios.ReinstateStudio(c.UserContext(), middleware.ActorFrom(c), id); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Studio reinstated"})
}

type feeOverrideRequest struct {
	// Percent null removes the override.
	Percent *decimal.Decimal `json:"percent"`
}

// SetFeeOverride handles PUT /admin/fee-overrides/:role/:profileId where role
// is studio or instructor.
func (h *Handler) SetFeeOverride(c *fiber.Ctx) error {
	id, err := paramID(c, "profileId")
	if err != nil {
		return h.fail(c, err)
	}
	var input feeOverrideRequest
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	role := models.Role(c.Params("role"))
	if err := h.Profiles.SetFeeOverride(c.UserContext(), middleware.ActorFrom(c), role, id, input.Percent); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Fee override updated"})
}
