package handlers

import (
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func (h *Handler) GetMyWallet(c *fiber.Ctx) error {
	wallet, err := h.Ledger.Balance(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(wallet)
}

func (h *Handler) GetMyLedgerEntries(c *fiber.Ctx) error {
	entries, err := h.Ledger.Entries(c.UserContext(), middleware.ActorFrom(c).ID, c.QueryInt("limit", 50))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(entries)
}

type payoutRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	AccountDetails string          `json:"account_details"`
}

func (h *Handler) RequestPayout(c *fiber.Ctx) error {
	var input payoutRequest
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	actor := middleware.ActorFrom(c)
	payout, err := h.Ledger.RequestPayout(c.UserContext(), ledger.PayoutInput{
		PayeeID:        actor.ID,
		PayeeRole:      actor.Role,
		Amount:         input.Amount,
		Method:         input.Method,
		AccountDetails: input.AccountDetails,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payout)
}

func (h *Handler) GetMyPayouts(c *fiber.Ctx) error {
	payouts, err := h.Ledger.ListPayouts(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(payouts)
}
