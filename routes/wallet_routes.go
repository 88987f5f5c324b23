package routes

import (
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/gofiber/fiber/v2"
)

func WalletRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	api := app.Group("/api/v1")

	wallet := api.Group("/wallet", auth)
	wallet.Get("", h.GetMyWallet)
	wallet.Get("/entries", h.GetMyLedgerEntries)
	wallet.Get("/payouts", h.GetMyPayouts)
	wallet.Post("/payouts", h.RequestPayout)
}
