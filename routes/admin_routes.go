package routes

import (
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", auth, middleware.AdminRequired())

	admin.Post("/wallets/top-up", h.TopUpWallet)
	admin.Get("/payout-requests", h.ListPayoutRequests)
	admin.Post("/payout-requests/:requestId/process", h.ProcessPayoutRequest)
	admin.Post("/studios/:studioId/reinstate", h.ReinstateStudio)
	admin.Put("/fee-overrides/:role/:profileId", h.SetFeeOverride)
}
