package handlers

import (
	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handler serves the HTTP API on top of the booking engine.
type Handler struct {
	Bookings *services.BookingService
	Studios  *services.StudioService
	Profiles *services.ProfileService
	Ledger   *ledger.Service
	Matcher  *matcher.Service
	Uploads  *ProofSigner
	Log      *logrus.Logger
}

var statuses = map[apperr.Code]int{
	apperr.ValidationError:            fiber.StatusBadRequest,
	apperr.Unauthorized:               fiber.StatusForbidden,
	apperr.NotFound:                   fiber.StatusNotFound,
	apperr.SlotConflict:               fiber.StatusConflict,
	apperr.InsufficientInventory:      fiber.StatusConflict,
	apperr.AlreadyCancelled:           fiber.StatusConflict,
	apperr.InvalidTransition:          fiber.StatusConflict,
	apperr.LocationMismatch:           fiber.StatusUnprocessableEntity,
	apperr.InstructorUnavailable:      fiber.StatusUnprocessableEntity,
	apperr.LateCancellationDenied:     fiber.StatusUnprocessableEntity,
	apperr.NegativeBalanceRestriction: fiber.StatusPaymentRequired,
	apperr.InsufficientFunds:          fiber.StatusPaymentRequired,
	apperr.AccountSuspended:           fiber.StatusLocked,
}

// StatusOf maps an engine error to its HTTP status.
func StatusOf(err error) int {
	if status, ok := statuses[apperr.CodeOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// Fail writes err as {"error", "code"}. Internal errors are logged and their
// detail is not exposed.
func Fail(c *fiber.Ctx, log *logrus.Logger, err error) error {
	status := StatusOf(err)
	if status == fiber.StatusInternalServerError && log != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	return Fail(c, h.Log, err)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": apperr.ValidationError})
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Newf(apperr.ValidationError, "invalid %s", name)
	}
	return id, nil
}
