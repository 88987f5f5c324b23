package middleware

import (
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const actorKey = "actor"

// Protected verifies the bearer token and stores the caller's identity for
// ActorFrom. Tokens carry user_id and role claims.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     []byte(secret),
		ErrorHandler:   jwtError,
		SuccessHandler: loadActor,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Missing or malformed JWT", "code": "Unauthorized"})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"error": "Invalid or expired JWT", "code": "Unauthorized"})
}

func loadActor(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return jwtError(c, fiber.ErrUnauthorized)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtError(c, fiber.ErrUnauthorized)
	}
	rawID, _ := claims["user_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return jwtError(c, err)
	}
	rawRole, _ := claims["role"].(string)
	role := models.Role(rawRole)
	switch role {
	case models.RoleCustomer, models.RoleInstructor, models.RoleStudio, models.RoleAdmin:
	default:
		return jwtError(c, fiber.ErrUnauthorized)
	}

	c.Locals(actorKey, services.Actor{ID: id, Role: role})
	return c.Next()
}

// ActorFrom returns the identity stored by Protected.
func ActorFrom(c *fiber.Ctx) services.Actor {
	actor, _ := c.Locals(actorKey).(services.Actor)
	return actor
}

func RoleRequired(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden: " + string(roles[0]) + " access required",
			"code":  "Unauthorized",
		})
	}
}

func AdminRequired() fiber.Handler {
	return RoleRequired(models.RoleAdmin)
}
