package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"acara/internal/apperrors"
	"acara/internal/services"
)

// Locals keys set by AuthRequired for downstream handlers.
const (
	LocalUserID = "user_id"
	LocalEmail  = "email"
)

// AuthRequired is a Fiber middleware enforcing a valid bearer token.
// A missing or malformed Authorization header is rejected before any
// token verification happens; a verified identity is stored in the
// request locals.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header is required",
			})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header format must be 'Bearer <token>'",
			})
		}

		identity, err := authService.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, apperrors.ErrTokenExpired) {
				msg = "token has expired"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": msg,
			})
		}

		c.Locals(LocalUserID, identity.ID)
		c.Locals(LocalEmail, identity.Email)

		return c.Next()
	}
}

// CallerID returns the authenticated user id stored by AuthRequired.
func CallerID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}
