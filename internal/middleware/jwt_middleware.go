package middleware

import (
	"log"
	"strings"

	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

const principalKey = "principal"

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			log.Printf("JWT validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		principal := services.PrincipalFromClaims(claims)
		if !principal.Authenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Token does not identify a user",
			})
		}
		c.Locals(principalKey, principal)
		c.Locals("user_id", principal.UserID)
		c.Locals("username", claims["username"])

		return c.Next()
	}
}

// RequireCapability rejects callers whose role does not grant capability.
// It must run after AuthRequired.
func RequireCapability(checker services.CapabilityChecker, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := PrincipalFrom(c)
		if !checker.HasCapability(principal, capability) {
			log.Printf("User %q denied %s on %s %s", principal.UserID, capability, c.Method(), c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Insufficient permissions",
				"error":   "missing capability " + capability,
			})
		}
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by AuthRequired, or a zero Principal.
func PrincipalFrom(c *fiber.Ctx) models.Principal {
	principal, _ := c.Locals(principalKey).(models.Principal)
	return principal
}
