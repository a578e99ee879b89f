package middleware

import (
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const CodeUnauthenticated = "unauthenticated"

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthenticated(c, "Missing authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthenticated(c, "Invalid authorization header format")
		}

		identity, err := IdentityFromToken(parts[1], secret)
		if err != nil {
			return unauthenticated(c, "Invalid or expired token")
		}

		SetIdentity(c, identity)
		return c.Next()
	}
}

// IdentityFromToken validates a bearer token and returns the identity it carries.
func IdentityFromToken(tokenString string, secret string) (models.Identity, error) {
	claims, err := utils.ValidateToken(tokenString, secret)
	if err != nil {
		return models.Identity{}, err
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok || !models.ValidParticipantID(claims.UserID) {
		return models.Identity{}, models.ErrForbidden
	}
	return models.Identity{UserID: claims.UserID, Role: role}, nil
}

func SetIdentity(c *fiber.Ctx, identity models.Identity) {
	c.Locals("user_id", identity.UserID)
	c.Locals("role", string(identity.Role))
}

// CurrentIdentity reads the identity stored by AuthRequired.
func CurrentIdentity(c *fiber.Ctx) (models.Identity, bool) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return models.Identity{}, false
	}
	rawRole, _ := c.Locals("role").(string)
	role, ok := models.ParseRole(rawRole)
	if !ok {
		return models.Identity{}, false
	}
	return models.Identity{UserID: userID, Role: role}, true
}

func unauthenticated(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
		"code":  CodeUnauthenticated,
	})
}
