package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

const apiKeyHeader = "X-API-Key"

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware admits requests carrying the operator API key or a bearer
// token signed with SECRET_KEY. The operator name lands in Locals("operator").
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get(apiKeyHeader)
		bearer := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")

		switch {
		case apiKey != "":
			if m.cfg.OperatorAPIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.cfg.OperatorAPIKey)) != 1 {
				return unauthorized(c, "Invalid API key")
			}
			c.Locals("operator", "api-key")

		case bearer != "":
			if m.cfg.SecretKey == "" {
				return unauthorized(c, "Invalid or expired token")
			}
			claims, err := utils.ValidateToken(m.cfg.SecretKey, bearer)
			if err != nil {
				return unauthorized(c, "Invalid or expired token")
			}
			c.Locals("operator", claims.Operator)

		default:
			return unauthorized(c, "Missing API key or token")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
	})
}
