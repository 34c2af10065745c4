package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/models"
)

// USSDProviderAuth guards gateway callbacks from telecom providers. When
// apiKey is set the X-API-Key header must match it. Otherwise production
// still requires an Authorization or X-API-Key header.
func USSDProviderAuth(apiKey string, production bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get("X-API-Key")

		if apiKey != "" {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				log.Printf("🚫 [USSD] Rejected provider request from %s: invalid API key", c.IP())
				return unauthorizedUSSD(c)
			}
			return c.Next()
		}

		if production && provided == "" && c.Get("Authorization") == "" {
			log.Printf("🚫 [USSD] Rejected provider request from %s: no credentials", c.IP())
			return unauthorizedUSSD(c)
		}

		return c.Next()
	}
}

func unauthorizedUSSD(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(
		models.NewUssdResponse(models.UssdResponseError, "Authentication required"),
	)
}
