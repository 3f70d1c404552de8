package middleware

import (
	"log"

	"nexispulse/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// DeviceKeyMiddleware validates device API keys for the ingest endpoint.
// Devices send the raw key in X-API-Key; the server only holds Argon2id
// hashes, so validation hashes the presented key against each configured
// hash.
func DeviceKeyMiddleware(keyHashes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(keyHashes) == 0 {
			// No keys configured: ingest is open (development setups).
			return c.Next()
		}

		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key. Include X-API-Key header.",
			})
		}

		for _, hash := range keyHashes {
			ok, err := auth.VerifyAPIKey(hash, apiKey)
			if err != nil {
				log.Printf("⚠️ [APIKEY-AUTH] Malformed key hash in config: %v", err)
				continue
			}
			if ok {
				c.Locals("auth_type", "device_key")
				return c.Next()
			}
		}

		log.Printf("❌ [APIKEY-AUTH] Invalid key attempt from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}
}
