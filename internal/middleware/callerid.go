package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const callerIDHeader = "X-User-ID"

// CallerID extracts the authenticated caller identity propagated by the edge
// gateway and exposes it to handlers. Requests without the header proceed;
// handlers that require an identity reject them individually.
func CallerID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if uid := c.Get(callerIDHeader); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	}
}
