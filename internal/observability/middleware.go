package observability

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// requestIDLocal matches the locals key written by fiber's requestid middleware.
const requestIDLocal = "requestid"

// RequestScopeMiddleware copies the request id and caller address into the
// user context so that services below the front door can tag their logs.
func RequestScopeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if value, ok := c.Locals(requestIDLocal).(string); ok && strings.TrimSpace(value) != "" {
			requestID = strings.TrimSpace(value)
		}

		clientIP := c.IP()
		if ips := c.IPs(); len(ips) > 0 {
			clientIP = ips[0]
		}

		c.SetUserContext(WithRequestScope(c.UserContext(), requestID, clientIP))
		return c.Next()
	}
}
