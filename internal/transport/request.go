package transport

import (
	"bytes"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(c *fiber.Ctx) string {
	if forwarded := strings.TrimSpace(c.Get(fiber.HeaderXForwardedFor)); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return "unknown"
}

// RequestHeaders flattens multi-value request headers.
func RequestHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

// RequestBody copies the raw body out of fiber's reusable buffer. It returns
// nil for an empty body.
func RequestBody(c *fiber.Ctx) any {
	raw := bytes.TrimSpace(c.Body())
	if len(raw) == 0 {
		return nil
	}
	return append([]byte(nil), raw...)
}
