package util

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	unknownValue  = "unknown"
	directReferer = "direct"
)

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer, or "unknown". The result is a copy safe to keep after the
// request completes.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return utils.CopyString(ip)
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return utils.CopyString(ip)
	}
	if ip := c.IP(); ip != "" {
		return utils.CopyString(ip)
	}
	return unknownValue
}

// UserAgent returns the request user agent or "unknown".
func UserAgent(c *fiber.Ctx) string {
	if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
		return utils.CopyString(ua)
	}
	return unknownValue
}

// Referer returns the request referer or "direct".
func Referer(c *fiber.Ctx) string {
	if ref := c.Get(fiber.HeaderReferer); ref != "" {
		return utils.CopyString(ref)
	}
	return directReferer
}
