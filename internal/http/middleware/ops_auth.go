package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	httpUtil "github.com/sifan077/linkgate/internal/http/util"
	"go.uber.org/zap"
)

// OpsAuth requires "Authorization: Bearer <token>" on operator endpoints.
// An empty token rejects every request.
func OpsAuth(token string, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	expected := []byte(token)

	return keyauth.New(keyauth.Config{
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if len(expected) > 0 && subtle.ConstantTimeCompare([]byte(key), expected) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Warn("Rejected operator request",
				zap.String("path", c.Path()),
				zap.String("ip", httpUtil.ClientIP(c)),
				zap.Error(err),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		},
	})
}
