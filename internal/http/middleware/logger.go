package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger creates a request logging middleware using zap. Successful and
// client-error responses log at debug so the redirect hot path stays quiet in
// production; server errors log at error.
func Logger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		level := zapcore.DebugLevel
		if err != nil || status >= fiber.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}

		ce := logger.Check(level, "request")
		if ce == nil {
			return err
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
			zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if requestID, ok := c.Locals(requestIDKey).(string); ok {
			fields = append(fields, zap.String("request_id", requestID))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		ce.Write(fields...)
		return err
	}
}
