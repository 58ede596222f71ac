package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	httpUtil "github.com/sifan077/linkgate/internal/http/util"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 300,
		Window:      time.Minute,
		KeyPrefix:   "ratelimit",
	}
}

// RateLimit creates a fixed-window per-IP limiter backed by Redis. It protects
// the directory from code-scraping bursts and fails open when Redis is down so
// redirects never depend on it.
func RateLimit(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) fiber.Handler {
	if config.MaxRequests <= 0 || config.Window <= 0 {
		config = DefaultRateLimitConfig()
	}

	return func(c *fiber.Ctx) error {
		ip := httpUtil.ClientIP(c)
		window := time.Now().Truncate(config.Window)
		key := config.KeyPrefix + ":" + ip + ":" + strconv.FormatInt(window.Unix(), 10)

		pipe := redisClient.TxPipeline()
		incr := pipe.Incr(c.Context(), key)
		pipe.Expire(c.Context(), key, config.Window)
		if _, err := pipe.Exec(c.Context()); err != nil {
			logger.Warn("rate limit redis error", zap.Error(err))
			// Fail open: allow request if Redis is unavailable
			return c.Next()
		}

		count := incr.Val()
		remaining := config.MaxRequests - int(count)
		c.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, remaining)))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(window.Add(config.Window).Unix(), 10))

		if count > int64(config.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded",
			})
		}

		return c.Next()
	}
}
