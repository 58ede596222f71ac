package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkgate/internal/app/model"
	"go.uber.org/zap"
)

// BufferStats reports the click buffer state.
type BufferStats interface {
	Len() int
	Cap() int
	Dropped() int64
}

// LinkCacheOps is the cache surface exposed to operators and the link-management service.
type LinkCacheOps interface {
	Invalidate(code string)
	Len() int
}

// OpsDeps groups dependencies required by the internal endpoints.
type OpsDeps struct {
	Logger *zap.Logger
	Buffer BufferStats
	Cache  LinkCacheOps
}

// OpsHandler implements the internal operational endpoints.
type OpsHandler struct {
	logger *zap.Logger
	buffer BufferStats
	cache  LinkCacheOps
}

// NewOpsHandler creates an ops handler with the provided dependencies.
func NewOpsHandler(deps OpsDeps) *OpsHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{
		logger: logger,
		buffer: deps.Buffer,
		cache:  deps.Cache,
	}
}

// Register wires internal routes onto the provided router behind guards.
func (h *OpsHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	internal := router.Group("/_internal", guards...)
	{
		internal.Get("/stats", h.Stats)
		internal.Post("/cache/:code/invalidate", h.Invalidate)
	}
}

// Stats handles GET /_internal/stats
func (h *OpsHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"click_buffer": fiber.Map{
			"depth":    h.buffer.Len(),
			"capacity": h.buffer.Cap(),
			"dropped":  h.buffer.Dropped(),
		},
		"cache": fiber.Map{
			"entries": h.cache.Len(),
		},
	})
}

// Invalidate handles POST /_internal/cache/:code/invalidate. The link-management
// service calls it after changing a link so the next redirect reads through.
func (h *OpsHandler) Invalidate(c *fiber.Ctx) error {
	code := c.Params("code")
	if !model.ValidShortCode(code) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid short code",
		})
	}

	h.cache.Invalidate(code)
	h.logger.Info("cache entry invalidated", zap.String("code", code))
	return c.SendStatus(fiber.StatusNoContent)
}
