package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sifan077/linkgate/internal/app/service"
	httpUtil "github.com/sifan077/linkgate/internal/http/util"
	"github.com/sifan077/linkgate/internal/http/view"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger    *zap.Logger
	Redirects service.RedirectService
}

// RedirectHandler serves GET /:code.
type RedirectHandler struct {
	logger    *zap.Logger
	redirects service.RedirectService
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:    logger,
		redirects: deps.Redirects,
	}
}

// Register wires redirect routes onto the provided router. Extra handlers run
// before Resolve (e.g. rate limiting).
func (h *RedirectHandler) Register(router fiber.Router, middleware ...fiber.Handler) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:code", append(middleware, h.Resolve)...)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "linkgate",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve gates the code and either redirects or renders the matching page.
// The click is queued before the redirect is written and never waits on storage.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	// fiber reuses the underlying buffer after the handler returns; the code
	// ends up as a cache key, so it must be copied.
	code := utils.CopyString(c.Params("code"))

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	res := h.redirects.Resolve(ctx, code)
	c.Set(fiber.HeaderCacheControl, "no-store")

	switch res.Outcome {
	case service.OutcomeRedirect:
		h.redirects.RecordClick(res.Link, service.ClickInfo{
			IP:        httpUtil.ClientIP(c),
			UserAgent: httpUtil.UserAgent(c),
			Referer:   httpUtil.Referer(c),
		})
		h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", res.URL))
		return c.Redirect(res.URL, fiber.StatusFound)
	case service.OutcomeDisabled:
		return h.renderStatus(c, fiber.StatusGone, view.DisabledPage, code)
	case service.OutcomeNotYetActive:
		return h.renderStatus(c, fiber.StatusForbidden, view.NotYetActivePage, code)
	case service.OutcomeExpired:
		page := view.ExpiredPage
		page.Message = res.Message
		return h.renderStatus(c, fiber.StatusGone, page, code)
	default:
		return h.renderStatus(c, fiber.StatusNotFound, view.NotFoundPage, "")
	}
}

func (h *RedirectHandler) renderStatus(c *fiber.Ctx, status int, page view.StatusPageData, code string) error {
	page.Code = code
	html, err := view.RenderStatusPage(page)
	if err != nil {
		h.logger.Error("failed to render status page", zap.Error(err))
		return c.Status(status).SendString(page.Heading)
	}

	return c.
		Status(status).
		Type("html", "utf-8").
		SendString(html)
}
