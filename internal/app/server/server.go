package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/linkgate/internal/app/service"
	inthttp "github.com/sifan077/linkgate/internal/http/handler"
	"github.com/sifan077/linkgate/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles the components required by the HTTP server.
type Dependencies struct {
	Logger    *zap.Logger
	Redirects service.RedirectService
	Buffer    inthttp.BufferStats
	Cache     inthttp.LinkCacheOps

	// OpsToken mounts the /_internal endpoints behind bearer auth when set.
	OpsToken string

	// Redis enables per-IP rate limiting on the redirect route when non-nil.
	Redis     *redis.Client
	RateLimit middleware.RateLimitConfig

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "linkgate",
		DisableStartupMessage: true,
		ReadTimeout:           deps.ReadTimeout,
		WriteTimeout:          deps.WriteTimeout,
	})

	app.Use(middleware.Recovery(deps.Logger))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(deps.Logger))

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber app (used by tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	if s.deps.OpsToken != "" {
		opsHandler := inthttp.NewOpsHandler(inthttp.OpsDeps{
			Logger: s.deps.Logger,
			Buffer: s.deps.Buffer,
			Cache:  s.deps.Cache,
		})
		opsHandler.Register(s.app, middleware.OpsAuth(s.deps.OpsToken, s.deps.Logger))
	}

	var guards []fiber.Handler
	if s.deps.Redis != nil {
		guards = append(guards, middleware.RateLimit(s.deps.Redis, s.deps.RateLimit, s.deps.Logger))
	}

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:    s.deps.Logger,
		Redirects: s.deps.Redirects,
	})
	redirectHandler.Register(s.app, guards...)
}
