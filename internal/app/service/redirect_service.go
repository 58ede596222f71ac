package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ErrInvalidShortCode marks a code rejected before any directory access.
var ErrInvalidShortCode = errors.New("invalid short code")

// LinkResolver returns the current link for a short code.
type LinkResolver interface {
	Get(ctx context.Context, code string) (*model.Link, error)
}

// RedirectService decides what a short code resolves to and records clicks for
// codes that redirect.
type RedirectService interface {
	Resolve(ctx context.Context, code string) Resolution
	RecordClick(link *model.Link, info ClickInfo) bool
}

// Resolution is the gating decision plus the link it was made on. Err carries
// the lookup failure, if any, behind a NotFound decision.
type Resolution struct {
	Decision
	Link *model.Link
	Err  error
}

// ClickInfo is the request context captured for analytics.
type ClickInfo struct {
	IP        string
	UserAgent string
	Referer   string
}

// RedirectDeps groups dependencies required by the redirect service.
type RedirectDeps struct {
	Links   LinkResolver
	Buffer  *ClickBuffer
	Logger  *zap.Logger
	Metrics *infraPrometheus.Metrics
	Now     func() time.Time
}

type redirectService struct {
	links   LinkResolver
	buffer  *ClickBuffer
	logger  *zap.Logger
	metrics *infraPrometheus.Metrics
	now     func() time.Time
}

// NewRedirectService returns a service resolving through deps.Links and
// publishing clicks to deps.Buffer.
func NewRedirectService(deps RedirectDeps) RedirectService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &redirectService{
		links:   deps.Links,
		buffer:  deps.Buffer,
		logger:  logger,
		metrics: metrics,
		now:     now,
	}
}

// Resolve never fails the caller: malformed codes, unknown codes and lookup
// failures all degrade to NotFound.
func (s *redirectService) Resolve(ctx context.Context, code string) Resolution {
	res := s.resolve(ctx, code)
	s.metrics.Redirects.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (s *redirectService) resolve(ctx context.Context, code string) Resolution {
	if !model.ValidShortCode(code) {
		return Resolution{Decision: Decision{Outcome: OutcomeNotFound}, Err: ErrInvalidShortCode}
	}

	link, err := s.links.Get(ctx, code)
	if err != nil {
		if !errors.Is(err, repository.ErrLinkNotFound) {
			s.logger.Error("link lookup failed, serving not found",
				zap.String("code", code),
				zap.Error(err),
			)
		}
		return Resolution{Decision: Decision{Outcome: OutcomeNotFound}, Err: err}
	}

	return Resolution{Decision: Decide(link, s.now()), Link: link}
}

// RecordClick enqueues a click event for link without blocking. It reports
// whether the event was accepted by the buffer.
func (s *redirectService) RecordClick(link *model.Link, info ClickInfo) bool {
	if s.buffer == nil || link == nil {
		return false
	}

	event := model.ClickEvent{
		ID:         uuid.New().String(),
		LinkID:     link.ID,
		ShortCode:  link.ShortCode,
		Timestamp:  s.now().UTC(),
		IPAddress:  info.IP,
		UserAgent:  info.UserAgent,
		Referer:    info.Referer,
		DeviceType: ClassifyDevice(info.UserAgent),
	}

	if !s.buffer.Publish(event) {
		s.logger.Debug("click buffer full, dropping event",
			zap.String("code", link.ShortCode),
			zap.Int64("dropped_total", s.buffer.Dropped()),
		)
		return false
	}
	return true
}
