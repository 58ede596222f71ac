package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/linkgate/internal/app/model"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
	"go.uber.org/zap"
)

// DriftSource lists links whose counter disagrees with the click log.
type DriftSource interface {
	ClickDrift(ctx context.Context, from, to time.Time, limit int) ([]model.ClickDrift, error)
}

// ClickDriftCheckerConfig bounds which links are inspected. Only links whose
// counter changed inside [now-Lookback, now-Grace] are compared, so batches still
// in flight are not reported.
type ClickDriftCheckerConfig struct {
	Interval time.Duration
	Lookback time.Duration
	Grace    time.Duration
	Limit    int
}

// ClickDriftChecker periodically looks for persistent divergence between click
// counters and the click log and reports it.
type ClickDriftChecker struct {
	logger   *zap.Logger
	repo     DriftSource
	metrics  *infraPrometheus.Metrics
	cfg      ClickDriftCheckerConfig
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewClickDriftChecker creates a new drift checker.
func NewClickDriftChecker(logger *zap.Logger, repo DriftSource, metrics *infraPrometheus.Metrics, cfg ClickDriftCheckerConfig) *ClickDriftChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &ClickDriftChecker{
		logger:   logger,
		repo:     repo,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic check.
func (c *ClickDriftChecker) Start() {
	go c.run()
}

// Stop stops the periodic check and waits for an in-progress run to finish.
func (c *ClickDriftChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.done
	})
}

func (c *ClickDriftChecker) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Interval)
			_, _ = c.Check(ctx)
			cancel()
		case <-c.stopChan:
			c.logger.Info("click drift checker stopped")
			return
		}
	}
}

// Check runs one comparison and returns the number of divergent links found.
func (c *ClickDriftChecker) Check(ctx context.Context) (int, error) {
	now := c.now()
	from := now.Add(-c.cfg.Lookback)
	to := now.Add(-c.cfg.Grace)

	drift, err := c.repo.ClickDrift(ctx, from, to, c.cfg.Limit)
	if err != nil {
		c.logger.Error("failed to check click drift", zap.Error(err))
		return 0, err
	}

	c.metrics.DriftLinks.Set(float64(len(drift)))
	for _, d := range drift {
		c.logger.Warn("click counter diverges from click log",
			zap.String("link_id", d.LinkID),
			zap.String("code", d.ShortCode),
			zap.Int64("click_count", d.ClickCount),
			zap.Int64("event_count", d.EventCount),
			zap.Int64("delta", d.Delta()),
		)
	}
	return len(drift), nil
}
