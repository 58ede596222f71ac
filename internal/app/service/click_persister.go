package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	defaultPersistWorkers = 2
	defaultBatchSize      = 200
	defaultFlushInterval  = time.Second
	defaultFlushTimeout   = 10 * time.Second
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	exportTimeout         = 5 * time.Second
)

// ClickCounter bumps per-link click counters.
type ClickCounter interface {
	IncrementClicks(ctx context.Context, linkID string, delta int64) error
}

// ClickLog appends click events.
type ClickLog interface {
	CreateBatch(ctx context.Context, events []model.ClickEvent) error
}

// ClickSink receives batches that were written to the click log.
type ClickSink interface {
	Export(ctx context.Context, events []model.ClickEvent) error
}

// ClickPersisterConfig tunes batching and retry. Zero values fall back to
// defaults, except MaxRetries where zero means a single attempt.
type ClickPersisterConfig struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	// MaxRetries counts attempts after the first; negative values mean zero.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ClickPersisterDeps groups the collaborators of a ClickPersister.
type ClickPersisterDeps struct {
	Buffer  *ClickBuffer
	Counter ClickCounter
	Log     ClickLog
	Sink    ClickSink // optional
	Logger  *zap.Logger
	Metrics *infraPrometheus.Metrics
}

// ClickPersister drains the click buffer with a fixed pool of workers. Each
// worker batches events by count or time, appends them to the click log and
// applies one aggregated counter increment per link. The two writes retry and
// fail independently; a failure in one never rolls back the other.
type ClickPersister struct {
	cfg     ClickPersisterConfig
	buffer  *ClickBuffer
	counter ClickCounter
	log     ClickLog
	sink    ClickSink
	logger  *zap.Logger
	metrics *infraPrometheus.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewClickPersister validates deps and applies config defaults.
func NewClickPersister(cfg ClickPersisterConfig, deps ClickPersisterDeps) (*ClickPersister, error) {
	if deps.Buffer == nil || deps.Counter == nil || deps.Log == nil {
		return nil, errors.New("click persister: buffer, counter and log are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = defaultPersistWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &ClickPersister{
		cfg:     cfg,
		buffer:  deps.Buffer,
		counter: deps.Counter,
		log:     deps.Log,
		sink:    deps.Sink,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Start launches the worker pool. Calling it more than once has no effect.
func (p *ClickPersister) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
		p.logger.Info("click persister started",
			zap.Int("workers", p.cfg.Workers),
			zap.Int("batch_size", p.cfg.BatchSize),
			zap.Duration("flush_interval", p.cfg.FlushInterval),
		)
	})
}

// Stop closes the buffer, lets the workers drain and flush what is queued, and
// waits for them to exit.
func (p *ClickPersister) Stop() {
	p.stopOnce.Do(func() {
		p.buffer.Close()
		p.wg.Wait()
		p.logger.Info("click persister stopped", zap.Int64("dropped_total", p.buffer.Dropped()))
	})
}

func (p *ClickPersister) run(worker int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.ClickEvent, 0, p.cfg.BatchSize)
	events := p.buffer.Events()

	for {
		select {
		case event := <-events:
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = make([]model.ClickEvent, 0, p.cfg.BatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = make([]model.ClickEvent, 0, p.cfg.BatchSize)
			}

		case <-p.buffer.Done():
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.flush(batch)
			}
			p.logger.Debug("click persister worker exited", zap.Int("worker", worker))
			return
		}
	}
}

// drain reads everything still queued, flushing full batches along the way.
func (p *ClickPersister) drain(batch []model.ClickEvent) []model.ClickEvent {
	events := p.buffer.Events()
	for {
		select {
		case event := <-events:
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = make([]model.ClickEvent, 0, p.cfg.BatchSize)
			}
		default:
			return batch
		}
	}
}

// flush gives each write stage its own timeout so a slow click log cannot
// starve the counter updates.
func (p *ClickPersister) flush(batch []model.ClickEvent) {
	eventsCtx, cancelEvents := context.WithTimeout(context.Background(), p.cfg.FlushTimeout)
	p.appendEvents(eventsCtx, batch)
	cancelEvents()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FlushTimeout)
	defer cancel()

	for linkID, delta := range countByLink(batch) {
		err := p.retry(ctx, func() error {
			return p.counter.IncrementClicks(ctx, linkID, delta)
		})
		if err != nil {
			p.metrics.WriteFailures.WithLabelValues("counter").Inc()
			p.logger.Error("failed to increment click counter",
				zap.String("link_id", linkID),
				zap.Int64("delta", delta),
				zap.Error(err),
			)
		}
	}
}

// appendEvents writes the batch to the click log. A permanent failure (for
// example a link deleted after the click) falls back to per-link writes so one
// bad link does not discard everyone else's events.
func (p *ClickPersister) appendEvents(ctx context.Context, batch []model.ClickEvent) {
	err := p.retry(ctx, func() error { return p.log.CreateBatch(ctx, batch) })
	if err == nil {
		p.persisted(ctx, batch)
		return
	}

	groups := groupByLink(batch)
	if !repository.IsPermanent(err) || len(groups) < 2 {
		p.discard(batch, err)
		return
	}

	for _, group := range groups {
		if err := p.retry(ctx, func() error { return p.log.CreateBatch(ctx, group) }); err != nil {
			p.discard(group, err)
			continue
		}
		p.persisted(ctx, group)
	}
}

func (p *ClickPersister) persisted(ctx context.Context, events []model.ClickEvent) {
	p.metrics.ClicksPersisted.Add(float64(len(events)))
	p.logger.Debug("click events persisted", zap.Int("count", len(events)))

	if p.sink == nil {
		return
	}
	exportCtx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()
	if err := p.sink.Export(exportCtx, events); err != nil {
		p.metrics.WriteFailures.WithLabelValues("export").Inc()
		p.logger.Warn("failed to export click events", zap.Int("count", len(events)), zap.Error(err))
	}
}

func (p *ClickPersister) discard(events []model.ClickEvent, err error) {
	p.metrics.WriteFailures.WithLabelValues("events").Inc()
	p.metrics.ClicksDiscarded.Add(float64(len(events)))
	p.logger.Error("discarding click events after failed writes",
		zap.Int("count", len(events)),
		zap.Error(err),
	)
}

// retry runs op with bounded exponential backoff. Permanent errors stop early.
func (p *ClickPersister) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && repository.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func countByLink(batch []model.ClickEvent) map[string]int64 {
	counts := make(map[string]int64)
	for i := range batch {
		counts[batch[i].LinkID]++
	}
	return counts
}

func groupByLink(batch []model.ClickEvent) [][]model.ClickEvent {
	index := make(map[string]int)
	var groups [][]model.ClickEvent
	for _, e := range batch {
		i, ok := index[e.LinkID]
		if !ok {
			i = len(groups)
			index[e.LinkID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}
