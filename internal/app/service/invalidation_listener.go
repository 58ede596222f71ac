package service

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkgate/internal/app/model"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached state for a short code.
type CacheInvalidator interface {
	Invalidate(code string)
}

// Subscriber is the subset of a NATS connection the listener needs.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// InvalidationListener lets the link-management service push cache
// invalidations: it publishes a short code on the subject after each write.
type InvalidationListener struct {
	conn    Subscriber
	subject string
	cache   CacheInvalidator
	logger  *zap.Logger
	sub     *nats.Subscription
}

// NewInvalidationListener creates a listener for subject.
func NewInvalidationListener(conn Subscriber, subject string, cache CacheInvalidator, logger *zap.Logger) *InvalidationListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationListener{conn: conn, subject: subject, cache: cache, logger: logger}
}

// Start subscribes to the invalidation subject.
func (l *InvalidationListener) Start() error {
	sub, err := l.conn.Subscribe(l.subject, l.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.subject, err)
	}
	l.sub = sub
	l.logger.Info("listening for cache invalidations", zap.String("subject", l.subject))
	return nil
}

// Stop removes the subscription.
func (l *InvalidationListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Unsubscribe()
}

func (l *InvalidationListener) handle(msg *nats.Msg) {
	code := strings.TrimSpace(string(msg.Data))
	if !model.ValidShortCode(code) {
		l.logger.Warn("ignoring invalidation for malformed code", zap.String("code", code))
		return
	}

	l.cache.Invalidate(code)
	l.logger.Debug("cache entry invalidated", zap.String("code", code))
}
