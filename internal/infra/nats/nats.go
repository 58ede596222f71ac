package natsclient

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkgate/config"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 5 * time.Second

// Connect opens a NATS connection using application config. The JetStream
// context is only created when click export is enabled; otherwise it is nil.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("linkgate"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	if !cfg.ExportClicks {
		return conn, nil, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// ConnectOptional is Connect for deployments where NATS only feeds cache
// invalidation. When click export is disabled a failed connect is logged and
// reported as a nil connection so the caller can run without the listener.
func ConnectOptional(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, js, err := Connect(cfg, logger)
	if err == nil || cfg.ExportClicks {
		return conn, js, err
	}

	logger.Warn("NATS unavailable, cache invalidation events disabled",
		zap.String("url", URL(cfg)),
		zap.Error(err),
	)
	return nil, nil, nil
}

// URL renders the server address for cfg.
func URL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
