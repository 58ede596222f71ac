package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkgate/internal/app/model"
)

// ClickStream is the subset of JetStream the exporter needs.
type ClickStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ClickExporter forwards persisted click events to JetStream so downstream
// analytics can consume them without polling the click log.
type ClickExporter struct {
	js ClickStream
}

// NewClickExporter creates a new click event exporter.
func NewClickExporter(js ClickStream) *ClickExporter {
	return &ClickExporter{js: js}
}

// EnsureStream creates the click stream if it does not exist yet.
func (e *ClickExporter) EnsureStream() error {
	if _, err := e.js.StreamInfo(model.ClickStreamName); err == nil {
		return nil
	}

	_, err := e.js.AddStream(&nats.StreamConfig{
		Name:     model.ClickStreamName,
		Subjects: []string{model.ClickStreamSubject},
		MaxBytes: model.ClickStreamMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Export publishes each event. The event id doubles as the JetStream message id
// so a retried export is deduplicated by the server.
func (e *ClickExporter) Export(ctx context.Context, events []model.ClickEvent) error {
	var errs []error
	for i := range events {
		data, err := json.Marshal(events[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, err := e.js.Publish(model.ClickStreamSubject, data, nats.MsgId(events[i].ID), nats.Context(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", events[i].ID, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}
