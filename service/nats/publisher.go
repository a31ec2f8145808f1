package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tipjarhq/tipjar/service/metrics"
)

// Publisher defines the interface for publishing tip events to NATS.
type Publisher interface {
	// PublishTip publishes a single tip event to JetStream.
	// The event is published to the subject "tips.{id}".
	PublishTip(ctx context.Context, event *TipEvent) error

	// PublishTipBatch publishes multiple tip events. Individual publish
	// failures are logged and skipped; the batch is never aborted.
	PublishTipBatch(ctx context.Context, events []*TipEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes tip events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for tip events.
	StreamName = "TIPS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "tips.*"

	// StreamRetention is how long tip events are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("tipjar-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Tip events observed on the tip-jar contract",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishTip publishes a single tip event.
func (p *JetStreamPublisher) PublishTip(ctx context.Context, event *TipEvent) error {
	subject := fmt.Sprintf("tips.%d", event.ID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tip event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, duration)
	}
	if err != nil {
		return fmt.Errorf("failed to publish tip: %w", err)
	}

	p.logger.Debug("published tip event",
		"subject", subject,
		"tipper", event.Tipper,
		"amount", event.Amount,
	)

	return nil
}

// PublishTipBatch publishes multiple tip events.
func (p *JetStreamPublisher) PublishTipBatch(ctx context.Context, events []*TipEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.PublishTip(ctx, event); err != nil {
			// Log and continue; one failed event must not starve the rest.
			p.logger.Error("failed to publish tip in batch",
				"id", event.ID,
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published tip batch", "count", len(events))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
