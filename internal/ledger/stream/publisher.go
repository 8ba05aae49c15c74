// Package stream fans stage events out to Kafka for downstream consumers
// (audit reporting, dashboards). The ledger store remains the source of
// truth: stream publishing is best-effort and never blocks or fails an
// append.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"docanchor/internal/ledger"
	"docanchor/internal/ledger/metrics"
	"docanchor/internal/platform/config"
)

// Publisher buffers events and produces them to a single topic, keyed by
// document ID so per-document ordering survives partitioning.
type Publisher struct {
	client  *kgo.Client
	topic   string
	inbox   chan ledger.StageEvent
	done    chan struct{}
	closers sync.Once
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// envelope is the wire shape of one stage event.
type envelope struct {
	DocumentID    string            `json:"document_id"`
	PreviousStage string            `json:"previous_stage"`
	NewStage      string            `json:"new_stage"`
	Trigger       string            `json:"trigger"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    string            `json:"occurred_at"`
}

// New connects to the brokers, ensures the topic exists, and starts the
// produce loop. Returns nil when no brokers are configured.
func New(cfg config.Kafka, logger *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	if err := ensureTopic(client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{
		client:  client,
		topic:   cfg.Topic,
		inbox:   make(chan ledger.StageEvent, buffer),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: m,
	}
	go p.run()
	return p, nil
}

func ensureTopic(client *kgo.Client, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	for _, result := range resp {
		if result.Err != nil && !errors.Is(result.Err, kerr.TopicAlreadyExists) {
			return result.Err
		}
	}
	return nil
}

// Publish enqueues the event without blocking. Events are dropped when the
// buffer is full; the ledger store already holds the durable copy.
func (p *Publisher) Publish(_ context.Context, event ledger.StageEvent) {
	select {
	case p.inbox <- event:
	default:
		if p.metrics != nil {
			p.metrics.StreamDrops.Inc()
		}
		p.logger.Warn("stage event stream buffer full, dropping event",
			slog.String("document_id", event.DocumentID.String()),
			slog.String("stage", string(event.NewStage)))
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.inbox {
		p.produce(event)
	}
}

func (p *Publisher) produce(event ledger.StageEvent) {
	payload, err := json.Marshal(envelope{
		DocumentID:    event.DocumentID.String(),
		PreviousStage: string(event.PreviousStage),
		NewStage:      string(event.NewStage),
		Trigger:       string(event.Trigger),
		Reason:        event.Reason,
		Metadata:      event.Metadata,
		OccurredAt:    event.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		p.logger.Error("failed to marshal stage event", slog.String("error", err.Error()))
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.DocumentID.String()),
		Value: payload,
	}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("stage event produce failed", slog.String("error", err.Error()))
			return
		}
		if p.metrics != nil {
			p.metrics.StreamPublishes.Inc()
		}
	})
}

// Close drains buffered events, flushes in-flight produces, and closes the
// client.
func (p *Publisher) Close() {
	p.closers.Do(func() {
		close(p.inbox)
		<-p.done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.client.Flush(ctx)
		p.client.Close()
	})
}
