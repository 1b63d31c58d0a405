package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
)

const defaultProduceTimeout = 10 * time.Second

// Producer is the subset of the Kafka client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher emits change events to the source changes topic. Publish returns
// a bool instead of an error because event emission is advisory for write
// paths: a failed publish leaves the row in place and the reconciler repairs
// the index later. Broker trouble is retried with exponential backoff per
// the bus retry class before failure is reported.
type Publisher struct {
	client  Producer
	topic   string
	timeout time.Duration
	retry   config.RetryClassConfig
	logger  *common.ContextLogger
}

// NewPublisher connects an idempotent producer with acks from all in-sync
// replicas.
func NewPublisher(cfg config.BusConfig, retry config.RetryClassConfig) (*Publisher, error) {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultProduceTimeout
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BrokerList()...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &Publisher{
		client:  client,
		topic:   cfg.Topic,
		timeout: timeout,
		retry:   retry,
		logger:  common.NewContextLogger(nil, map[string]interface{}{"component": "bus-publisher"}),
	}, nil
}

// NewPublisherWithClient wires an explicit producer, used by tests.
func NewPublisherWithClient(client Producer, topic string) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: defaultProduceTimeout,
		retry:   config.RetryClassConfig{MaxAttempts: 1},
		logger:  common.NewContextLogger(nil, map[string]interface{}{"component": "bus-publisher"}),
	}
}

// Close flushes and releases the producer.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// PublishDocumentEvent emits a document change event keyed by document id.
func (p *Publisher) PublishDocumentEvent(ctx context.Context, event DocumentEvent) bool {
	return p.publish(ctx, event.DocumentID, event)
}

// PublishURLSourceEvent emits a source change event keyed by source id.
func (p *Publisher) PublishURLSourceEvent(ctx context.Context, event URLSourceEvent) bool {
	return p.publish(ctx, event.SourceID, event)
}

func (p *Publisher) publish(ctx context.Context, key string, event interface{}) bool {
	if p == nil || p.client == nil {
		return false
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("failed to encode event")
		return false
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
	}

	attempts := p.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.retry.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				p.logger.WithError(ctx.Err()).WithField("key", key).Error("publish abandoned")
				return false
			case <-time.After(delay):
			}
			delay *= 2
			if p.retry.MaxDelay > 0 && delay > p.retry.MaxDelay {
				delay = p.retry.MaxDelay
			}
		}

		produceCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.client.ProduceSync(produceCtx, record).FirstErr()
		cancel()
		if err == nil {
			p.logger.WithField("key", key).Debug("published event")
			return true
		}
		lastErr = err
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"key":     key,
			"attempt": attempt,
		}).Warn("publish attempt failed")
	}

	p.logger.WithError(lastErr).WithField("key", key).Error("failed to publish event")
	return false
}
