package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
)

// Handler processes one decoded change event. A non-nil error keeps the
// record uncommitted so the group redelivers it.
type Handler func(ctx context.Context, env Envelope) error

// Consumer reads the change topic as part of the indexing worker group.
// Partitions from one fetch are handled concurrently up to maxConcurrency;
// within a partition records stay in offset order, which preserves
// per-entity ordering. Offsets are committed explicitly after the handler
// succeeds and a failed record rewinds its partition, giving at-least-once
// delivery; the worker dedupes replays downstream.
type Consumer struct {
	client         *kgo.Client
	handler        Handler
	maxConcurrency int
	logger         *common.ContextLogger

	commitFn func(ctx context.Context, record *kgo.Record)
	rewindFn func(record *kgo.Record)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewConsumer joins the consumer group. New groups start from the earliest
// offset so a fresh worker replays the full history once.
func NewConsumer(cfg config.BusConfig, pollWait time.Duration, maxConcurrency int, handler Handler) (*Consumer, error) {
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BrokerList()...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchMaxWait(pollWait),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	c := &Consumer{
		client:         client,
		handler:        handler,
		maxConcurrency: maxConcurrency,
		logger: common.NewContextLogger(nil, map[string]interface{}{
			"component": "bus-consumer",
			"group":     cfg.Group,
			"topic":     cfg.Topic,
		}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.commitFn = c.commit
	c.rewindFn = c.rewind
	return c, nil
}

// Run polls until Stop is called or the context is cancelled. It blocks.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.doneCh)
	c.logger.Info("consumer started")

	for {
		select {
		case <-c.stopCh:
			c.logger.Info("consumer stopping")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if fe.Err == context.Canceled {
					return nil
				}
				c.logger.WithError(fe.Err).WithField("partition", fe.Partition).Error("fetch error")
			}
			continue
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, c.maxConcurrency)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			wg.Add(1)
			sem <- struct{}{}
			go func(p kgo.FetchTopicPartition) {
				defer wg.Done()
				defer func() { <-sem }()
				c.consumePartition(ctx, p)
			}(p)
		})
		wg.Wait()
	}
}

// consumePartition handles records in offset order and commits after each
// success. Processing stops at the first failure and the partition is
// rewound to the failed offset, so the failed record and everything after
// it are fetched and redelivered on a later poll.
func (c *Consumer) consumePartition(ctx context.Context, p kgo.FetchTopicPartition) {
	for _, record := range p.Records {
		env, err := DecodeEnvelope(record.Value)
		if err != nil {
			// Poison records would block the partition forever; log and skip.
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"partition": record.Partition,
				"offset":    record.Offset,
			}).Error("skipping malformed record")
			c.commitFn(ctx, record)
			continue
		}

		if err := c.handler(ctx, env); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"entity_id": env.EntityID(),
				"op":        env.Op,
				"offset":    record.Offset,
			}).Error("event handling failed, rewinding partition")
			c.rewindFn(record)
			return
		}

		c.commitFn(ctx, record)
	}
}

func (c *Consumer) commit(ctx context.Context, record *kgo.Record) {
	if err := c.client.CommitRecords(ctx, record); err != nil {
		c.logger.WithError(err).WithField("offset", record.Offset).Error("offset commit failed")
	}
}

// rewind moves the partition's consume position back to the failed record.
// The client's in-memory position has already advanced past the fetched
// batch; without this the failed record would never be polled again and the
// next commit on the partition would silently cover it.
func (c *Consumer) rewind(record *kgo.Record) {
	c.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		record.Topic: {
			record.Partition: {
				Epoch:  record.LeaderEpoch,
				Offset: record.Offset,
			},
		},
	})
}

// Stop shuts the consumer down and waits for Run to return.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.Close()
	})
	<-c.doneCh
}
