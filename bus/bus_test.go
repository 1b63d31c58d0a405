package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
	"notebase.evalgo.org/models"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	return args.Get(0).(kgo.ProduceResults)
}

func (m *mockProducer) Close() {
	m.Called()
}

func produceOK(rs []*kgo.Record) kgo.ProduceResults {
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r})
	}
	return out
}

func TestPublishDocumentEvent(t *testing.T) {
	producer := new(mockProducer)
	var published []*kgo.Record
	producer.On("ProduceSync", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		published = args.Get(1).([]*kgo.Record)
	}).Return(produceOK([]*kgo.Record{{}}))

	pub := NewPublisherWithClient(producer, "source_changes")
	event := NewDocumentEvent(OpCreate, "doc-1", "owner-1", 1, models.JSONMap{"filename": "notes.txt"})

	ok := pub.PublishDocumentEvent(context.Background(), event)
	require.True(t, ok)
	require.Len(t, published, 1)

	assert.Equal(t, "source_changes", published[0].Topic)
	assert.Equal(t, "doc-1", string(published[0].Key))

	var decoded DocumentEvent
	require.NoError(t, json.Unmarshal(published[0].Value, &decoded))
	assert.Equal(t, OpCreate, decoded.Op)
	assert.Equal(t, "owner-1", decoded.OwnerID)
	assert.NotZero(t, decoded.TsMs)
}

func TestPublishReturnsFalseOnError(t *testing.T) {
	producer := new(mockProducer)
	producer.On("ProduceSync", mock.Anything, mock.Anything).Return(kgo.ProduceResults{
		{Err: errors.New("broker unreachable")},
	})

	pub := NewPublisherWithClient(producer, "source_changes")
	ok := pub.PublishURLSourceEvent(context.Background(), NewURLSourceEvent(OpDelete, "src-1", "owner-1", 2, nil))
	assert.False(t, ok)
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	producer := new(mockProducer)
	producer.On("ProduceSync", mock.Anything, mock.Anything).Return(kgo.ProduceResults{
		{Err: errors.New("broker unreachable")},
	}).Twice()
	producer.On("ProduceSync", mock.Anything, mock.Anything).Return(produceOK([]*kgo.Record{{}})).Once()

	pub := NewPublisherWithClient(producer, "source_changes")
	pub.retry = config.RetryClassConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	ok := pub.PublishDocumentEvent(context.Background(), NewDocumentEvent(OpCreate, "doc-1", "owner-1", 1, nil))
	assert.True(t, ok)
	producer.AssertNumberOfCalls(t, "ProduceSync", 3)
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	producer := new(mockProducer)
	producer.On("ProduceSync", mock.Anything, mock.Anything).Return(kgo.ProduceResults{
		{Err: errors.New("broker unreachable")},
	})

	pub := NewPublisherWithClient(producer, "source_changes")
	pub.retry = config.RetryClassConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}

	ok := pub.PublishDocumentEvent(context.Background(), NewDocumentEvent(OpCreate, "doc-1", "owner-1", 1, nil))
	assert.False(t, ok)
	producer.AssertNumberOfCalls(t, "ProduceSync", 3)
}

func TestPublishNilPublisher(t *testing.T) {
	var pub *Publisher
	assert.False(t, pub.PublishDocumentEvent(context.Background(), DocumentEvent{}))
}

func partitionRecords(versions ...int) []*kgo.Record {
	records := make([]*kgo.Record, 0, len(versions))
	for i, v := range versions {
		value := []byte(fmt.Sprintf(`{"op":"c","ts_ms":1,"document_id":"doc-%d","version":%d,"owner_id":"o"}`, i, v))
		records = append(records, &kgo.Record{
			Topic:     "source_changes",
			Partition: 0,
			Offset:    int64(10 + i),
			Value:     value,
		})
	}
	return records
}

func trackingConsumer(handler Handler) (*Consumer, *[]int64, *[]int64) {
	committed := &[]int64{}
	rewound := &[]int64{}
	c := &Consumer{
		handler: handler,
		logger:  common.NewContextLogger(nil, map[string]interface{}{"component": "bus-consumer"}),
	}
	c.commitFn = func(ctx context.Context, r *kgo.Record) { *committed = append(*committed, r.Offset) }
	c.rewindFn = func(r *kgo.Record) { *rewound = append(*rewound, r.Offset) }
	return c, committed, rewound
}

func TestConsumePartitionRewindsOnFailure(t *testing.T) {
	c, committed, rewound := trackingConsumer(func(ctx context.Context, env Envelope) error {
		if env.Version == 3 {
			return errors.New("embedding service unavailable")
		}
		return nil
	})

	p := kgo.FetchTopicPartition{FetchPartition: kgo.FetchPartition{
		Records: partitionRecords(1, 2, 3, 4, 5),
	}}
	c.consumePartition(context.Background(), p)

	// Offsets 10 and 11 succeeded; 12 failed. The partition is rewound to
	// the failed offset and nothing at or past it is committed, so the next
	// poll redelivers 12-14.
	assert.Equal(t, []int64{10, 11}, *committed)
	assert.Equal(t, []int64{12}, *rewound)
}

func TestConsumePartitionSkipsMalformedRecords(t *testing.T) {
	var handled []string
	c, committed, rewound := trackingConsumer(func(ctx context.Context, env Envelope) error {
		handled = append(handled, env.EntityID())
		return nil
	})

	records := partitionRecords(1, 2)
	records[0].Value = []byte("not json")
	p := kgo.FetchTopicPartition{FetchPartition: kgo.FetchPartition{Records: records}}
	c.consumePartition(context.Background(), p)

	// The poison record is committed past, not retried.
	assert.Equal(t, []string{"doc-1"}, handled)
	assert.Equal(t, []int64{10, 11}, *committed)
	assert.Empty(t, *rewound)
}

func TestDecodeEnvelopeDocument(t *testing.T) {
	value := []byte(`{"op":"u","ts_ms":1700000000000,"document_id":"doc-1","version":2,"doc_metadata":{"filename":"a.pdf"},"owner_id":"owner-1"}`)

	env, err := DecodeEnvelope(value)
	require.NoError(t, err)

	assert.True(t, env.IsDocument())
	assert.Equal(t, "doc-1", env.EntityID())
	assert.Equal(t, OpUpdate, env.Op)
	assert.Equal(t, 2, env.Version)
	assert.Equal(t, "a.pdf", env.Metadata["filename"])
}

func TestDecodeEnvelopeSource(t *testing.T) {
	value := []byte(`{"op":"c","ts_ms":1700000000000,"source_id":"src-1","version":1,"source_metadata":{"url":"https://example.com"},"owner_id":"owner-1"}`)

	env, err := DecodeEnvelope(value)
	require.NoError(t, err)

	assert.False(t, env.IsDocument())
	assert.Equal(t, "src-1", env.EntityID())
	assert.Equal(t, "https://example.com", env.Metadata["url"])
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":   `{"op":`,
		"no ids":     `{"op":"c","ts_ms":1,"owner_id":"o"}`,
		"unknown op": `{"op":"x","document_id":"doc-1"}`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(value))
			assert.Error(t, err)
		})
	}
}
